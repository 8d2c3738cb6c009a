// Copyright 2026 The Agor Authors
// SPDX-License-Identifier: Apache-2.0

package accounts

import (
	"context"
	"fmt"
	"io/fs"
	"sort"

	"github.com/agor-dev/agor/lib/unixname"
)

// MemoryState is an in-memory implementation of both Inspector and
// Mutator for tests. Mutations are strict — creating an existing
// entity or deleting a missing one returns an error, which surfaces
// reconciler bugs that the real commands would also reject — and
// every successful mutation is appended to Ops in invocation order.
//
// Seed methods (AddUser, AddGroup, AddMember, AddPath) establish
// pre-existing system state without logging.
type MemoryState struct {
	users   map[string]bool
	groups  map[string]bool
	members map[string]map[string]bool
	paths   map[string]bool
	trees   map[string]treeAssignment

	// Ops records each mutation as a readable line, e.g.
	// "create-user alice" or "delete-user agor_deadbeef keep-home=true".
	Ops []string
}

type treeAssignment struct {
	group string
	mode  fs.FileMode
}

func NewMemoryState() *MemoryState {
	return &MemoryState{
		users:   make(map[string]bool),
		groups:  make(map[string]bool),
		members: make(map[string]map[string]bool),
		paths:   make(map[string]bool),
		trees:   make(map[string]treeAssignment),
	}
}

// AddUser seeds an existing OS account.
func (m *MemoryState) AddUser(username string) {
	m.users[username] = true
}

// AddGroup seeds an existing OS group.
func (m *MemoryState) AddGroup(group string) {
	m.groups[group] = true
}

// AddMember seeds an existing membership; the user and group are
// created if absent.
func (m *MemoryState) AddMember(username, group string) {
	m.users[username] = true
	m.groups[group] = true
	if m.members[group] == nil {
		m.members[group] = make(map[string]bool)
	}
	m.members[group][username] = true
}

// AddPath seeds an existing filesystem path.
func (m *MemoryState) AddPath(path string) {
	m.paths[path] = true
}

// TreeAssignment returns the group and mode last applied to a path,
// for assertions about filesystem sync outcomes.
func (m *MemoryState) TreeAssignment(path string) (group string, mode fs.FileMode, ok bool) {
	assignment, ok := m.trees[path]
	return assignment.group, assignment.mode, ok
}

// Inspector.

func (m *MemoryState) UserExists(username string) bool { return m.users[username] }

func (m *MemoryState) GroupExists(group string) bool { return m.groups[group] }

func (m *MemoryState) GroupsOf(username string) map[string]bool {
	groups := make(map[string]bool)
	for group, members := range m.members {
		if members[username] {
			groups[group] = true
		}
	}
	return groups
}

func (m *MemoryState) IsMember(username, group string) bool {
	return m.members[group][username]
}

func (m *MemoryState) ManagedUsers() []string {
	return m.filtered(m.users, unixname.IsManagedUser)
}

func (m *MemoryState) ManagedGroups(namespace string) []string {
	return m.filtered(m.groups, func(name string) bool {
		return unixname.IsManagedGroup(name, namespace)
	})
}

func (m *MemoryState) filtered(set map[string]bool, keep func(string) bool) []string {
	var names []string
	for name := range set {
		if keep(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (m *MemoryState) PathExists(path string) bool { return m.paths[path] }

// Mutator.

func (m *MemoryState) CreateUser(_ context.Context, username string) error {
	if m.users[username] {
		return fmt.Errorf("user %q already exists", username)
	}
	m.users[username] = true
	m.Ops = append(m.Ops, "create-user "+username)
	return nil
}

func (m *MemoryState) CreateGroup(_ context.Context, group string) error {
	if m.groups[group] {
		return fmt.Errorf("group %q already exists", group)
	}
	m.groups[group] = true
	m.Ops = append(m.Ops, "create-group "+group)
	return nil
}

func (m *MemoryState) AddUserToGroup(_ context.Context, username, group string) error {
	if !m.users[username] {
		return fmt.Errorf("user %q does not exist", username)
	}
	if !m.groups[group] {
		return fmt.Errorf("group %q does not exist", group)
	}
	if m.members[group] == nil {
		m.members[group] = make(map[string]bool)
	}
	m.members[group][username] = true
	m.Ops = append(m.Ops, fmt.Sprintf("add-member %s %s", username, group))
	return nil
}

func (m *MemoryState) DeleteUser(_ context.Context, username string, keepHome bool) error {
	if !m.users[username] {
		return fmt.Errorf("user %q does not exist", username)
	}
	delete(m.users, username)
	for _, members := range m.members {
		delete(members, username)
	}
	m.Ops = append(m.Ops, fmt.Sprintf("delete-user %s keep-home=%v", username, keepHome))
	return nil
}

func (m *MemoryState) DeleteGroup(_ context.Context, group string) error {
	if !m.groups[group] {
		return fmt.Errorf("group %q does not exist", group)
	}
	delete(m.groups, group)
	delete(m.members, group)
	m.Ops = append(m.Ops, "delete-group "+group)
	return nil
}

func (m *MemoryState) SetTreeGroupAndMode(_ context.Context, path, group string, mode fs.FileMode) (int, error) {
	if !m.paths[path] {
		return 0, fmt.Errorf("path %q does not exist", path)
	}
	desired := treeAssignment{group: group, mode: mode.Perm()}
	if m.trees[path] == desired {
		return 0, nil
	}
	m.trees[path] = desired
	m.Ops = append(m.Ops, fmt.Sprintf("sync-tree %s %s %s", path, group, mode.Perm()))
	return 1, nil
}

// DryRun returns a Mutator view of this state that executes nothing:
// operations succeed without mutating or logging, and tree sync
// reports the would-change count against the current assignments.
func (m *MemoryState) DryRun() Mutator {
	return &memoryDryRun{state: m}
}

type memoryDryRun struct {
	state *MemoryState
}

func (d *memoryDryRun) CreateUser(context.Context, string) error { return nil }

func (d *memoryDryRun) CreateGroup(context.Context, string) error { return nil }

func (d *memoryDryRun) AddUserToGroup(context.Context, string, string) error { return nil }

func (d *memoryDryRun) DeleteUser(context.Context, string, bool) error { return nil }

func (d *memoryDryRun) DeleteGroup(context.Context, string) error { return nil }

func (d *memoryDryRun) SetTreeGroupAndMode(_ context.Context, path, group string, mode fs.FileMode) (int, error) {
	if !d.state.paths[path] {
		return 0, fmt.Errorf("path %q does not exist", path)
	}
	if d.state.trees[path] == (treeAssignment{group: group, mode: mode.Perm()}) {
		return 0, nil
	}
	return 1, nil
}
