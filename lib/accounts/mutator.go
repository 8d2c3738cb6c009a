// Copyright 2026 The Agor Authors
// SPDX-License-Identifier: Apache-2.0

package accounts

import (
	"context"
	"fmt"
	"io/fs"
	"os/exec"
	"os/user"
	"strconv"
	"strings"
)

// Mutator applies changes to the OS identity database and filesystem.
// Operations report expected failures (already exists, not found,
// permission denied) as returned errors; the caller decides whether a
// failure is fatal. No operation interprets its arguments through a
// shell — every external command is an argv vector.
type Mutator interface {
	// CreateUser creates a login account with a home directory.
	CreateUser(ctx context.Context, username string) error

	// CreateGroup creates a group.
	CreateGroup(ctx context.Context, group string) error

	// AddUserToGroup grants a supplementary group membership.
	AddUserToGroup(ctx context.Context, username, group string) error

	// DeleteUser removes the account entry. With keepHome the home
	// directory and its contents are left in place; reconciliation
	// cleanup always passes true.
	DeleteUser(ctx context.Context, username string, keepHome bool) error

	// DeleteGroup removes a group.
	DeleteGroup(ctx context.Context, group string) error

	// SetTreeGroupAndMode converges the directory tree at path to the
	// given owning group and permission mode: a recursive group pass
	// followed by a recursive mode pass, each touching only entries
	// that differ. Returns the number of entries changed, so a
	// converged tree reports zero.
	SetTreeGroupAndMode(ctx context.Context, path, group string, mode fs.FileMode) (int, error)
}

// defaultShell is the login shell for created accounts. Managed
// accounts belong to human developers working interactively on the
// host, not service identities.
const defaultShell = "/bin/bash"

// Argv builders shared by the executing and dry-run mutators, so the
// dry-run description is exactly the command that would run.

func createUserArgs(username string) []string {
	return []string{"useradd", "--create-home", "--shell", defaultShell, username}
}

func createGroupArgs(group string) []string {
	return []string{"groupadd", group}
}

func addUserToGroupArgs(username, group string) []string {
	return []string{"usermod", "-aG", group, username}
}

func deleteUserArgs(username string, keepHome bool) []string {
	if keepHome {
		return []string{"userdel", username}
	}
	return []string{"userdel", "--remove", username}
}

func deleteGroupArgs(group string) []string {
	return []string{"groupdel", group}
}

// ExecMutator performs real mutations through the system user and
// group management commands.
type ExecMutator struct {
	// run executes an argv vector. Tests replace it to capture
	// commands without executing them.
	run func(ctx context.Context, argv []string) error
}

func NewExecMutator() *ExecMutator {
	return &ExecMutator{run: runCommand}
}

func runCommand(ctx context.Context, argv []string) error {
	command := exec.CommandContext(ctx, argv[0], argv[1:]...)
	output, err := command.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", strings.Join(argv, " "), err, strings.TrimSpace(string(output)))
	}
	return nil
}

func (m *ExecMutator) CreateUser(ctx context.Context, username string) error {
	return m.run(ctx, createUserArgs(username))
}

func (m *ExecMutator) CreateGroup(ctx context.Context, group string) error {
	return m.run(ctx, createGroupArgs(group))
}

func (m *ExecMutator) AddUserToGroup(ctx context.Context, username, group string) error {
	return m.run(ctx, addUserToGroupArgs(username, group))
}

func (m *ExecMutator) DeleteUser(ctx context.Context, username string, keepHome bool) error {
	return m.run(ctx, deleteUserArgs(username, keepHome))
}

func (m *ExecMutator) DeleteGroup(ctx context.Context, group string) error {
	return m.run(ctx, deleteGroupArgs(group))
}

func (m *ExecMutator) SetTreeGroupAndMode(ctx context.Context, path, group string, mode fs.FileMode) (int, error) {
	gid, err := lookupGID(group)
	if err != nil {
		return 0, err
	}
	return syncTree(ctx, path, gid, mode, true)
}

// lookupGID resolves a group name to its numeric gid.
func lookupGID(group string) (int, error) {
	groupInfo, err := user.LookupGroup(group)
	if err != nil {
		return 0, fmt.Errorf("lookup group %q: %w", group, err)
	}
	gid, err := strconv.Atoi(groupInfo.Gid)
	if err != nil {
		return 0, fmt.Errorf("parse gid %q for group %q: %w", groupInfo.Gid, group, err)
	}
	return gid, nil
}
