// Copyright 2026 The Agor Authors
// SPDX-License-Identifier: Apache-2.0

package accounts

import (
	"bufio"
	"os"
	"os/user"
	"strings"

	"github.com/agor-dev/agor/lib/unixname"
)

// Inspector answers read-only questions about the OS identity
// database and filesystem. Implementations never return errors:
// any failure (missing file, permission denied, absent tooling) is
// reported as absence, because the caller's creations are idempotent
// and attempting one against an already-converged system is harmless.
type Inspector interface {
	// UserExists reports whether an OS account with this username exists.
	UserExists(username string) bool

	// GroupExists reports whether an OS group with this name exists.
	GroupExists(group string) bool

	// GroupsOf returns the set of group names the user belongs to,
	// both primary and supplementary. Empty set if the user is
	// unknown or the group database cannot be read.
	GroupsOf(username string) map[string]bool

	// IsMember reports whether the user belongs to the group.
	IsMember(username, group string) bool

	// ManagedUsers enumerates OS usernames matching the exact managed
	// shape (unixname.IsManagedUser). Only these are candidates for
	// cleanup deletion.
	ManagedUsers() []string

	// ManagedGroups enumerates OS group names matching the exact
	// managed shape for the namespace (unixname.NamespaceWorktree or
	// unixname.NamespaceRepo).
	ManagedGroups(namespace string) []string

	// PathExists reports whether a filesystem path exists.
	PathExists(path string) bool
}

// Paths to the system account databases. Variables so tests can point
// the inspector at fixture files.
var (
	etcPasswdPath = "/etc/passwd"
	etcGroupPath  = "/etc/group"
)

// HostInspector implements Inspector against the live system:
// existence through os/user lookups, membership and enumeration
// through /etc/passwd and /etc/group scans.
type HostInspector struct{}

func (HostInspector) UserExists(username string) bool {
	_, err := user.Lookup(username)
	return err == nil
}

func (HostInspector) GroupExists(group string) bool {
	_, err := user.LookupGroup(group)
	return err == nil
}

// GroupsOf merges the user's supplementary groups (member lists in
// /etc/group) with the primary group named by the passwd gid field.
// Without the primary group a membership held that way would be
// re-added on every run, breaking idempotence.
func (HostInspector) GroupsOf(username string) map[string]bool {
	groups := make(map[string]bool)

	primaryGID := ""
	for _, entry := range scanPasswd() {
		if entry.name == username {
			primaryGID = entry.gid
			break
		}
	}

	for _, entry := range scanGroup() {
		if primaryGID != "" && entry.gid == primaryGID {
			groups[entry.name] = true
		}
		for _, member := range entry.members {
			if member == username {
				groups[entry.name] = true
				break
			}
		}
	}
	return groups
}

func (h HostInspector) IsMember(username, group string) bool {
	return h.GroupsOf(username)[group]
}

func (HostInspector) ManagedUsers() []string {
	var managed []string
	for _, entry := range scanPasswd() {
		if unixname.IsManagedUser(entry.name) {
			managed = append(managed, entry.name)
		}
	}
	return managed
}

func (HostInspector) ManagedGroups(namespace string) []string {
	var managed []string
	for _, entry := range scanGroup() {
		if unixname.IsManagedGroup(entry.name, namespace) {
			managed = append(managed, entry.name)
		}
	}
	return managed
}

func (HostInspector) PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

type passwdEntry struct {
	name string
	gid  string
}

type groupEntry struct {
	name    string
	gid     string
	members []string
}

// scanPasswd parses /etc/passwd (name:passwd:uid:gid:gecos:home:shell).
// Malformed lines are skipped; a missing or unreadable file yields an
// empty result.
func scanPasswd() []passwdEntry {
	file, err := os.Open(etcPasswdPath)
	if err != nil {
		return nil
	}
	defer file.Close()

	var entries []passwdEntry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) < 4 || fields[0] == "" {
			continue
		}
		entries = append(entries, passwdEntry{name: fields[0], gid: fields[3]})
	}
	return entries
}

// scanGroup parses /etc/group (name:passwd:gid:member,member,...).
func scanGroup() []groupEntry {
	file, err := os.Open(etcGroupPath)
	if err != nil {
		return nil
	}
	defer file.Close()

	var entries []groupEntry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) < 4 || fields[0] == "" {
			continue
		}
		var members []string
		for _, member := range strings.Split(fields[3], ",") {
			if member != "" {
				members = append(members, member)
			}
		}
		entries = append(entries, groupEntry{name: fields[0], gid: fields[2], members: members})
	}
	return entries
}
