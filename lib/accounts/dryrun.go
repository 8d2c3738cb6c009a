// Copyright 2026 The Agor Authors
// SPDX-License-Identifier: Apache-2.0

package accounts

import (
	"context"
	"io/fs"
	"log/slog"
	"strings"
)

// DryRunMutator executes nothing. Each operation logs the exact
// command the executing mutator would have run and reports success,
// so the caller's control flow is identical between simulated and
// real runs. Tree sync performs the same read-only walk as the real
// pass and returns the would-change count.
type DryRunMutator struct {
	logger *slog.Logger
}

func NewDryRunMutator(logger *slog.Logger) *DryRunMutator {
	return &DryRunMutator{logger: logger}
}

func (m *DryRunMutator) would(argv []string) {
	m.logger.Info("would run", "command", strings.Join(argv, " "))
}

func (m *DryRunMutator) CreateUser(ctx context.Context, username string) error {
	m.would(createUserArgs(username))
	return nil
}

func (m *DryRunMutator) CreateGroup(ctx context.Context, group string) error {
	m.would(createGroupArgs(group))
	return nil
}

func (m *DryRunMutator) AddUserToGroup(ctx context.Context, username, group string) error {
	m.would(addUserToGroupArgs(username, group))
	return nil
}

func (m *DryRunMutator) DeleteUser(ctx context.Context, username string, keepHome bool) error {
	m.would(deleteUserArgs(username, keepHome))
	return nil
}

func (m *DryRunMutator) DeleteGroup(ctx context.Context, group string) error {
	m.would(deleteGroupArgs(group))
	return nil
}

// SetTreeGroupAndMode walks the tree read-only and counts the entries
// the real mutator would change. When the target group does not exist
// yet (it would have been created earlier in a real run) the gid is
// unknown and every entry counts as a pending group change.
func (m *DryRunMutator) SetTreeGroupAndMode(ctx context.Context, path, group string, mode fs.FileMode) (int, error) {
	gid := -1
	if resolved, err := lookupGID(group); err == nil {
		gid = resolved
	}
	changed, err := syncTree(ctx, path, gid, mode, false)
	if err != nil {
		return changed, err
	}
	if changed > 0 {
		m.logger.Info("would converge tree",
			"path", path,
			"group", group,
			"mode", mode.String(),
			"entries", changed,
		)
	}
	return changed, nil
}
