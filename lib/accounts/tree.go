// Copyright 2026 The Agor Authors
// SPDX-License-Identifier: Apache-2.0

package accounts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
)

// syncTree converges ownership and permissions under root in two
// discrete recursive passes: group first, then mode. Each pass
// touches only entries that diverge, so re-running over a converged
// tree performs zero system calls beyond the walk itself. A gid < 0
// means the owning group is not resolvable (dry-run before the group
// exists); every entry then counts as divergent and nothing is
// applied for the group pass.
//
// Directories receive the mode verbatim. Regular files receive the
// mode with execute bits cleared unless the file is already
// executable, so scripts and binaries keep their execute bits without
// every source file gaining one. Symlinks are never chmodded.
//
// Per-entry failures are collected and joined rather than aborting
// the walk; the returned count is the number of divergent entries
// found.
func syncTree(ctx context.Context, root string, gid int, mode fs.FileMode, apply bool) (int, error) {
	changed := 0
	var walkErrors []error

	// Group pass.
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			walkErrors = append(walkErrors, fmt.Errorf("%s: %w", path, err))
			return nil // continue walking
		}
		info, err := entry.Info()
		if err != nil {
			walkErrors = append(walkErrors, fmt.Errorf("%s: %w", path, err))
			return nil
		}
		stat, ok := info.Sys().(*syscall.Stat_t)
		if !ok {
			walkErrors = append(walkErrors, fmt.Errorf("%s: cannot read ownership", path))
			return nil
		}
		if gid >= 0 && int(stat.Gid) == gid {
			return nil
		}
		changed++
		if apply && gid >= 0 {
			if chownErr := os.Lchown(path, -1, gid); chownErr != nil {
				walkErrors = append(walkErrors, fmt.Errorf("chown %s: %w", path, chownErr))
			}
		}
		return nil
	})
	if err != nil {
		return changed, fmt.Errorf("walking %s: %w", root, err)
	}

	// Mode pass.
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			// Already collected during the group pass.
			return nil
		}
		if entry.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return nil
		}
		target := mode.Perm()
		if !entry.IsDir() && info.Mode().Perm()&0o111 == 0 {
			target &^= 0o111
		}
		if info.Mode().Perm() == target {
			return nil
		}
		changed++
		if apply {
			if chmodErr := os.Chmod(path, target); chmodErr != nil {
				walkErrors = append(walkErrors, fmt.Errorf("chmod %s: %w", path, chmodErr))
			}
		}
		return nil
	})
	if err != nil {
		return changed, fmt.Errorf("walking %s: %w", root, err)
	}

	if len(walkErrors) > 0 {
		return changed, fmt.Errorf("syncing %s: %w", root, errors.Join(walkErrors...))
	}
	return changed, nil
}
