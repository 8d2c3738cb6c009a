// Copyright 2026 The Agor Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"io/fs"

	"github.com/agor-dev/agor/lib/agordb"
)

// RepoGitMode is the permission mask applied to every repo's .git
// tree. Repos are shared only through their group, so "others" never
// gets a bit regardless of per-worktree visibility settings.
const RepoGitMode fs.FileMode = 0o770

// ModeFor maps a worktree's others_fs_access level to the permission
// mask applied across its tree. Owner and group always have full
// access; the level only widens what other host users may do.
func ModeFor(access agordb.OthersAccess) fs.FileMode {
	switch access {
	case agordb.OthersRead:
		return 0o775
	case agordb.OthersWrite:
		return 0o777
	default:
		return 0o770
	}
}
