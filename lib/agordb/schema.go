// Copyright 2026 The Agor Authors
// SPDX-License-Identifier: Apache-2.0

package agordb

// schema is applied idempotently on every Open. The unix_group
// columns are nullable on purpose: NULL means "not yet reconciled",
// and the reconciler's backfill is the only writer.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	display_name  TEXT NOT NULL DEFAULT '',
	unix_username TEXT UNIQUE,
	created_at    TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);

CREATE TABLE IF NOT EXISTS repos (
	id         TEXT PRIMARY KEY,
	slug       TEXT NOT NULL UNIQUE,
	local_path TEXT NOT NULL DEFAULT '',
	unix_group TEXT,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);

CREATE TABLE IF NOT EXISTS worktrees (
	id               TEXT PRIMARY KEY,
	repo_id          TEXT NOT NULL REFERENCES repos(id),
	name             TEXT NOT NULL,
	path             TEXT NOT NULL DEFAULT '',
	unix_group       TEXT,
	others_fs_access TEXT NOT NULL DEFAULT 'none'
	                 CHECK (others_fs_access IN ('none', 'read', 'write')),
	created_at       TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);

CREATE INDEX IF NOT EXISTS idx_worktrees_repo ON worktrees(repo_id);

CREATE TABLE IF NOT EXISTS worktree_ownerships (
	worktree_id TEXT NOT NULL REFERENCES worktrees(id),
	user_id     TEXT NOT NULL REFERENCES users(id),
	created_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
	PRIMARY KEY (worktree_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_ownerships_user ON worktree_ownerships(user_id);
`
