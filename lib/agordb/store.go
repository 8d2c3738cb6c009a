// Copyright 2026 The Agor Authors
// SPDX-License-Identifier: Apache-2.0

package agordb

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// ErrUnixGroupSet is returned by the backfill writers when the row's
// unix_group could not be assigned: either it already holds a value
// (the column is write-once) or the row does not exist.
var ErrUnixGroupSet = errors.New("unix_group already assigned or row missing")

// OthersAccess is a worktree's filesystem policy for users outside
// its owning group.
type OthersAccess string

const (
	OthersNone  OthersAccess = "none"
	OthersRead  OthersAccess = "read"
	OthersWrite OthersAccess = "write"
)

// User is an application user. UnixUsername is empty when the user
// has no OS account and is therefore excluded from reconciliation.
type User struct {
	ID           string `json:"id"`
	DisplayName  string `json:"display_name"`
	UnixUsername string `json:"unix_username,omitempty"`
}

// Repo is a managed git repository. UnixGroup is empty until the
// reconciler backfills it.
type Repo struct {
	ID        string `json:"id"`
	Slug      string `json:"slug"`
	LocalPath string `json:"local_path,omitempty"`
	UnixGroup string `json:"unix_group,omitempty"`
}

// Worktree is a checked-out working copy belonging to one repo.
type Worktree struct {
	ID           string       `json:"id"`
	RepoID       string       `json:"repo_id"`
	Name         string       `json:"name"`
	Path         string       `json:"path,omitempty"`
	UnixGroup    string       `json:"unix_group,omitempty"`
	OthersAccess OthersAccess `json:"others_fs_access"`
}

// Ownership is one row of the user→worktree join, carrying the
// worktree's repo so desired-state computation needs no further
// queries.
type Ownership struct {
	UserID     string `json:"user_id"`
	WorktreeID string `json:"worktree_id"`
	RepoID     string `json:"repo_id"`
}

// ListUsers returns all users in ID order, including those without a
// unix_username.
func (db *DB) ListUsers(ctx context.Context) ([]User, error) {
	conn, err := db.take(ctx)
	if err != nil {
		return nil, err
	}
	defer db.put(conn)

	var users []User
	err = sqlitex.Execute(conn,
		`SELECT id, display_name, unix_username FROM users ORDER BY id`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				u := User{ID: stmt.ColumnText(0), DisplayName: stmt.ColumnText(1)}
				if !stmt.ColumnIsNull(2) {
					u.UnixUsername = stmt.ColumnText(2)
				}
				users = append(users, u)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("agordb: list users: %w", err)
	}
	return users, nil
}

// ListRepos returns all repos in ID order.
func (db *DB) ListRepos(ctx context.Context) ([]Repo, error) {
	conn, err := db.take(ctx)
	if err != nil {
		return nil, err
	}
	defer db.put(conn)

	var repos []Repo
	err = sqlitex.Execute(conn,
		`SELECT id, slug, local_path, unix_group FROM repos ORDER BY id`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				r := Repo{ID: stmt.ColumnText(0), Slug: stmt.ColumnText(1), LocalPath: stmt.ColumnText(2)}
				if !stmt.ColumnIsNull(3) {
					r.UnixGroup = stmt.ColumnText(3)
				}
				repos = append(repos, r)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("agordb: list repos: %w", err)
	}
	return repos, nil
}

// ListWorktrees returns all worktrees in ID order.
func (db *DB) ListWorktrees(ctx context.Context) ([]Worktree, error) {
	conn, err := db.take(ctx)
	if err != nil {
		return nil, err
	}
	defer db.put(conn)

	var worktrees []Worktree
	err = sqlitex.Execute(conn,
		`SELECT id, repo_id, name, path, unix_group, others_fs_access
		 FROM worktrees ORDER BY id`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				w := Worktree{
					ID:           stmt.ColumnText(0),
					RepoID:       stmt.ColumnText(1),
					Name:         stmt.ColumnText(2),
					Path:         stmt.ColumnText(3),
					OthersAccess: OthersAccess(stmt.ColumnText(5)),
				}
				if !stmt.ColumnIsNull(4) {
					w.UnixGroup = stmt.ColumnText(4)
				}
				worktrees = append(worktrees, w)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("agordb: list worktrees: %w", err)
	}
	return worktrees, nil
}

// ListOwnerships returns the full ownership join in one query: each
// row pre-joined with its worktree's repo ID. The reconciler's
// desired-state pass iterates this once instead of querying per user.
func (db *DB) ListOwnerships(ctx context.Context) ([]Ownership, error) {
	conn, err := db.take(ctx)
	if err != nil {
		return nil, err
	}
	defer db.put(conn)

	var ownerships []Ownership
	err = sqlitex.Execute(conn,
		`SELECT wo.user_id, wo.worktree_id, w.repo_id
		 FROM worktree_ownerships wo
		 JOIN worktrees w ON w.id = wo.worktree_id
		 ORDER BY wo.user_id, wo.worktree_id`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				ownerships = append(ownerships, Ownership{
					UserID:     stmt.ColumnText(0),
					WorktreeID: stmt.ColumnText(1),
					RepoID:     stmt.ColumnText(2),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("agordb: list ownerships: %w", err)
	}
	return ownerships, nil
}

// SetRepoUnixGroup assigns a repo's unix_group. Write-once: only a
// NULL column is filled; ErrUnixGroupSet otherwise.
func (db *DB) SetRepoUnixGroup(ctx context.Context, repoID, group string) error {
	return db.backfillGroup(ctx, "repos", repoID, group)
}

// SetWorktreeUnixGroup assigns a worktree's unix_group. Write-once.
func (db *DB) SetWorktreeUnixGroup(ctx context.Context, worktreeID, group string) error {
	return db.backfillGroup(ctx, "worktrees", worktreeID, group)
}

func (db *DB) backfillGroup(ctx context.Context, table, id, group string) error {
	conn, err := db.take(ctx)
	if err != nil {
		return err
	}
	defer db.put(conn)

	query := fmt.Sprintf(`UPDATE %s SET unix_group = ? WHERE id = ? AND unix_group IS NULL`, table)
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: []any{group, id},
	})
	if err != nil {
		return fmt.Errorf("agordb: backfill %s %s: %w", table, id, err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("agordb: backfill %s %s: %w", table, id, ErrUnixGroupSet)
	}
	db.logger.Debug("unix_group backfilled", "table", table, "id", id, "group", group)
	return nil
}

// CreateUser inserts a user, generating an ID when none is given.
// An empty UnixUsername is stored as NULL.
func (db *DB) CreateUser(ctx context.Context, u User) (User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	conn, err := db.take(ctx)
	if err != nil {
		return User{}, err
	}
	defer db.put(conn)

	var unixUsername any
	if u.UnixUsername != "" {
		unixUsername = u.UnixUsername
	}
	err = sqlitex.Execute(conn,
		`INSERT INTO users (id, display_name, unix_username) VALUES (?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{u.ID, u.DisplayName, unixUsername}})
	if err != nil {
		return User{}, fmt.Errorf("agordb: create user %s: %w", u.ID, err)
	}
	return u, nil
}

// CreateRepo inserts a repo, generating an ID when none is given.
func (db *DB) CreateRepo(ctx context.Context, r Repo) (Repo, error) {
	if r.Slug == "" {
		return Repo{}, fmt.Errorf("agordb: create repo: slug is required")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	conn, err := db.take(ctx)
	if err != nil {
		return Repo{}, err
	}
	defer db.put(conn)

	var unixGroup any
	if r.UnixGroup != "" {
		unixGroup = r.UnixGroup
	}
	err = sqlitex.Execute(conn,
		`INSERT INTO repos (id, slug, local_path, unix_group) VALUES (?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{r.ID, r.Slug, r.LocalPath, unixGroup}})
	if err != nil {
		return Repo{}, fmt.Errorf("agordb: create repo %s: %w", r.Slug, err)
	}
	return r, nil
}

// CreateWorktree inserts a worktree, generating an ID when none is
// given. An empty OthersAccess defaults to "none".
func (db *DB) CreateWorktree(ctx context.Context, w Worktree) (Worktree, error) {
	if w.RepoID == "" {
		return Worktree{}, fmt.Errorf("agordb: create worktree: repo ID is required")
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.OthersAccess == "" {
		w.OthersAccess = OthersNone
	}
	conn, err := db.take(ctx)
	if err != nil {
		return Worktree{}, err
	}
	defer db.put(conn)

	var unixGroup any
	if w.UnixGroup != "" {
		unixGroup = w.UnixGroup
	}
	err = sqlitex.Execute(conn,
		`INSERT INTO worktrees (id, repo_id, name, path, unix_group, others_fs_access)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{w.ID, w.RepoID, w.Name, w.Path, unixGroup, string(w.OthersAccess)}})
	if err != nil {
		return Worktree{}, fmt.Errorf("agordb: create worktree %s: %w", w.ID, err)
	}
	return w, nil
}

// AddOwnership grants a user ownership of a worktree.
func (db *DB) AddOwnership(ctx context.Context, worktreeID, userID string) error {
	conn, err := db.take(ctx)
	if err != nil {
		return err
	}
	defer db.put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO worktree_ownerships (worktree_id, user_id) VALUES (?, ?)`,
		&sqlitex.ExecOptions{Args: []any{worktreeID, userID}})
	if err != nil {
		return fmt.Errorf("agordb: add ownership user %s worktree %s: %w", userID, worktreeID, err)
	}
	return nil
}

// RemoveOwnership revokes a user's ownership of a worktree. Removing
// an absent row is a no-op.
func (db *DB) RemoveOwnership(ctx context.Context, worktreeID, userID string) error {
	conn, err := db.take(ctx)
	if err != nil {
		return err
	}
	defer db.put(conn)

	err = sqlitex.Execute(conn,
		`DELETE FROM worktree_ownerships WHERE worktree_id = ? AND user_id = ?`,
		&sqlitex.ExecOptions{Args: []any{worktreeID, userID}})
	if err != nil {
		return fmt.Errorf("agordb: remove ownership user %s worktree %s: %w", userID, worktreeID, err)
	}
	return nil
}
