// Copyright 2026 The Agor Authors
// SPDX-License-Identifier: Apache-2.0

package agordb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{
		Path: filepath.Join(t.TempDir(), "agor_test.db"),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return db
}

func TestOpenAppliesSchema(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	users, err := db.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 0 {
		t.Errorf("fresh database has %d users", len(users))
	}
	ownerships, err := db.ListOwnerships(ctx)
	if err != nil {
		t.Fatalf("ListOwnerships: %v", err)
	}
	if len(ownerships) != 0 {
		t.Errorf("fresh database has %d ownerships", len(ownerships))
	}
}

func TestCreateAndListRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	alice, err := db.CreateUser(ctx, User{DisplayName: "Alice", UnixUsername: "alice"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if alice.ID == "" {
		t.Fatal("CreateUser did not generate an ID")
	}
	appOnly, err := db.CreateUser(ctx, User{DisplayName: "App Only"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if appOnly.ID == alice.ID {
		t.Fatal("generated IDs collide")
	}

	repo, err := db.CreateRepo(ctx, Repo{Slug: "backend", LocalPath: "/srv/repos/backend"})
	if err != nil {
		t.Fatalf("CreateRepo: %v", err)
	}
	worktree, err := db.CreateWorktree(ctx, Worktree{
		RepoID:       repo.ID,
		Name:         "feature",
		Path:         "/srv/worktrees/feature",
		OthersAccess: OthersRead,
	})
	if err != nil {
		t.Fatalf("CreateWorktree: %v", err)
	}
	if err := db.AddOwnership(ctx, worktree.ID, alice.ID); err != nil {
		t.Fatalf("AddOwnership: %v", err)
	}

	users, err := db.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("ListUsers returned %d users, want 2", len(users))
	}
	byID := map[string]User{users[0].ID: users[0], users[1].ID: users[1]}
	if byID[alice.ID].UnixUsername != "alice" {
		t.Errorf("alice UnixUsername = %q, want alice", byID[alice.ID].UnixUsername)
	}
	if byID[appOnly.ID].UnixUsername != "" {
		t.Errorf("NULL unix_username surfaced as %q, want empty", byID[appOnly.ID].UnixUsername)
	}

	worktrees, err := db.ListWorktrees(ctx)
	if err != nil {
		t.Fatalf("ListWorktrees: %v", err)
	}
	if len(worktrees) != 1 {
		t.Fatalf("ListWorktrees returned %d, want 1", len(worktrees))
	}
	if worktrees[0].OthersAccess != OthersRead {
		t.Errorf("OthersAccess = %q, want read", worktrees[0].OthersAccess)
	}
	if worktrees[0].UnixGroup != "" {
		t.Errorf("unreconciled worktree UnixGroup = %q, want empty", worktrees[0].UnixGroup)
	}

	ownerships, err := db.ListOwnerships(ctx)
	if err != nil {
		t.Fatalf("ListOwnerships: %v", err)
	}
	want := Ownership{UserID: alice.ID, WorktreeID: worktree.ID, RepoID: repo.ID}
	if len(ownerships) != 1 || ownerships[0] != want {
		t.Errorf("ListOwnerships = %v, want [%v]", ownerships, want)
	}
}

func TestBackfillIsWriteOnce(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	repo, err := db.CreateRepo(ctx, Repo{Slug: "backend"})
	if err != nil {
		t.Fatalf("CreateRepo: %v", err)
	}

	if err := db.SetRepoUnixGroup(ctx, repo.ID, "agor_rp_0199cafe"); err != nil {
		t.Fatalf("first backfill: %v", err)
	}
	repos, err := db.ListRepos(ctx)
	if err != nil {
		t.Fatalf("ListRepos: %v", err)
	}
	if repos[0].UnixGroup != "agor_rp_0199cafe" {
		t.Errorf("UnixGroup = %q after backfill", repos[0].UnixGroup)
	}

	// The column is write-once: a second assignment must fail and
	// leave the stored value untouched.
	err = db.SetRepoUnixGroup(ctx, repo.ID, "agor_rp_other000")
	if !errors.Is(err, ErrUnixGroupSet) {
		t.Fatalf("second backfill error = %v, want ErrUnixGroupSet", err)
	}
	repos, err = db.ListRepos(ctx)
	if err != nil {
		t.Fatalf("ListRepos: %v", err)
	}
	if repos[0].UnixGroup != "agor_rp_0199cafe" {
		t.Errorf("UnixGroup changed to %q after rejected backfill", repos[0].UnixGroup)
	}

	// Missing rows are rejected the same way.
	err = db.SetWorktreeUnixGroup(ctx, "no-such-worktree", "agor_wt_deadbeef")
	if !errors.Is(err, ErrUnixGroupSet) {
		t.Errorf("backfill of missing row error = %v, want ErrUnixGroupSet", err)
	}
}

func TestForeignKeysAreEnforced(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.CreateWorktree(ctx, Worktree{RepoID: "no-such-repo", Name: "x"}); err == nil {
		t.Error("creating a worktree under a missing repo should fail")
	}
	if err := db.AddOwnership(ctx, "no-such-worktree", "no-such-user"); err == nil {
		t.Error("ownership of a missing worktree should fail")
	}
}

func TestRemoveOwnership(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	user, err := db.CreateUser(ctx, User{UnixUsername: "alice"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	repo, err := db.CreateRepo(ctx, Repo{Slug: "backend"})
	if err != nil {
		t.Fatalf("CreateRepo: %v", err)
	}
	worktree, err := db.CreateWorktree(ctx, Worktree{RepoID: repo.ID, Name: "main"})
	if err != nil {
		t.Fatalf("CreateWorktree: %v", err)
	}
	if err := db.AddOwnership(ctx, worktree.ID, user.ID); err != nil {
		t.Fatalf("AddOwnership: %v", err)
	}

	if err := db.RemoveOwnership(ctx, worktree.ID, user.ID); err != nil {
		t.Fatalf("RemoveOwnership: %v", err)
	}
	ownerships, err := db.ListOwnerships(ctx)
	if err != nil {
		t.Fatalf("ListOwnerships: %v", err)
	}
	if len(ownerships) != 0 {
		t.Errorf("ownership survived removal: %v", ownerships)
	}

	// Removing an absent row is a no-op, matching the engine's
	// retry-safe posture.
	if err := db.RemoveOwnership(ctx, worktree.ID, user.ID); err != nil {
		t.Errorf("removing absent ownership: %v", err)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agor_test.db")
	ctx := context.Background()

	db, err := Open(ctx, Config{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := db.CreateUser(ctx, User{UnixUsername: "alice"}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(ctx, Config{Path: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	users, err := reopened.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 1 || users[0].UnixUsername != "alice" {
		t.Errorf("reopened database users = %v", users)
	}
}
