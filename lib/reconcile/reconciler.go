// Copyright 2026 The Agor Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/agor-dev/agor/lib/accounts"
	"github.com/agor-dev/agor/lib/agordb"
	"github.com/agor-dev/agor/lib/clock"
	"github.com/agor-dev/agor/lib/unixname"
	"github.com/agor-dev/agor/lib/version"
)

// Cleanup selects which classes of stale managed entities a run may
// delete. Both default to off; reconciliation alone never destroys.
type Cleanup struct {
	Groups bool
	Users  bool
}

// Config carries the dependencies for one reconciler. DB is the
// system of record; Inspector and Mutator are the only paths to the
// operating system.
type Config struct {
	DB         *agordb.DB
	Inspector  accounts.Inspector
	Mutator    accounts.Mutator
	DaemonUser string
	DryRun     bool
	Cleanup    Cleanup
	Logger     *slog.Logger

	// Clock stamps the report; defaults to clock.Real().
	Clock clock.Clock
}

// Reconciler drives one convergence run. It is single-use per Run
// call and not safe for concurrent use; the run lock in the CLI keeps
// host-wide execution serialized.
type Reconciler struct {
	db         *agordb.DB
	inspector  accounts.Inspector
	mutator    accounts.Mutator
	daemonUser string
	dryRun     bool
	cleanup    Cleanup
	logger     *slog.Logger
	clock      clock.Clock

	report *Report
	// ensuredGroups and daemonGroups remember what this run already
	// settled. Under dry-run the inspector never observes the
	// would-be mutations, so without this memory the same decision
	// would be recorded once per phase that touches the group.
	ensuredGroups map[string]bool
	daemonGroups  map[string]bool
	daemonAbsent  bool
}

// New validates the configuration and returns a reconciler. Missing
// dependencies are configuration faults and fail before any phase
// runs.
func New(cfg Config) (*Reconciler, error) {
	if cfg.DB == nil {
		return nil, errors.New("database handle is required")
	}
	if cfg.Inspector == nil {
		return nil, errors.New("inspector is required")
	}
	if cfg.Mutator == nil {
		return nil, errors.New("mutator is required")
	}
	if cfg.DaemonUser == "" {
		return nil, errors.New("daemon user is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	tick := cfg.Clock
	if tick == nil {
		tick = clock.Real()
	}
	return &Reconciler{
		db:         cfg.DB,
		inspector:  cfg.Inspector,
		mutator:    cfg.Mutator,
		daemonUser: cfg.DaemonUser,
		dryRun:     cfg.DryRun,
		cleanup:    cfg.Cleanup,
		logger:     logger,
		clock:      tick,
	}, nil
}

// Run executes the reconciliation phases in order and returns the
// report. The returned error covers only faults that prevent the run
// from proceeding, such as an unreadable database; per-entity
// failures are counted in the report instead.
func (r *Reconciler) Run(ctx context.Context) (*Report, error) {
	report := &Report{Version: version.Short(), DryRun: r.dryRun, StartedAt: r.clock.Now()}
	defer func() { report.FinishedAt = r.clock.Now() }()
	r.report = report
	r.ensuredGroups = make(map[string]bool)
	r.daemonGroups = make(map[string]bool)

	r.logger.Info("starting reconciliation", "dry_run", r.dryRun,
		"cleanup_groups", r.cleanup.Groups, "cleanup_users", r.cleanup.Users)

	r.daemonAbsent = !r.inspector.UserExists(r.daemonUser)
	if r.daemonAbsent {
		r.countError("daemon user lookup", r.daemonUser,
			errors.New("configured daemon user does not exist; skipping its group grants"))
	}

	r.ensureGroup(ctx, unixname.UsersGroup, "global")
	if err := r.backfillRepos(ctx); err != nil {
		return report, err
	}
	if err := r.backfillWorktrees(ctx); err != nil {
		return report, err
	}
	if err := r.reconcileUsers(ctx); err != nil {
		return report, err
	}
	if err := r.syncFilesystem(ctx); err != nil {
		return report, err
	}
	if r.cleanup.Groups || r.cleanup.Users {
		if err := r.runCleanup(ctx); err != nil {
			return report, err
		}
	}

	r.logger.Info("reconciliation finished",
		"changes", report.Changes(), "errors", report.Errors)
	return report, nil
}

// backfillRepos ensures every repo's group exists, grants the daemon
// membership, and persists derived names for rows that have none yet.
func (r *Reconciler) backfillRepos(ctx context.Context) error {
	repos, err := r.db.ListRepos(ctx)
	if err != nil {
		return fmt.Errorf("listing repos: %w", err)
	}
	for _, repo := range repos {
		group := resolveRepoGroup(repo)
		if !r.ensureGroup(ctx, group, "repo "+repo.Slug) {
			continue
		}
		r.ensureDaemonMember(ctx, group)
		if repo.UnixGroup != "" {
			continue
		}
		r.act("repo-backfill", repo.Slug, "assign unix_group "+group)
		if !r.dryRun {
			if err := r.db.SetRepoUnixGroup(ctx, repo.ID, group); err != nil {
				r.countError("backfill repo", repo.Slug, err)
				continue
			}
		}
		r.report.ReposBackfilled++
	}
	return nil
}

func (r *Reconciler) backfillWorktrees(ctx context.Context) error {
	worktrees, err := r.db.ListWorktrees(ctx)
	if err != nil {
		return fmt.Errorf("listing worktrees: %w", err)
	}
	for _, worktree := range worktrees {
		group := resolveWorktreeGroup(worktree)
		if !r.ensureGroup(ctx, group, "worktree "+worktreeLabel(worktree)) {
			continue
		}
		r.ensureDaemonMember(ctx, group)
		if worktree.UnixGroup != "" {
			continue
		}
		r.act("worktree-backfill", worktreeLabel(worktree), "assign unix_group "+group)
		if !r.dryRun {
			if err := r.db.SetWorktreeUnixGroup(ctx, worktree.ID, group); err != nil {
				r.countError("backfill worktree", worktreeLabel(worktree), err)
				continue
			}
		}
		r.report.WorktreesBackfilled++
	}
	return nil
}

// reconcileUsers creates missing accounts and adds missing group
// memberships. The database is re-read here so the desired state
// reflects any groups backfilled earlier in the same run.
func (r *Reconciler) reconcileUsers(ctx context.Context) error {
	users, err := r.db.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("listing users: %w", err)
	}
	repos, err := r.db.ListRepos(ctx)
	if err != nil {
		return fmt.Errorf("listing repos: %w", err)
	}
	worktrees, err := r.db.ListWorktrees(ctx)
	if err != nil {
		return fmt.Errorf("listing worktrees: %w", err)
	}
	ownerships, err := r.db.ListOwnerships(ctx)
	if err != nil {
		return fmt.Errorf("listing ownerships: %w", err)
	}

	desired := BuildDesired(users, repos, worktrees, ownerships)
	for _, user := range desired.Users {
		r.report.UsersChecked++
		if !r.inspector.UserExists(user.Username) {
			r.act("user-create", user.Username, "create OS account")
			if err := r.mutator.CreateUser(ctx, user.Username); err != nil {
				r.countError("create user", user.Username, err)
				continue
			}
			r.report.UsersCreated++
		}
		have := r.inspector.GroupsOf(user.Username)
		if user.Username == r.daemonUser {
			// Grants settled by the backfill phases; under dry-run
			// the inspector never observes them.
			for group := range r.daemonGroups {
				have[group] = true
			}
		}
		for _, group := range user.Groups {
			if !have[group] {
				if !r.ensureGroup(ctx, group, "user "+user.Username) {
					continue
				}
				r.act("membership-add", user.Username, "add to group "+group)
				if err := r.mutator.AddUserToGroup(ctx, user.Username, group); err != nil {
					r.countError("add membership "+group, user.Username, err)
					continue
				}
				r.report.MembershipsAdded++
				if user.Username == r.daemonUser {
					r.daemonGroups[group] = true
				}
			}
			if group != unixname.UsersGroup {
				r.ensureDaemonMember(ctx, group)
			}
		}
	}
	return nil
}

// syncFilesystem converges tree group ownership and permission modes:
// repos get their .git locked to the repo group, worktrees get the
// mode derived from their visibility level. Entities without a known
// path, or whose path is missing on disk, are skipped and counted.
func (r *Reconciler) syncFilesystem(ctx context.Context) error {
	repos, err := r.db.ListRepos(ctx)
	if err != nil {
		return fmt.Errorf("listing repos: %w", err)
	}
	for _, repo := range repos {
		if repo.LocalPath == "" {
			r.report.PathsSkipped++
			r.logger.Debug("repo has no local path", "repo", repo.Slug)
			continue
		}
		gitPath := filepath.Join(repo.LocalPath, ".git")
		r.syncTree(ctx, "repo", repo.Slug, gitPath, resolveRepoGroup(repo), RepoGitMode)
	}

	worktrees, err := r.db.ListWorktrees(ctx)
	if err != nil {
		return fmt.Errorf("listing worktrees: %w", err)
	}
	for _, worktree := range worktrees {
		if worktree.Path == "" {
			r.report.PathsSkipped++
			r.logger.Debug("worktree has no path", "worktree", worktreeLabel(worktree))
			continue
		}
		r.syncTree(ctx, "worktree", worktreeLabel(worktree), worktree.Path,
			resolveWorktreeGroup(worktree), ModeFor(worktree.OthersAccess))
	}
	return nil
}

func (r *Reconciler) syncTree(ctx context.Context, kind, entity, path, group string, mode fs.FileMode) {
	if !r.inspector.PathExists(path) {
		r.report.PathsSkipped++
		r.logger.Warn("path missing; skipping permission sync",
			"kind", kind, "entity", entity, "path", path)
		return
	}
	changed, err := r.mutator.SetTreeGroupAndMode(ctx, path, group, mode)
	if err != nil {
		r.countError("sync "+kind+" tree", entity, err)
	}
	if changed > 0 {
		r.act(kind+"-sync", entity,
			fmt.Sprintf("set group %s mode %o on %s (%d entries)", group, mode.Perm(), path, changed))
		if kind == "repo" {
			r.report.ReposSynced++
		} else {
			r.report.WorktreesSynced++
		}
	}
}

// runCleanup deletes managed groups and users that no database row
// accounts for. The expected sets are rebuilt from a fresh read so
// names backfilled earlier in this run are never considered stale.
func (r *Reconciler) runCleanup(ctx context.Context) error {
	users, err := r.db.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("listing users: %w", err)
	}
	repos, err := r.db.ListRepos(ctx)
	if err != nil {
		return fmt.Errorf("listing repos: %w", err)
	}
	worktrees, err := r.db.ListWorktrees(ctx)
	if err != nil {
		return fmt.Errorf("listing worktrees: %w", err)
	}

	if r.cleanup.Groups {
		expected := map[string]bool{unixname.UsersGroup: true}
		for _, repo := range repos {
			expected[resolveRepoGroup(repo)] = true
		}
		for _, worktree := range worktrees {
			expected[resolveWorktreeGroup(worktree)] = true
		}
		for _, namespace := range []string{unixname.NamespaceWorktree, unixname.NamespaceRepo} {
			for _, group := range r.inspector.ManagedGroups(namespace) {
				if expected[group] {
					continue
				}
				r.act("group-delete", group, "delete stale managed group")
				if err := r.mutator.DeleteGroup(ctx, group); err != nil {
					r.countError("delete group", group, err)
					continue
				}
				r.report.GroupsDeleted++
			}
		}
	}

	if r.cleanup.Users {
		expected := map[string]bool{r.daemonUser: true}
		for _, user := range users {
			if user.UnixUsername != "" {
				expected[user.UnixUsername] = true
			}
		}
		for _, username := range r.inspector.ManagedUsers() {
			if expected[username] {
				continue
			}
			r.act("user-delete", username, "delete stale managed user, home preserved")
			if err := r.mutator.DeleteUser(ctx, username, true); err != nil {
				r.countError("delete user", username, err)
				continue
			}
			r.report.UsersDeleted++
		}
	}
	return nil
}

// ensureGroup confirms the group exists, creating it when absent.
// Groups settled earlier in the run are not re-checked, which keeps
// decision flow identical between dry and real runs.
func (r *Reconciler) ensureGroup(ctx context.Context, group, entity string) bool {
	if r.ensuredGroups[group] {
		return true
	}
	if r.inspector.GroupExists(group) {
		r.ensuredGroups[group] = true
		return true
	}
	r.act("group-create", entity, "create group "+group)
	if err := r.mutator.CreateGroup(ctx, group); err != nil {
		r.countError("create group "+group, entity, err)
		return false
	}
	r.ensuredGroups[group] = true
	r.report.GroupsCreated++
	return true
}

// ensureDaemonMember grants the daemon user membership in a repo or
// worktree group. Each group is settled at most once per run.
func (r *Reconciler) ensureDaemonMember(ctx context.Context, group string) {
	if r.daemonAbsent || r.daemonGroups[group] {
		return
	}
	r.daemonGroups[group] = true
	if r.inspector.IsMember(r.daemonUser, group) {
		return
	}
	r.act("membership-add", r.daemonUser, "add to group "+group)
	if err := r.mutator.AddUserToGroup(ctx, r.daemonUser, group); err != nil {
		r.countError("add membership "+group, r.daemonUser, err)
		return
	}
	r.report.MembershipsAdded++
}

func (r *Reconciler) act(category, entity, detail string) {
	r.report.Actions = append(r.report.Actions, Action{Category: category, Entity: entity, Detail: detail})
	r.logger.Debug("decision", "category", category, "entity", entity, "detail", detail)
}

func (r *Reconciler) countError(operation, entity string, err error) {
	r.report.Errors++
	r.logger.Error("reconciliation error", "operation", operation, "entity", entity, "error", err)
}

func worktreeLabel(worktree agordb.Worktree) string {
	if worktree.Name != "" {
		return worktree.Name
	}
	return worktree.ID
}
