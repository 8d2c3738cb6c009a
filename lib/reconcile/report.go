// Copyright 2026 The Agor Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"fmt"
	"strings"
	"time"
)

// Action records one mutation decision. Decisions are appended in
// phase order, so two runs over identical state produce identical
// action lists whether or not the mutations execute.
type Action struct {
	Category string `json:"category"`
	Entity   string `json:"entity"`
	Detail   string `json:"detail"`
}

// Report accumulates the outcome of a single reconciliation run.
type Report struct {
	// Version is the engine version that produced the report, so
	// journal entries written by different builds stay attributable.
	Version    string    `json:"version,omitempty"`
	DryRun     bool      `json:"dry_run"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	UsersChecked        int `json:"users_checked"`
	UsersCreated        int `json:"users_created"`
	GroupsCreated       int `json:"groups_created"`
	MembershipsAdded    int `json:"memberships_added"`
	ReposBackfilled     int `json:"repos_backfilled"`
	WorktreesBackfilled int `json:"worktrees_backfilled"`
	ReposSynced         int `json:"repos_synced"`
	WorktreesSynced     int `json:"worktrees_synced"`
	PathsSkipped        int `json:"paths_skipped"`
	GroupsDeleted       int `json:"groups_deleted"`
	UsersDeleted        int `json:"users_deleted"`
	Errors              int `json:"errors"`

	Actions []Action `json:"actions,omitempty"`
}

// Changes is the total number of mutations the run applied, or would
// apply under dry-run.
func (r *Report) Changes() int {
	return r.UsersCreated + r.GroupsCreated + r.MembershipsAdded +
		r.ReposBackfilled + r.WorktreesBackfilled +
		r.ReposSynced + r.WorktreesSynced +
		r.GroupsDeleted + r.UsersDeleted
}

// Failed reports whether the run hit any per-entity errors. The
// process exit code is derived from this alone.
func (r *Report) Failed() bool {
	return r.Errors > 0
}

// Summary renders the human-readable one-screen result.
func (r *Report) Summary() string {
	var b strings.Builder
	if r.DryRun {
		b.WriteString("reconciliation complete (dry run)\n")
	} else {
		b.WriteString("reconciliation complete\n")
	}
	counters := []struct {
		label string
		value int
	}{
		{"users checked", r.UsersChecked},
		{"users created", r.UsersCreated},
		{"groups created", r.GroupsCreated},
		{"memberships added", r.MembershipsAdded},
		{"repos backfilled", r.ReposBackfilled},
		{"worktrees backfilled", r.WorktreesBackfilled},
		{"repo trees synced", r.ReposSynced},
		{"worktree trees synced", r.WorktreesSynced},
		{"paths skipped", r.PathsSkipped},
		{"groups deleted", r.GroupsDeleted},
		{"users deleted", r.UsersDeleted},
		{"errors", r.Errors},
	}
	for _, counter := range counters {
		fmt.Fprintf(&b, "  %-22s %d\n", counter.label, counter.value)
	}

	switch {
	case r.DryRun && r.Changes() > 0:
		fmt.Fprintf(&b, "\n%d change(s) pending. Re-run without --dry-run to apply.\n", r.Changes())
	case !r.DryRun && r.Changes() > 0:
		fmt.Fprintf(&b, "\n%d change(s) applied.\n", r.Changes())
	default:
		b.WriteString("\nconverged; no changes required.\n")
	}
	if r.Errors > 0 {
		fmt.Fprintf(&b, "%d error(s); see the log for details.\n", r.Errors)
	}
	return b.String()
}
