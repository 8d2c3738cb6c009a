// Copyright 2026 The Agor Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"sort"

	"github.com/agor-dev/agor/lib/agordb"
	"github.com/agor-dev/agor/lib/unixname"
)

// DesiredUser is one user's target OS state: the account name and the
// full set of groups the account must belong to.
type DesiredUser struct {
	ID       string
	Username string
	Groups   []string
}

// DesiredState is the complete target computed from a database
// snapshot. Group maps are keyed by entity ID and hold the resolved
// group name: the stored unix_group when one is assigned, otherwise
// the deterministic derivation from the entity ID.
type DesiredState struct {
	Users          []DesiredUser
	RepoGroups     map[string]string
	WorktreeGroups map[string]string
}

// resolveRepoGroup returns the repo's effective group name, preferring
// a stored assignment over derivation. Derivation is deterministic, so
// an unpersisted backfill still resolves to the same name.
func resolveRepoGroup(repo agordb.Repo) string {
	if repo.UnixGroup != "" {
		return repo.UnixGroup
	}
	return unixname.RepoGroup(repo.ID)
}

func resolveWorktreeGroup(worktree agordb.Worktree) string {
	if worktree.UnixGroup != "" {
		return worktree.UnixGroup
	}
	return unixname.WorktreeGroup(worktree.ID)
}

// BuildDesired computes the target OS state from one database
// snapshot. Every user with a unix_username belongs to the global
// group; each worktree ownership adds the worktree's group and,
// transitively, the containing repo's group. Users without a
// unix_username have no OS presence and are excluded entirely.
func BuildDesired(users []agordb.User, repos []agordb.Repo, worktrees []agordb.Worktree, ownerships []agordb.Ownership) DesiredState {
	state := DesiredState{
		RepoGroups:     make(map[string]string, len(repos)),
		WorktreeGroups: make(map[string]string, len(worktrees)),
	}
	for _, repo := range repos {
		state.RepoGroups[repo.ID] = resolveRepoGroup(repo)
	}
	for _, worktree := range worktrees {
		state.WorktreeGroups[worktree.ID] = resolveWorktreeGroup(worktree)
	}

	groupsByUser := make(map[string]map[string]bool, len(users))
	for _, ownership := range ownerships {
		groups := groupsByUser[ownership.UserID]
		if groups == nil {
			groups = make(map[string]bool)
			groupsByUser[ownership.UserID] = groups
		}
		if group, ok := state.WorktreeGroups[ownership.WorktreeID]; ok {
			groups[group] = true
		}
		if group, ok := state.RepoGroups[ownership.RepoID]; ok {
			groups[group] = true
		}
	}

	for _, user := range users {
		if user.UnixUsername == "" {
			continue
		}
		set := map[string]bool{unixname.UsersGroup: true}
		for group := range groupsByUser[user.ID] {
			set[group] = true
		}
		groups := make([]string, 0, len(set))
		for group := range set {
			groups = append(groups, group)
		}
		sort.Strings(groups)
		state.Users = append(state.Users, DesiredUser{
			ID:       user.ID,
			Username: user.UnixUsername,
			Groups:   groups,
		})
	}
	sort.Slice(state.Users, func(i, j int) bool {
		return state.Users[i].Username < state.Users[j].Username
	})
	return state
}
