// Copyright 2026 The Agor Authors
// SPDX-License-Identifier: Apache-2.0

package unixname

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

const (
	// UsersGroup is the fixed global group holding every managed user.
	// It exists before any per-user reconciliation work begins.
	UsersGroup = "agor_users"

	// NamespaceWorktree and NamespaceRepo select the group namespace
	// for enumeration and cleanup.
	NamespaceWorktree = "wt"
	NamespaceRepo     = "rp"

	userPrefix          = "agor_"
	worktreeGroupPrefix = "agor_wt_"
	repoGroupPrefix     = "agor_rp_"

	// tagLength is the length of the hex tag appended to each prefix.
	// 8 hex characters (32 bits) keeps names under the 32-character
	// limit some useradd/groupadd implementations enforce while making
	// accidental collisions across a deployment's entity count
	// implausible.
	tagLength = 8
)

// WorktreeGroup returns the derived OS group name for a worktree ID.
// Used only when the worktree row has no assigned unix_group; an
// assigned name is authoritative and is never re-derived.
func WorktreeGroup(worktreeID string) string {
	return worktreeGroupPrefix + tag(worktreeID)
}

// RepoGroup returns the derived OS group name for a repository ID.
func RepoGroup(repoID string) string {
	return repoGroupPrefix + tag(repoID)
}

// User returns the derived OS username for an application user ID, for
// provisioning tooling that wants a managed name; the unix_username
// rows consumed by the reconciler itself are operator-assigned. The
// result is the one shape IsManagedUser recognizes, so only names
// derived here are eligible for automatic deletion during cleanup.
func User(userID string) string {
	return userPrefix + tag(userID)
}

// IsManagedGroup reports whether name matches the exact derived group
// shape for the given namespace: the namespace prefix followed by
// exactly tagLength lowercase hex characters. Anything looser would
// let cleanup reclaim out-of-band groups.
func IsManagedGroup(name, namespace string) bool {
	switch namespace {
	case NamespaceWorktree:
		return matchesTag(name, worktreeGroupPrefix)
	case NamespaceRepo:
		return matchesTag(name, repoGroupPrefix)
	}
	return false
}

// IsManagedUser reports whether name matches the exact derived
// username shape. Note that group names ("agor_wt_..." / "agor_rp_...")
// and the global group do not match: their remainders after the user
// prefix are not an 8-character hex tag.
func IsManagedUser(name string) bool {
	return matchesTag(name, userPrefix)
}

func matchesTag(name, prefix string) bool {
	if len(name) != len(prefix)+tagLength || !strings.HasPrefix(name, prefix) {
		return false
	}
	return isLowerHex(name[len(prefix):])
}

// tag computes the 8-character hex tag for an entity ID. IDs are
// normalized (separators stripped, lowercased) first. A UUID-shaped ID
// contributes its leading 8 hex digits directly, so the tag is
// recognizable in logs next to the full ID. Any other shape goes
// through a BLAKE3 digest, which keeps the tag in the required
// lowercase-hex alphabet and collision-resistant for arbitrary IDs.
func tag(id string) string {
	normalized := normalize(id)
	if len(normalized) >= tagLength && isLowerHex(normalized[:tagLength]) {
		return normalized[:tagLength]
	}
	sum := blake3.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:tagLength/2])
}

// normalize strips ID separators and lowercases, so the same entity
// formatted with or without dashes (UUID canonical vs compact form)
// yields the same tag.
func normalize(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range strings.ToLower(id) {
		if r == '-' || r == '_' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isLowerHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
