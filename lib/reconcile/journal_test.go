// Copyright 2026 The Agor Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAppendJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal", "agor-reconcile.jsonl")

	first := &Report{
		StartedAt:    time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
		UsersCreated: 1,
		Actions:      []Action{{Category: "user-create", Entity: "alice", Detail: "create OS account"}},
	}
	if err := AppendJournal(path, first); err != nil {
		t.Fatalf("AppendJournal() error: %v", err)
	}
	second := &Report{DryRun: true, Errors: 2}
	if err := AppendJournal(path, second); err != nil {
		t.Fatalf("AppendJournal() second error: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening journal: %v", err)
	}
	defer file.Close()

	var lines []Report
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry Report
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", len(lines)+1, err)
		}
		lines = append(lines, entry)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scanning journal: %v", err)
	}

	if len(lines) != 2 {
		t.Fatalf("journal has %d lines, want 2", len(lines))
	}
	if lines[0].UsersCreated != 1 || len(lines[0].Actions) != 1 {
		t.Errorf("first entry = %+v, want the created-user report", lines[0])
	}
	if !lines[0].StartedAt.Equal(first.StartedAt) {
		t.Errorf("StartedAt = %v, want %v", lines[0].StartedAt, first.StartedAt)
	}
	if !lines[1].DryRun || lines[1].Errors != 2 {
		t.Errorf("second entry = %+v, want the dry-run report", lines[1])
	}
}
