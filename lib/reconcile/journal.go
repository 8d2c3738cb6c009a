// Copyright 2026 The Agor Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// AppendJournal appends the report as one JSON line to the journal
// file, creating the file and its parent directory on first use. One
// line per run keeps the journal greppable and trivially tailable.
func AppendJournal(path string, report *Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating journal directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	encoder := json.NewEncoder(file)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(report); err != nil {
		file.Close()
		return fmt.Errorf("writing journal entry: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing journal: %w", err)
	}
	return nil
}
