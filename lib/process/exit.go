// Copyright 2026 The Agor Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for agor
// binaries. Fatal centralizes the one legitimate raw stderr write
// that happens after run() returns, where the structured logger may
// never have been initialized.
package process

import (
	"fmt"
	"os"
)

// Fatal reports a fatal error from run() and exits. Errors carrying
// an ExitCode() int method exit with that code silently; the command
// is expected to have produced its own output already. All other
// errors print "error: err" to stderr and exit with code 1.
func Fatal(err error) {
	if coder, ok := err.(interface{ ExitCode() int }); ok {
		os.Exit(coder.ExitCode())
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
