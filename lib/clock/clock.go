// Copyright 2026 The Agor Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for testability. Production code
// injects Real(); tests inject Fake() and control time explicitly.
package clock

import "time"

// Clock supplies the current time. Code that timestamps its output
// accepts a Clock instead of calling time.Now directly so tests can
// pin exact times.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
