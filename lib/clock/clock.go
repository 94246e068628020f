// Copyright 2026 The EvidenceFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time operations for testability. Production
// code injects Real(); tests inject Fake() with deterministic time
// control. The unmount grace period (the bounded wait for in-flight
// kernel requests during teardown) is the main consumer — its timeout
// behavior is tested without real waiting by advancing a fake clock.
package clock

import "time"

// Clock abstracts the time operations evidencefs needs. Code that
// waits or reads the current time accepts a Clock instead of calling
// the time package directly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time after
	// duration d elapses. Equivalent to time.After. If d <= 0, the
	// channel receives immediately.
	After(d time.Duration) <-chan time.Time

	// Sleep pauses the current goroutine for at least duration d.
	// Equivalent to time.Sleep.
	Sleep(d time.Duration)
}
