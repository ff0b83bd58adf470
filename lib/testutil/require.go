// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"time"
)

// TB is the subset of testing.TB the helpers need.
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive returns the next value sent on ch, failing the test if
// none arrives within timeout or ch is closed first.
//
//	exitCode := testutil.RequireReceive(t, results, 5*time.Second, "waiting for engine")
func RequireReceive[T any](t TB, ch <-chan T, timeout time.Duration, what ...any) T {
	t.Helper()
	timer := time.NewTimer(timeout) //nolint:realclock test hang prevention
	defer timer.Stop()
	select {
	case value, ok := <-ch:
		if !ok {
			t.Fatalf("%s: channel closed without a value", describe(what))
		}
		return value
	case <-timer.C:
		t.Fatalf("%s: nothing received within %v", describe(what), timeout)
	}
	panic("unreachable")
}

// RequireClosed waits for ch to be closed, failing the test after
// timeout. Done channels in this module signal by closing.
//
//	testutil.RequireClosed(t, collector.Done(), 5*time.Second, "screen stream")
func RequireClosed(t TB, ch <-chan struct{}, timeout time.Duration, what ...any) {
	t.Helper()
	timer := time.NewTimer(timeout) //nolint:realclock test hang prevention
	defer timer.Stop()
	select {
	case <-ch:
	case <-timer.C:
		t.Fatalf("%s: not closed within %v", describe(what), timeout)
	}
}

// describe renders the optional description: a plain value, or a format
// string followed by its arguments.
func describe(what []any) string {
	switch {
	case len(what) == 0:
		return "channel"
	case len(what) == 1:
		return fmt.Sprint(what[0])
	}
	if format, ok := what[0].(string); ok {
		return fmt.Sprintf(format, what[1:]...)
	}
	return fmt.Sprint(what...)
}
