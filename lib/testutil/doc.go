// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for the relay, engine
// and recording tests.
//
// [RequireReceive] and [RequireClosed] bound every channel wait with a
// wall-clock timeout so a stuck goroutine fails the test instead of
// hanging it. [CollectStream] drains a pipe or PTY in the background so
// tests can wait for expected output without blocking in Read.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
