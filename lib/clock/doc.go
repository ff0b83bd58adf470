// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source for the relay and
// its collaborators.
//
// Code that measures or waits on time (slow-hook detection, the output
// drain window after the child exits, recording timestamps, replay
// pacing) accepts a [Clock] instead of calling the time package
// directly. Production code passes [Real]; tests pass [Fake] and move
// time forward with Advance.
//
// When a goroutine calls After on a [FakeClock] it registers a
// pending waiter. Tests call WaitForTimers before Advance so the advance
// cannot race the registration:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go player.Play(ctx, output)
//	fake.WaitForTimers(1)
//	fake.Advance(time.Second)
package clock
