// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package intercept

// Tap observes traffic after hook processing. Implementations must be
// safe for concurrent use: both relay directions and the signal bridge
// call into the same Tap.
type Tap interface {
	// Forwarded is called with the final output of a hook chain after
	// it was written to destination.
	Forwarded(destination Direction, data []byte)

	// Injected is called with bytes a hook wrote through a Channel.
	Injected(destination Direction, data []byte)

	// Resized is called after the child's window size changed.
	Resized(columns, rows uint16)
}
