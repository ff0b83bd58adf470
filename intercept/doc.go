// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package intercept runs a child process under a pseudoterminal and
// relays bytes between the real terminal and the child, passing every
// chunk through user-registered hook chains on the way.
//
// The engine is a transparent byte-stream relay with interception
// points; it keeps no screen model. Hooks see raw chunks whose
// boundaries are arbitrary: an escape sequence or a multi-byte character
// may straddle two calls, and a hook that cares keeps the partial tail
// in its [Context] until the next call.
//
// A [Registry] holds two ordered chains: [Input] (terminal to child) and
// [Output] (child to terminal). Each [Hook] receives a [Call] and
// returns a [Result]: [Unchanged], [Replace] with new bytes, or
// [Suppress] to swallow the chunk. Hooks can also write outside the
// chain through [Call.Channel] (into the child) and [Call.Terminal]
// (onto the terminal); these writes are serialized with the relay's
// own forwarding so no write interleaves with another. The registry is
// frozen before the relay starts and registration afterwards panics
// with a [*StateError].
//
// [OpenSession] spawns the child on the subordinate side of a new PTY.
// [EnterRawMode] switches the real terminal into raw mode and restores
// it exactly once. [Relay] runs one goroutine per direction, so a hook
// that blocks stalls only its own direction. [StartSignalBridge]
// mirrors terminal resizes onto the child and forwards terminating
// signals. [Run] wires all of these together in the right order and
// returns the child's exit code.
//
// Hook failures follow the relay's [FailurePolicy]: under [FailOpen]
// the failure is logged and the chunk is forwarded as it was before the
// chain ran; under [FailClosed] the session ends with the [*HookError].
package intercept
