// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package intercept

import "fmt"

// Direction identifies one half of the relay.
type Direction int

const (
	// Input carries bytes typed at the real terminal toward the child.
	Input Direction = iota
	// Output carries bytes written by the child toward the real
	// terminal.
	Output
)

func (d Direction) String() string {
	switch d {
	case Input:
		return "input"
	case Output:
		return "output"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Hook observes or rewrites one chunk of relayed data. Hooks run
// synchronously on their direction's relay goroutine, in registration
// order. A hook must not retain call.Data after it returns; the buffer
// is reused for the next read.
type Hook func(call *Call) (Result, error)

// Call is the argument passed to every hook invocation.
type Call struct {
	Direction Direction

	// Data is the chunk as produced by the previous hook in the chain,
	// or the raw chunk for the first hook. Chunk boundaries are
	// arbitrary: a UTF-8 sequence or escape sequence may be split
	// across two calls.
	Data []byte

	// Channel writes directly to the child's input, bypassing the chain.
	// Use it to answer a prompt without altering the observed stream.
	Channel *Channel

	// Terminal writes directly to the real terminal, bypassing the
	// chain.
	Terminal *Channel

	// Context carries state across calls within one direction for the
	// lifetime of the session. It is never shared with the other
	// direction and never accessed concurrently.
	Context Context
}

// Context is per-direction mutable state shared by all hooks of one
// chain across calls.
type Context map[string]any

type action int

const (
	actionUnchanged action = iota
	actionReplace
	actionSuppress
)

// Result tells the chain what a hook did with its chunk.
type Result struct {
	action action
	data   []byte
}

// Unchanged passes the chunk on to the next hook as received.
func Unchanged() Result { return Result{action: actionUnchanged} }

// Replace substitutes data for the chunk in all subsequent hooks and in
// what is finally forwarded. An empty data swallows the chunk, the same
// as Suppress.
func Replace(data []byte) Result {
	if len(data) == 0 {
		return Suppress()
	}
	return Result{action: actionReplace, data: data}
}

// Suppress swallows the chunk: nothing is forwarded for it and the
// remaining hooks in the chain do not run.
func Suppress() Result { return Result{action: actionSuppress} }

// IsUnchanged reports whether the result passes data through.
func (r Result) IsUnchanged() bool { return r.action == actionUnchanged }

// IsSuppressed reports whether the result swallows the chunk.
func (r Result) IsSuppressed() bool { return r.action == actionSuppress }

// Data returns the replacement bytes, or nil for Unchanged and
// Suppress.
func (r Result) Data() []byte { return r.data }

func (r Result) String() string {
	switch r.action {
	case actionReplace:
		return fmt.Sprintf("Replace(%q)", r.data)
	case actionSuppress:
		return "Suppress"
	default:
		return "Unchanged"
	}
}
