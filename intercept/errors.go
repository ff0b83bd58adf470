// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package intercept

import "fmt"

// SpawnError reports that the child process could not be started. It is
// returned before raw mode is entered, so there is no terminal state to
// restore.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// HookError reports a hook that returned an error or panicked while
// processing one chunk. The chain for that chunk was abandoned.
type HookError struct {
	Direction Direction
	Hook      string
	// Index is the hook's position in its chain.
	Index int
	// Panicked is true when the hook panicked rather than returning an
	// error.
	Panicked bool
	// Stack is the goroutine stack at the time of the panic. Nil when
	// the hook returned an error.
	Stack []byte
	Err   error
}

func (e *HookError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("%s hook %d (%s) panicked: %v", e.Direction, e.Index, e.Hook, e.Err)
	}
	return fmt.Sprintf("%s hook %d (%s): %v", e.Direction, e.Index, e.Hook, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// IOError reports a read or write failure on one side of the relay
// other than a clean end of stream.
type IOError struct {
	Direction Direction
	// Op is "read" or "write".
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s relay %s: %v", e.Direction, e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// StateError reports an operation attempted in the wrong lifecycle
// state, such as registering a hook after the relay has started.
// Registration panics with a *StateError.
type StateError struct {
	Op     string
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}
