// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError carries the exit code of the supervised child. A non-zero
// child exit is an outcome, not an error of ptyhooks itself: main exits
// with Code and prints only Err, when set.
type ExitError struct {
	Code int

	// Err is a failure that accompanied the exit, such as a command
	// that could not be started. Nil for an ordinary non-zero exit.
	Err error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit code %d", e.Code)
}

// Unwrap returns Err.
func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode returns the exit code. main checks for this interface on
// returned errors to distinguish "handled non-zero exit" from
// "unexpected error to display".
func (e *ExitError) ExitCode() int {
	return e.Code
}
