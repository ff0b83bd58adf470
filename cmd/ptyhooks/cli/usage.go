// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitUsage is the exit code for bad flags, arguments or configuration.
const ExitUsage = 2

// UsageError reports invalid input from the user: bad flag values,
// wrong argument count, a configuration file that does not validate.
// main prints it and exits with ExitUsage.
type UsageError struct {
	Err error
}

// Usage creates a UsageError.
func Usage(format string, args ...any) *UsageError {
	return &UsageError{Err: fmt.Errorf(format, args...)}
}

func (e *UsageError) Error() string { return e.Err.Error() }

// Unwrap returns the underlying error, allowing errors.Is and
// errors.As to walk the full chain.
func (e *UsageError) Unwrap() error { return e.Err }
