// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"os/exec"
	"syscall"
)

// ExitCode converts the error returned by exec.Cmd.Wait into a shell
// style exit code: 0 for nil, the child's status for a normal exit, and
// 128+signal for a child killed by a signal. Errors that are not exit
// errors (the child could not be waited on at all) map to 1.
func ExitCode(waitErr error) int {
	if waitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if !errors.As(waitErr, &exitErr) {
		return 1
	}
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal())
	}
	if code := exitErr.ExitCode(); code >= 0 {
		return code
	}
	return 1
}
