// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/bureau-foundation/ptyhooks/cmd/ptyhooks/cli"
)

func main() {
	if err := run(); err != nil {
		// A child that exited non-zero returns an ExitError. Only
		// print when something besides the exit itself went wrong.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			if cause := errors.Unwrap(err); cause != nil {
				fmt.Fprintf(os.Stderr, "ptyhooks: %v\n", cause)
			}
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "ptyhooks: %v\n", err)
		var usage *cli.UsageError
		if errors.As(err, &usage) {
			os.Exit(cli.ExitUsage)
		}
		os.Exit(1)
	}
}

func run() error {
	return rootCommand().Execute(os.Args[1:])
}
