// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports the build version of ptyhooks.
//
// Release builds inject the commit via -ldflags:
//
//	go build -ldflags "-X github.com/bureau-foundation/ptyhooks/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Other builds fall back to the VCS stamp embedded by the go command.
package version
