// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process translates a child's wait status into the exit code
// this process should return, so a wrapped command's exit status
// becomes the wrapper's own: the child's code for a normal exit and
// 128+N for death by signal N.
package process
