// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Ptyhooks runs a command on a pseudo-terminal and passes every chunk of
// keyboard input and program output through a chain of hooks before it
// reaches the other side.
//
// Hooks come from a Lua script (--script, hooks.script) and from the
// stock library (--builtin, hooks.builtin). Sessions can be recorded
// (--record) and played back with "ptyhooks replay".
//
// Usage:
//
//	ptyhooks [flags] [--] [command [args...]]
//	ptyhooks replay [--speed N] [--info] <file>
//
// The exit code is the child's exit code: 128+N when it died from
// signal N, 127 when the command was not found and 126 when it could
// not be started. Bad flags or configuration exit with 2.
package main
