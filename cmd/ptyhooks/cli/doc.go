// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for the ptyhooks
// binary.
//
// The central type is [Command], which represents a named subcommand with
// optional nested [Command.Subcommands], a [pflag.FlagSet] factory, and a
// Run function. Commands are assembled into a tree in cmd/ptyhooks and
// dispatched via [Command.Execute], which handles flag parsing,
// subcommand routing, and structured help output with examples. A
// command with both Run and Subcommands hands unmatched positional args
// to Run, which is how "ptyhooks vim" runs vim while "ptyhooks replay"
// dispatches.
//
// When a user types an unknown subcommand or flag, the framework computes
// Levenshtein edit distance against all known names and suggests the
// closest match (threshold: distance <= 3). This is implemented in
// suggest.go.
//
// [ExitError] and [UsageError] carry exit codes back to main.
// [NewLogger] builds the process logger; its [TerminalWriter] keeps
// stderr log lines readable while the terminal is in raw mode.
package cli
