// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package hooks is a small library of ready-made hooks: a terminal
// bell on shell prompts, alternate-screen suppression, a rot13 input
// scrambler, and a hook that cancels sudo password prompts. [Builtin]
// resolves them by the names used in configuration files.
package hooks
