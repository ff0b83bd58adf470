// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the ptyhooks configuration file.
//
// Configuration comes from a single file named by either the
// PTYHOOKS_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no search path. With neither, [Load]
// returns [Default]. Command-line flags override loaded values in the
// CLI, not here.
//
// Files are YAML. Files ending in .json or .jsonc are JSON with
// comments and trailing commas allowed. Unknown keys are rejected so a
// misspelled option fails loudly rather than silently reverting to its
// default.
//
// Variable expansion is performed after loading on path fields
// (dir, hooks.script, record.path, log.file) and environment values:
// ${HOME}, ${VAR} and ${VAR:-default} patterns are expanded.
//
// Key exports:
//
//   - [Config] -- command, environment, hooks, relay, terminal, record, log
//   - [Default] -- the defaults every loaded file is merged over
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other ptyhooks packages.
package config
