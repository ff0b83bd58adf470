// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package hookscript loads hook chains from a Lua script.
//
// The script runs once in a sandboxed interpreter (base, table, string
// and math libraries only; no file loading, no io, no os). When it
// finishes, the global tables PTY_INPUT_HOOKS and PTY_OUTPUT_HOOKS are
// read and every function in them is registered, in table order, with
// an [intercept.Registry]. A missing global means no hooks for that
// direction.
//
// The script may require the "ptyhooks" module:
//
//	local ptyhooks = require("ptyhooks")
//
//	ptyhooks.output_hook(function(data, channel, context)
//	  if data:sub(-2) == ": " then
//	    ptyhooks.write(context.terminal, "\a")
//	  end
//	end)
//
// A hook is called as fn(data, channel, context). data is the chunk as
// a string. channel writes directly into the child's input. context is
// a table that persists across calls for one direction; its terminal
// field writes directly onto the real terminal and its direction field
// is "input" or "output". The return value decides the chunk's fate:
// nil (or true) leaves it unchanged, a string replaces it, and false
// or an empty string swallows it. A Lua error becomes an
// [intercept.HookError].
//
// gopher-lua interpreters are single-threaded, so all hooks of one
// script serialize on the script's lock, across both directions. Each
// call is bounded by a timeout.
package hookscript
