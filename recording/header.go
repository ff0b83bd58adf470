// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package recording

import "time"

// Header describes the recorded session. It is the payload of the first
// frame, encoded as CBOR.
type Header struct {
	Command   string    `cbor:"command"`
	Args      []string  `cbor:"args,omitempty"`
	StartedAt time.Time `cbor:"started_at"`

	// Columns and Rows are the window size at start, zero if unknown.
	// Later changes are recorded as resize frames.
	Columns uint16 `cbor:"columns,omitempty"`
	Rows    uint16 `cbor:"rows,omitempty"`

	// ScriptDigest is the BLAKE3 digest of the hook script, if one was
	// loaded.
	ScriptDigest string `cbor:"script_digest,omitempty"`

	// InputHooks and OutputHooks name the registered hooks in chain
	// order.
	InputHooks  []string `cbor:"input_hooks,omitempty"`
	OutputHooks []string `cbor:"output_hooks,omitempty"`

	// Recorder is the version of the program that wrote the recording.
	Recorder string `cbor:"recorder,omitempty"`
}
