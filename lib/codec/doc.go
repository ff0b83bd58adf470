// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR configuration used for structured
// metadata inside session recordings.
//
// Terminal bytes in a recording are stored raw in frames; only the
// structured parts (the session header describing the command, its
// arguments, the terminal size and the hook script digest) go through
// CBOR. The encoder uses Core Deterministic Encoding (RFC 8949 §4.2) so
// the same header always produces the same bytes.
//
//	data, err := codec.Marshal(header)
//	err = codec.Unmarshal(data, &header)
package codec
