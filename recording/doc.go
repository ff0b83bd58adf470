// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package recording captures an intercepted session to a file and
// replays it.
//
// A recording starts with the 8-byte magic "PTYHREC\x01" and a 1-byte
// [CompressionTag]. Everything after is one compressed stream (or a
// plain stream for [CompressionNone]) of frames. Each frame has a
// 13-byte header (1 byte type, 8 bytes big-endian nanoseconds since the
// session started, 4 bytes big-endian payload length) followed by the
// payload:
//
//   - [FrameHeader]: the CBOR-encoded [Header], always first.
//   - [FrameInput]: bytes forwarded to the child after the input chain.
//   - [FrameOutput]: bytes forwarded to the terminal after the output
//     chain.
//   - [FrameInject]: bytes a hook wrote through a side channel; the
//     first payload byte is the destination direction.
//   - [FrameResize]: 4 bytes, columns then rows, big-endian uint16.
//   - [FrameExit]: 4 bytes, the child's exit code as a big-endian int32.
//     Always last in a complete recording.
//
// [Recorder] implements [intercept.Tap], so attaching it to an engine
// run records exactly what reached each side after hook processing.
// [Player] reads a recording back; [Player.Play] writes the terminal
// side to a writer, paced by the recorded timestamps.
package recording
