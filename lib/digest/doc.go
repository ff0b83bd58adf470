// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package digest provides BLAKE3 content digests for hook scripts.
//
// The engine logs the digest of the hook script it loaded and stores it
// in the header of every session recording, so a recording can be tied
// back to the exact hook code that shaped it even after the script on
// disk has been edited.
//
//   - [File] streams a file through BLAKE3 with constant memory use;
//     "ptyhooks replay --check-script" uses it to compare a script on
//     disk with a recording
//   - [Bytes] digests an in-memory buffer
//   - [Format] and [Parse] convert between [Digest] and its hex form
package digest
