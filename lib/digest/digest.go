// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package digest

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Digest is a 32-byte BLAKE3 hash.
type Digest [32]byte

// String returns the hex encoding of the digest.
func (d Digest) String() string { return Format(d) }

// Short returns the first 12 hex characters, enough to tell scripts
// apart in log lines.
func (d Digest) Short() string { return Format(d)[:12] }

// File computes the BLAKE3 digest of the file at path.
func File(path string) (Digest, error) {
	file, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return Digest{}, fmt.Errorf("hashing %s: %w", path, err)
	}

	var result Digest
	copy(result[:], hasher.Sum(nil))
	return result, nil
}

// Bytes computes the BLAKE3 digest of data.
func Bytes(data []byte) Digest {
	return Digest(blake3.Sum256(data))
}

// Format returns the hex-encoded string representation of a digest.
func Format(d Digest) string {
	return hex.EncodeToString(d[:])
}

// Parse parses a hex-encoded digest string. Returns an error if the
// string is not a valid 64-character hex encoding of 32 bytes.
func Parse(hexString string) (Digest, error) {
	var result Digest
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return result, fmt.Errorf("parsing digest: %w", err)
	}
	if len(decoded) != len(result) {
		return result, fmt.Errorf("digest is %d bytes, want %d", len(decoded), len(result))
	}
	copy(result[:], decoded)
	return result, nil
}
