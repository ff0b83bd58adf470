// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package recording

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies the stream compression of a recording. The
// tag is stored as one byte after the magic; these values are format
// constants.
type CompressionTag uint8

const (
	// CompressionNone stores frames as-is.
	CompressionNone CompressionTag = 0

	// CompressionLZ4 wraps the frame stream in an LZ4 frame. Cheap
	// enough to leave on for every session.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd wraps the frame stream in a zstd stream at the
	// default level. Terminal output is repetitive text and compresses
	// several times better than with LZ4.
	CompressionZstd CompressionTag = 2
)

// String returns the configuration name of a compression tag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// ParseCompressionTag parses a compression name as used in
// configuration. The empty string selects zstd.
func ParseCompressionTag(name string) (CompressionTag, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "", "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q (want none, lz4 or zstd)", name)
	}
}

// compressor is the write side of a compressed stream.
type compressor interface {
	io.Writer
	Close() error
}

// nopCompressor passes writes through unchanged.
type nopCompressor struct {
	io.Writer
}

func (nopCompressor) Close() error { return nil }

func newCompressor(w io.Writer, tag CompressionTag) (compressor, error) {
	switch tag {
	case CompressionNone:
		return nopCompressor{Writer: w}, nil
	case CompressionLZ4:
		return lz4.NewWriter(w), nil
	case CompressionZstd:
		encoder, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		return encoder, nil
	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

// newDecompressor returns a reader for the stream after the tag byte and
// a function releasing its resources.
func newDecompressor(r io.Reader, tag CompressionTag) (io.Reader, func(), error) {
	switch tag {
	case CompressionNone:
		return r, func() {}, nil
	case CompressionLZ4:
		return lz4.NewReader(r), func() {}, nil
	case CompressionZstd:
		decoder, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd decoder: %w", err)
		}
		return decoder, decoder.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}
