// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package recording

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bureau-foundation/ptyhooks/intercept"
)

// Magic opens every recording. The last byte is the format version.
const Magic = "PTYHREC\x01"

// FrameType identifies the payload of a frame.
type FrameType byte

const (
	FrameHeader FrameType = 0x01
	FrameInput  FrameType = 0x02
	FrameOutput FrameType = 0x03
	FrameInject FrameType = 0x04
	FrameResize FrameType = 0x05
	FrameExit   FrameType = 0x06
)

func (frameType FrameType) String() string {
	switch frameType {
	case FrameHeader:
		return "header"
	case FrameInput:
		return "input"
	case FrameOutput:
		return "output"
	case FrameInject:
		return "inject"
	case FrameResize:
		return "resize"
	case FrameExit:
		return "exit"
	default:
		return fmt.Sprintf("frame(0x%02x)", byte(frameType))
	}
}

// frameHeaderLength is 1 byte type + 8 bytes elapsed nanoseconds + 4
// bytes payload length.
const frameHeaderLength = 13

// maxPayloadLength bounds a single frame. Relay chunks are a few
// kilobytes; anything near this is a corrupt length field.
const maxPayloadLength = 16 * 1024 * 1024

// Frame is one recorded event.
type Frame struct {
	Type FrameType
	// Elapsed is the time since the recording started.
	Elapsed time.Duration
	Payload []byte
}

// writeFrame writes a framed event to w.
func writeFrame(w io.Writer, frame Frame) error {
	if len(frame.Payload) > maxPayloadLength {
		return fmt.Errorf("%s frame payload of %d bytes exceeds maximum %d", frame.Type, len(frame.Payload), maxPayloadLength)
	}
	var header [frameHeaderLength]byte
	header[0] = byte(frame.Type)
	binary.BigEndian.PutUint64(header[1:9], uint64(frame.Elapsed))
	binary.BigEndian.PutUint32(header[9:13], uint32(len(frame.Payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if len(frame.Payload) > 0 {
		if _, err := w.Write(frame.Payload); err != nil {
			return fmt.Errorf("write frame payload: %w", err)
		}
	}
	return nil
}

// ErrTruncated reports a recording that ends in the middle of a frame,
// typically because the recording process was killed.
var ErrTruncated = errors.New("recording is truncated")

// readFrame reads one frame from r. It returns io.EOF at a clean frame
// boundary and ErrTruncated for a partial frame.
func readFrame(r io.Reader) (Frame, error) {
	var header [frameHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrTruncated
		}
		return Frame{}, fmt.Errorf("read frame header: %w", err)
	}
	frame := Frame{
		Type:    FrameType(header[0]),
		Elapsed: time.Duration(binary.BigEndian.Uint64(header[1:9])),
	}
	payloadLength := binary.BigEndian.Uint32(header[9:13])
	if payloadLength > maxPayloadLength {
		return Frame{}, fmt.Errorf("%s frame payload length %d exceeds maximum %d", frame.Type, payloadLength, maxPayloadLength)
	}
	frame.Payload = make([]byte, payloadLength)
	if payloadLength > 0 {
		if _, err := io.ReadFull(r, frame.Payload); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return Frame{}, ErrTruncated
			}
			return Frame{}, fmt.Errorf("read frame payload: %w", err)
		}
	}
	return frame, nil
}

func resizePayload(columns, rows uint16) []byte {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint16(payload[0:2], columns)
	binary.BigEndian.PutUint16(payload[2:4], rows)
	return payload
}

// ParseResize extracts columns and rows from a resize frame payload.
func ParseResize(payload []byte) (columns, rows uint16, err error) {
	if len(payload) != 4 {
		return 0, 0, fmt.Errorf("resize payload must be 4 bytes, got %d", len(payload))
	}
	return binary.BigEndian.Uint16(payload[0:2]), binary.BigEndian.Uint16(payload[2:4]), nil
}

func exitPayload(code int) []byte {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, uint32(int32(code)))
	return payload
}

// ParseExit extracts the exit code from an exit frame payload.
func ParseExit(payload []byte) (int, error) {
	if len(payload) != 4 {
		return 0, fmt.Errorf("exit payload must be 4 bytes, got %d", len(payload))
	}
	return int(int32(binary.BigEndian.Uint32(payload))), nil
}

func injectPayload(destination intercept.Direction, data []byte) []byte {
	payload := make([]byte, 1+len(data))
	payload[0] = byte(destination)
	copy(payload[1:], data)
	return payload
}

// ParseInject splits an inject frame payload into its destination and
// data.
func ParseInject(payload []byte) (intercept.Direction, []byte, error) {
	if len(payload) < 1 {
		return 0, nil, errors.New("inject payload is empty")
	}
	destination := intercept.Direction(payload[0])
	if destination != intercept.Input && destination != intercept.Output {
		return 0, nil, fmt.Errorf("inject payload has unknown destination %d", payload[0])
	}
	return destination, payload[1:], nil
}
