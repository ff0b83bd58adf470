// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package recording

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/ptyhooks/intercept"
	"github.com/bureau-foundation/ptyhooks/lib/clock"
	"github.com/bureau-foundation/ptyhooks/lib/codec"
)

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	Compression CompressionTag
	Clock       clock.Clock
	Logger      *slog.Logger
}

// Recorder writes a session to a recording. It implements
// intercept.Tap and is safe for concurrent use.
//
// Tap methods cannot return errors. The first write error is kept,
// logged once, and returned by Close; later events are dropped.
type Recorder struct {
	mutex sync.Mutex

	destination io.WriteCloser
	buffered    *bufio.Writer
	compressed  compressor

	clock  clock.Clock
	logger *slog.Logger
	start  time.Time

	err    error
	closed bool
}

var _ intercept.Tap = (*Recorder)(nil)

// Create creates the file at path (mode 0600, truncating any existing
// file) and starts a recording in it.
func Create(path string, header Header, options RecorderOptions) (*Recorder, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("creating recording: %w", err)
	}
	recorder, err := NewRecorder(file, header, options)
	if err != nil {
		file.Close()
		return nil, err
	}
	return recorder, nil
}

// NewRecorder writes the magic, compression tag and header frame to
// destination and returns a recorder for the rest of the session.
// Close closes destination.
func NewRecorder(destination io.WriteCloser, header Header, options RecorderOptions) (*Recorder, error) {
	recorderClock := options.Clock
	if recorderClock == nil {
		recorderClock = clock.Real()
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	buffered := bufio.NewWriter(destination)
	if _, err := buffered.WriteString(Magic); err != nil {
		return nil, fmt.Errorf("writing recording magic: %w", err)
	}
	if err := buffered.WriteByte(byte(options.Compression)); err != nil {
		return nil, fmt.Errorf("writing compression tag: %w", err)
	}
	compressed, err := newCompressor(buffered, options.Compression)
	if err != nil {
		return nil, err
	}

	start := recorderClock.Now()
	if header.StartedAt.IsZero() {
		header.StartedAt = start
	}
	encoded, err := codec.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("encoding recording header: %w", err)
	}
	if err := writeFrame(compressed, Frame{Type: FrameHeader, Payload: encoded}); err != nil {
		return nil, err
	}

	return &Recorder{
		destination: destination,
		buffered:    buffered,
		compressed:  compressed,
		clock:       recorderClock,
		logger:      logger,
		start:       start,
	}, nil
}

// Forwarded records the output of a hook chain.
func (recorder *Recorder) Forwarded(destination intercept.Direction, data []byte) {
	frameType := FrameOutput
	if destination == intercept.Input {
		frameType = FrameInput
	}
	recorder.record(frameType, data)
}

// Injected records a side-channel write.
func (recorder *Recorder) Injected(destination intercept.Direction, data []byte) {
	recorder.record(FrameInject, injectPayload(destination, data))
}

// Resized records a window size change.
func (recorder *Recorder) Resized(columns, rows uint16) {
	recorder.record(FrameResize, resizePayload(columns, rows))
}

func (recorder *Recorder) record(frameType FrameType, payload []byte) {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	if recorder.closed || recorder.err != nil {
		return
	}
	recorder.writeLocked(Frame{
		Type:    frameType,
		Elapsed: clock.Since(recorder.clock, recorder.start),
		Payload: payload,
	})
}

func (recorder *Recorder) writeLocked(frame Frame) {
	if err := writeFrame(recorder.compressed, frame); err != nil {
		recorder.err = err
		recorder.logger.Warn("recording stopped", "error", err)
	}
}

// Err returns the first write error, if any.
func (recorder *Recorder) Err() error {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	return recorder.err
}

// Close writes the exit frame, flushes the compressed stream and closes
// the destination. It returns the first error seen over the recorder's
// lifetime. Only the first call has any effect.
func (recorder *Recorder) Close(exitCode int) error {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	if recorder.closed {
		return recorder.err
	}
	recorder.closed = true

	if recorder.err == nil {
		recorder.writeLocked(Frame{
			Type:    FrameExit,
			Elapsed: clock.Since(recorder.clock, recorder.start),
			Payload: exitPayload(exitCode),
		})
	}
	for _, step := range []struct {
		name     string
		function func() error
	}{
		{"closing compressed stream", recorder.compressed.Close},
		{"flushing recording", recorder.buffered.Flush},
		{"closing recording", recorder.destination.Close},
	} {
		if err := step.function(); err != nil && recorder.err == nil {
			recorder.err = fmt.Errorf("%s: %w", step.name, err)
		}
	}
	return recorder.err
}
