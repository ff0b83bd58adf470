// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/term"

	"github.com/bureau-foundation/ptyhooks/lib/config"
)

// NewLogger creates the process logger from the log section of the
// configuration.
//
// With log.file set, records are appended to that file and the format
// is as configured. Without it, records go to stderr: text when stderr
// is a terminal and log.format is "text", JSON otherwise. The returned
// TerminalWriter must be switched to raw mode while the terminal is raw
// (see [TerminalWriter.SetRaw]); it is nil when logging to a file.
// close releases the log file and is never nil.
func NewLogger(cfg config.LogConfig) (logger *slog.Logger, terminal *TerminalWriter, close func() error, err error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, nil, nil, fmt.Errorf("log.level: %w", err)
	}
	options := &slog.HandlerOptions{Level: level}

	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		return slog.New(newHandler(file, cfg.Format == "json", options)), nil, file.Close, nil
	}

	terminal = NewTerminalWriter(os.Stderr)
	useJSON := cfg.Format == "json" || !term.IsTerminal(int(os.Stderr.Fd()))
	return slog.New(newHandler(terminal, useJSON, options)), terminal, func() error { return nil }, nil
}

func newHandler(w io.Writer, useJSON bool, options *slog.HandlerOptions) slog.Handler {
	if useJSON {
		return slog.NewJSONHandler(w, options)
	}
	return slog.NewTextHandler(w, options)
}

// TerminalWriter writes to a terminal that may be in raw mode. Raw mode
// turns off output post-processing, so a bare "\n" moves down without
// returning to column zero; while raw, TerminalWriter writes "\r\n" for
// every "\n".
type TerminalWriter struct {
	mutex sync.Mutex
	w     io.Writer
	raw   atomic.Bool
}

// NewTerminalWriter wraps w.
func NewTerminalWriter(w io.Writer) *TerminalWriter {
	return &TerminalWriter{w: w}
}

// SetRaw switches newline translation on or off.
func (writer *TerminalWriter) SetRaw(raw bool) {
	writer.raw.Store(raw)
}

// Write writes data, translating newlines while raw. The returned count
// is in terms of data, not of the bytes written to the terminal.
func (writer *TerminalWriter) Write(data []byte) (int, error) {
	writer.mutex.Lock()
	defer writer.mutex.Unlock()
	if !writer.raw.Load() || !bytes.Contains(data, []byte("\n")) {
		return writer.w.Write(data)
	}
	translated := bytes.ReplaceAll(bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n")), []byte("\n"), []byte("\r\n"))
	if _, err := writer.w.Write(translated); err != nil {
		return 0, err
	}
	return len(data), nil
}
