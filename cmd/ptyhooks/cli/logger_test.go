// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/ptyhooks/lib/config"
)

func TestTerminalWriter(t *testing.T) {
	tests := []struct {
		name  string
		raw   bool
		input string
		want  string
	}{
		{"cooked passes through", false, "a\nb\n", "a\nb\n"},
		{"raw translates newlines", true, "a\nb\n", "a\r\nb\r\n"},
		{"raw keeps existing CRLF", true, "a\r\nb\n", "a\r\nb\r\n"},
		{"raw without newline", true, "abc", "abc"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var buffer bytes.Buffer
			writer := NewTerminalWriter(&buffer)
			writer.SetRaw(test.raw)

			written, err := writer.Write([]byte(test.input))
			if err != nil {
				t.Fatalf("Write: %v", err)
			}
			if written != len(test.input) {
				t.Errorf("Write returned %d, want %d", written, len(test.input))
			}
			if buffer.String() != test.want {
				t.Errorf("wrote %q, want %q", buffer.String(), test.want)
			}
		})
	}
}

func TestNewLogger_File(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "ptyhooks.log")

	logger, terminal, closeLog, err := NewLogger(config.LogConfig{
		Level:  "debug",
		Format: "json",
		File:   logPath,
	})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if terminal != nil {
		t.Error("file logging returned a terminal writer")
	}
	logger.Debug("hook stats", "hook", "builtin:rot13", "calls", 3)
	if err := closeLog(); err != nil {
		t.Fatalf("closing log: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &record); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, data)
	}
	if record["msg"] != "hook stats" || record["hook"] != "builtin:rot13" || record["level"] != "DEBUG" {
		t.Errorf("unexpected record: %v", record)
	}
}

func TestNewLogger_LevelFilters(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "ptyhooks.log")

	logger, _, closeLog, err := NewLogger(config.LogConfig{Level: "warn", Format: "text", File: logPath})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Info("child started")
	logger.Warn("slow hook")
	closeLog()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if strings.Contains(string(data), "child started") {
		t.Errorf("info record passed a warn level filter:\n%s", data)
	}
	if !strings.Contains(string(data), "slow hook") {
		t.Errorf("warn record missing:\n%s", data)
	}
}

func TestNewLogger_BadLevel(t *testing.T) {
	if _, _, _, err := NewLogger(config.LogConfig{Level: "loud", Format: "text"}); err == nil {
		t.Fatal("NewLogger accepted level \"loud\"")
	}
}

func TestNewLogger_Stderr(t *testing.T) {
	_, terminal, closeLog, err := NewLogger(config.LogConfig{Level: "info", Format: "text"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if terminal == nil {
		t.Fatal("stderr logging returned no terminal writer")
	}
	if err := closeLog(); err != nil {
		t.Errorf("closeLog: %v", err)
	}
}
