// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package recording

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/ptyhooks/intercept"
	"github.com/bureau-foundation/ptyhooks/lib/clock"
	"github.com/bureau-foundation/ptyhooks/lib/codec"
	"github.com/bureau-foundation/ptyhooks/lib/testutil"
)

var testStart = time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)

// nopCloser adds a no-op Close to a buffer.
type nopCloser struct {
	*bytes.Buffer
}

func (nopCloser) Close() error { return nil }

// recordSession writes a short scripted session and returns the
// recording bytes.
func recordSession(t *testing.T, compression CompressionTag) []byte {
	t.Helper()
	fakeClock := clock.Fake(testStart)
	var buffer bytes.Buffer
	recorder, err := NewRecorder(nopCloser{&buffer}, Header{
		Command:     "/bin/sh",
		Args:        []string{"-i"},
		Columns:     80,
		Rows:        24,
		OutputHooks: []string{"builtin:bell_on_prompt"},
	}, RecorderOptions{Compression: compression, Clock: fakeClock})
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	recorder.Forwarded(intercept.Output, []byte("$ "))
	fakeClock.Advance(500 * time.Millisecond)
	recorder.Forwarded(intercept.Input, []byte("ls\r"))
	recorder.Injected(intercept.Output, []byte("\a"))
	fakeClock.Advance(100 * time.Millisecond)
	recorder.Resized(120, 40)
	recorder.Forwarded(intercept.Output, []byte("file.txt\r\n$ "))
	recorder.Injected(intercept.Input, []byte("\r"))

	if err := recorder.Close(3); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := recorder.Close(3); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	return buffer.Bytes()
}

func TestRecordAndReplay(t *testing.T) {
	for _, compression := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(compression.String(), func(t *testing.T) {
			recorded := recordSession(t, compression)
			if !bytes.HasPrefix(recorded, []byte(Magic)) {
				t.Fatalf("recording does not start with the magic: %q", recorded[:min(len(recorded), 16)])
			}
			if recorded[len(Magic)] != byte(compression) {
				t.Errorf("compression byte = %d, want %d", recorded[len(Magic)], compression)
			}

			player, err := NewPlayer(bytes.NewReader(recorded))
			if err != nil {
				t.Fatalf("NewPlayer: %v", err)
			}
			defer player.Close()
			header := player.Header()
			if header.Command != "/bin/sh" || header.Columns != 80 || header.Rows != 24 {
				t.Errorf("header = %+v", header)
			}
			if !header.StartedAt.Equal(testStart) {
				t.Errorf("StartedAt = %v, want %v", header.StartedAt, testStart)
			}
			if player.Compression() != compression {
				t.Errorf("Compression = %v, want %v", player.Compression(), compression)
			}

			player.Speed = 0
			var screen bytes.Buffer
			if err := player.Play(context.Background(), &screen); err != nil {
				t.Fatalf("Play: %v", err)
			}
			if screen.String() != "$ \afile.txt\r\n$ " {
				t.Errorf("replayed %q, want %q", screen.String(), "$ \afile.txt\r\n$ ")
			}
		})
	}
}

func TestInfo(t *testing.T) {
	player, err := NewPlayer(bytes.NewReader(recordSession(t, CompressionZstd)))
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}
	defer player.Close()

	info, err := player.Info()
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if !info.Complete || info.Truncated {
		t.Errorf("Complete = %v, Truncated = %v, want complete", info.Complete, info.Truncated)
	}
	if info.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", info.ExitCode)
	}
	if info.Frames[FrameOutput] != 2 || info.Frames[FrameInput] != 1 ||
		info.Frames[FrameInject] != 2 || info.Frames[FrameResize] != 1 || info.Frames[FrameExit] != 1 {
		t.Errorf("frame counts = %v", info.Frames)
	}
	if info.OutputBytes != len("$ ")+len("file.txt\r\n$ ") {
		t.Errorf("OutputBytes = %d", info.OutputBytes)
	}
	if info.InputBytes != 3 || info.InjectedBytes != 2 {
		t.Errorf("InputBytes = %d, InjectedBytes = %d, want 3 and 2", info.InputBytes, info.InjectedBytes)
	}
	if info.Duration != 600*time.Millisecond {
		t.Errorf("Duration = %v, want 600ms", info.Duration)
	}
	if len(info.Header.OutputHooks) != 1 || info.Header.OutputHooks[0] != "builtin:bell_on_prompt" {
		t.Errorf("header hooks = %v", info.Header.OutputHooks)
	}
}

func TestFramesInOrder(t *testing.T) {
	player, err := NewPlayer(bytes.NewReader(recordSession(t, CompressionNone)))
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}
	var types []string
	for {
		frame, err := player.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		types = append(types, frame.Type.String())
		if frame.Type == FrameResize {
			columns, rows, err := ParseResize(frame.Payload)
			if err != nil || columns != 120 || rows != 40 {
				t.Errorf("resize = %dx%d (%v), want 120x40", columns, rows, err)
			}
		}
	}
	want := "output,input,inject,resize,output,inject,exit"
	if got := strings.Join(types, ","); got != want {
		t.Errorf("frames = %s, want %s", got, want)
	}
}

func TestPlayPacing(t *testing.T) {
	fakeClock := clock.Fake(testStart)
	player, err := NewPlayer(bytes.NewReader(recordSession(t, CompressionLZ4)))
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}
	defer player.Close()
	player.Clock = fakeClock
	player.Speed = 2

	screen := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- player.Play(context.Background(), screen)
	}()

	// The first output frame is at 0ms: no pause. The bell was
	// injected 500ms later, which at double speed is a 250ms pause.
	fakeClock.WaitForTimers(1)
	if screen.String() != "$ " {
		t.Errorf("before the pause, screen = %q, want %q", screen.String(), "$ ")
	}
	fakeClock.Advance(250 * time.Millisecond)
	// 100ms more at double speed until the listing.
	fakeClock.WaitForTimers(1)
	fakeClock.Advance(50 * time.Millisecond)

	if err := testutil.RequireReceive(t, done, 5*time.Second, "waiting for playback"); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if screen.String() != "$ \afile.txt\r\n$ " {
		t.Errorf("replayed %q", screen.String())
	}
}

func TestPlayCancel(t *testing.T) {
	fakeClock := clock.Fake(testStart)
	player, err := NewPlayer(bytes.NewReader(recordSession(t, CompressionNone)))
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}
	player.Clock = fakeClock

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- player.Play(ctx, io.Discard)
	}()
	fakeClock.WaitForTimers(1)
	cancel()

	err = testutil.RequireReceive(t, done, 5*time.Second, "waiting for cancelled playback")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Play = %v, want context.Canceled", err)
	}
}

func TestTruncatedRecording(t *testing.T) {
	recorded := recordSession(t, CompressionNone)
	// Cut into the exit frame.
	player, err := NewPlayer(bytes.NewReader(recorded[:len(recorded)-2]))
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}
	info, err := player.Info()
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if !info.Truncated || info.Complete {
		t.Errorf("Truncated = %v, Complete = %v, want truncated and incomplete", info.Truncated, info.Complete)
	}
}

func TestNewPlayerRejectsGarbage(t *testing.T) {
	for name, data := range map[string][]byte{
		"empty":     nil,
		"bad magic": []byte("NOTAREC\x01\x00"),
		"bad tag":   append([]byte(Magic), 9),
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := NewPlayer(bytes.NewReader(data)); err == nil {
				t.Error("NewPlayer succeeded")
			}
		})
	}
}

func TestCreateAndOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.ptyrec")
	recorder, err := Create(path, Header{Command: "cat"}, RecorderOptions{Compression: CompressionZstd})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	recorder.Forwarded(intercept.Output, []byte("hello"))
	if err := recorder.Close(0); err != nil {
		t.Fatalf("Close: %v", err)
	}

	player, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer player.Close()
	if player.Header().Command != "cat" {
		t.Errorf("header command = %q, want %q", player.Header().Command, "cat")
	}
	diagnostic, err := codec.Diagnose(player.RawHeader())
	if err != nil {
		t.Fatalf("Diagnose(RawHeader): %v", err)
	}
	if !strings.Contains(diagnostic, `"cat"`) {
		t.Errorf("header diagnostic %s does not mention the command", diagnostic)
	}
	player.Speed = 0
	var screen bytes.Buffer
	if err := player.Play(context.Background(), &screen); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if screen.String() != "hello" {
		t.Errorf("replayed %q, want %q", screen.String(), "hello")
	}
}

func TestParseCompressionTag(t *testing.T) {
	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd} {
		parsed, err := ParseCompressionTag(tag.String())
		if err != nil || parsed != tag {
			t.Errorf("ParseCompressionTag(%q) = (%v, %v), want %v", tag.String(), parsed, err, tag)
		}
	}
	if parsed, err := ParseCompressionTag(""); err != nil || parsed != CompressionZstd {
		t.Errorf("ParseCompressionTag(\"\") = (%v, %v), want zstd", parsed, err)
	}
	if _, err := ParseCompressionTag("gzip"); err == nil {
		t.Error("ParseCompressionTag(gzip) succeeded")
	}
}

func TestRecorderStopsAfterWriteError(t *testing.T) {
	recorder, err := NewRecorder(&failAfter{limit: 64}, Header{Command: "x"}, RecorderOptions{})
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	big := bytes.Repeat([]byte("x"), 8192)
	recorder.Forwarded(intercept.Output, big)
	if err := recorder.Close(0); err == nil {
		t.Error("Close returned nil after the destination failed")
	}
}

// failAfter accepts limit bytes and then fails every write.
type failAfter struct {
	limit   int
	written int
}

func (writer *failAfter) Write(data []byte) (int, error) {
	if writer.written+len(data) > writer.limit {
		return 0, errors.New("disk full")
	}
	writer.written += len(data)
	return len(data), nil
}

func (writer *failAfter) Close() error { return nil }

// syncBuffer is a bytes.Buffer safe for one writer and one reader.
type syncBuffer struct {
	mutex  sync.Mutex
	buffer bytes.Buffer
}

func (buffer *syncBuffer) Write(data []byte) (int, error) {
	buffer.mutex.Lock()
	defer buffer.mutex.Unlock()
	return buffer.buffer.Write(data)
}

func (buffer *syncBuffer) String() string {
	buffer.mutex.Lock()
	defer buffer.mutex.Unlock()
	return buffer.buffer.String()
}
