// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package recording

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bureau-foundation/ptyhooks/intercept"
	"github.com/bureau-foundation/ptyhooks/lib/clock"
	"github.com/bureau-foundation/ptyhooks/lib/codec"
)

// Player reads a recording. The frames can be consumed once, by Next,
// Play or Info.
type Player struct {
	// Speed scales playback: 2 plays twice as fast, 0.5 at half speed.
	// Zero or negative writes everything without pacing.
	Speed float64

	// MaxIdle caps any single pause during playback. Zero means no cap.
	MaxIdle time.Duration

	// Clock paces playback. Defaults to the real clock.
	Clock clock.Clock

	header      Header
	rawHeader   []byte
	compression CompressionTag
	frames      io.Reader
	release     func()
	closer      io.Closer
}

// Open opens the recording at path and reads its header.
func Open(path string) (*Player, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening recording: %w", err)
	}
	player, err := NewPlayer(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	player.closer = file
	return player, nil
}

// NewPlayer reads the magic, compression tag and header frame from r.
func NewPlayer(r io.Reader) (*Player, error) {
	buffered := bufio.NewReader(r)
	magic := make([]byte, len(Magic)+1)
	if _, err := io.ReadFull(buffered, magic); err != nil {
		return nil, fmt.Errorf("reading recording magic: %w", err)
	}
	if string(magic[:len(Magic)]) != Magic {
		return nil, errors.New("not a ptyhooks recording (bad magic)")
	}
	compression := CompressionTag(magic[len(Magic)])
	frames, release, err := newDecompressor(buffered, compression)
	if err != nil {
		return nil, err
	}

	first, err := readFrame(frames)
	if err != nil {
		release()
		return nil, fmt.Errorf("reading header frame: %w", err)
	}
	if first.Type != FrameHeader {
		release()
		return nil, fmt.Errorf("first frame is %s, want header", first.Type)
	}
	var header Header
	if err := codec.Unmarshal(first.Payload, &header); err != nil {
		release()
		return nil, fmt.Errorf("decoding recording header: %w", err)
	}

	return &Player{
		Speed:       1,
		header:      header,
		rawHeader:   first.Payload,
		compression: compression,
		frames:      frames,
		release:     release,
	}, nil
}

// Header returns the recording's header.
func (player *Player) Header() Header { return player.header }

// RawHeader returns the header frame's CBOR payload as stored.
func (player *Player) RawHeader() []byte { return player.rawHeader }

// Compression returns the recording's compression.
func (player *Player) Compression() CompressionTag { return player.compression }

// Next returns the next frame after the header. It returns io.EOF after
// the last frame and ErrTruncated if the recording ends mid-frame.
func (player *Player) Next() (Frame, error) {
	return readFrame(player.frames)
}

// Play writes everything the terminal displayed, forwarded output and
// output-side injections, to w. Pauses between frames follow the
// recorded timestamps divided by Speed. Play stops at the exit frame,
// at the end of the recording, or when ctx is cancelled.
func (player *Player) Play(ctx context.Context, w io.Writer) error {
	playerClock := player.Clock
	if playerClock == nil {
		playerClock = clock.Real()
	}
	var previous time.Duration
	for {
		frame, err := player.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		var data []byte
		switch frame.Type {
		case FrameOutput:
			data = frame.Payload
		case FrameInject:
			destination, injected, err := ParseInject(frame.Payload)
			if err != nil {
				return err
			}
			if destination == intercept.Output {
				data = injected
			}
		case FrameExit:
			return nil
		}
		if len(data) == 0 {
			continue
		}

		if pause := player.pause(frame.Elapsed - previous); pause > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-playerClock.After(pause):
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		previous = frame.Elapsed

		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("writing playback: %w", err)
		}
	}
}

func (player *Player) pause(gap time.Duration) time.Duration {
	if player.Speed <= 0 || gap <= 0 {
		return 0
	}
	pause := time.Duration(float64(gap) / player.Speed)
	if player.MaxIdle > 0 && pause > player.MaxIdle {
		pause = player.MaxIdle
	}
	return pause
}

// Info summarizes a recording.
type Info struct {
	Header      Header
	Compression CompressionTag

	// Frames counts frames by type, excluding the header.
	Frames map[FrameType]int

	InputBytes    int
	OutputBytes   int
	InjectedBytes int

	// Duration is the timestamp of the last frame.
	Duration time.Duration

	// ExitCode is the child's exit code; valid when Complete is true.
	ExitCode int
	// Complete is true when the recording ends with an exit frame.
	Complete bool
	// Truncated is true when the recording ends mid-frame.
	Truncated bool
}

// Info reads the remaining frames and summarizes them.
func (player *Player) Info() (Info, error) {
	info := Info{
		Header:      player.header,
		Compression: player.compression,
		Frames:      make(map[FrameType]int),
	}
	for {
		frame, err := player.Next()
		if errors.Is(err, io.EOF) {
			return info, nil
		}
		if errors.Is(err, ErrTruncated) {
			info.Truncated = true
			return info, nil
		}
		if err != nil {
			return info, err
		}
		info.Frames[frame.Type]++
		info.Duration = frame.Elapsed
		switch frame.Type {
		case FrameInput:
			info.InputBytes += len(frame.Payload)
		case FrameOutput:
			info.OutputBytes += len(frame.Payload)
		case FrameInject:
			info.InjectedBytes += max(len(frame.Payload)-1, 0)
		case FrameExit:
			code, err := ParseExit(frame.Payload)
			if err != nil {
				return info, err
			}
			info.ExitCode = code
			info.Complete = true
		}
	}
}

// Close releases the decompressor and the underlying file, if Open
// opened one.
func (player *Player) Close() error {
	if player.release != nil {
		player.release()
		player.release = nil
	}
	if player.closer != nil {
		err := player.closer.Close()
		player.closer = nil
		return err
	}
	return nil
}
