// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package intercept

import (
	"io"
	"sync"
)

// Channel is a serialized writer onto one side of the relay. The
// relay's own forwarding and hook side-channel writes for the same
// destination go through one Channel, so each write lands whole and
// never interleaves with another.
type Channel struct {
	// Destination is Input for the channel into the child and Output
	// for the channel onto the real terminal.
	Destination Direction

	mutex  sync.Mutex
	writer io.Writer
	tap    Tap
}

// NewChannel returns a channel writing to w. The tap may be nil.
func NewChannel(destination Direction, w io.Writer, tap Tap) *Channel {
	return &Channel{Destination: destination, writer: w, tap: tap}
}

// Write injects data outside the hook chain's return path. An empty
// write is a no-op.
func (channel *Channel) Write(data []byte) (int, error) {
	return channel.write(data, channel.notifyInjected)
}

// WriteString is Write for a string.
func (channel *Channel) WriteString(data string) (int, error) {
	return channel.Write([]byte(data))
}

// forward writes the final output of a hook chain.
func (channel *Channel) forward(data []byte) error {
	_, err := channel.write(data, channel.notifyForwarded)
	return err
}

func (channel *Channel) notifyInjected(data []byte) {
	channel.tap.Injected(channel.Destination, data)
}

func (channel *Channel) notifyForwarded(data []byte) {
	channel.tap.Forwarded(channel.Destination, data)
}

// write loops over short writes. The tap is told about the written
// bytes while the lock is still held, so it sees writes in the order
// they reached the destination.
func (channel *Channel) write(data []byte, notify func([]byte)) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}
	channel.mutex.Lock()
	defer channel.mutex.Unlock()
	total := 0
	var err error
	for total < len(data) {
		var written int
		written, err = channel.writer.Write(data[total:])
		total += written
		if err != nil {
			break
		}
		if written == 0 {
			err = io.ErrShortWrite
			break
		}
	}
	if total > 0 && channel.tap != nil {
		notify(data[:total])
	}
	return total, err
}
