// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"bytes"
	"io"
	"sync"
	"time"
)

// StreamCollector accumulates everything read from a stream in a
// background goroutine so tests can wait for expected output without
// blocking on a Read that may never return.
type StreamCollector struct {
	mutex   sync.Mutex
	data    bytes.Buffer
	changed chan struct{}
	done    chan struct{}
	err     error
}

// CollectStream starts reading r until it returns an error. The
// goroutine exits when r is closed.
func CollectStream(r io.Reader) *StreamCollector {
	collector := &StreamCollector{
		changed: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(collector.done)
		buffer := make([]byte, 4096)
		for {
			bytesRead, err := r.Read(buffer)
			if bytesRead > 0 {
				collector.mutex.Lock()
				collector.data.Write(buffer[:bytesRead])
				collector.mutex.Unlock()
				select {
				case collector.changed <- struct{}{}:
				default:
				}
			}
			if err != nil {
				collector.mutex.Lock()
				collector.err = err
				collector.mutex.Unlock()
				return
			}
		}
	}()
	return collector
}

// Bytes returns a copy of everything collected so far.
func (collector *StreamCollector) Bytes() []byte {
	collector.mutex.Lock()
	defer collector.mutex.Unlock()
	return bytes.Clone(collector.data.Bytes())
}

// Done is closed when the underlying reader has returned an error.
func (collector *StreamCollector) Done() <-chan struct{} {
	return collector.done
}

// RequireContains waits until the collected output contains want, or
// fails the test after timeout. Returns everything collected.
func (collector *StreamCollector) RequireContains(t TB, want []byte, timeout time.Duration) []byte {
	t.Helper()
	deadline := time.After(timeout) //nolint:realclock test hang prevention
	for {
		collected := collector.Bytes()
		if bytes.Contains(collected, want) {
			return collected
		}
		select {
		case <-collector.changed:
		case <-collector.done:
			collected = collector.Bytes()
			if bytes.Contains(collected, want) {
				return collected
			}
			t.Fatalf("stream ended before %q appeared (collected: %q, err: %v)", want, collected, collector.err)
		case <-deadline:
			t.Fatalf("timed out after %v waiting for %q (collected: %q)", timeout, want, collector.Bytes())
		}
	}
}
