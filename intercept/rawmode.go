// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package intercept

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// RawOptions adjusts the terminal mode entered by EnterRawMode.
type RawOptions struct {
	// KeepSignals leaves ISIG enabled so Ctrl-C and Ctrl-\ raise
	// signals in this process instead of passing through as bytes.
	KeepSignals bool
}

// RawMode holds the terminal state captured before switching the
// terminal to raw mode, and restores it exactly once.
type RawMode struct {
	fd       int
	previous *term.State

	mutex    sync.Mutex
	restored bool
	restores int
}

// EnterRawMode captures the current mode of fd and puts it into raw
// mode: no line buffering, no echo, no output post-processing. If fd is
// not a terminal the returned RawMode is inert and Restore does
// nothing.
func EnterRawMode(fd int, options RawOptions) (*RawMode, error) {
	if !term.IsTerminal(fd) {
		return &RawMode{fd: fd, restored: true}, nil
	}

	previous, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("enter raw mode on fd %d: %w", fd, err)
	}
	mode := &RawMode{fd: fd, previous: previous}

	if options.KeepSignals {
		termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
		if err == nil {
			termios.Lflag |= unix.ISIG
			err = unix.IoctlSetTermios(fd, unix.TCSETS, termios)
		}
		if err != nil {
			mode.Restore()
			return nil, fmt.Errorf("re-enable terminal signals on fd %d: %w", fd, err)
		}
	}
	return mode, nil
}

// Active reports whether the terminal is currently in the mode entered
// by EnterRawMode.
func (mode *RawMode) Active() bool {
	mode.mutex.Lock()
	defer mode.mutex.Unlock()
	return !mode.restored
}

// Previous returns the terminal state captured on entry, or nil for an
// inert RawMode.
func (mode *RawMode) Previous() *term.State {
	return mode.previous
}

// Restore puts the terminal back into the captured mode. Only the first
// call has any effect.
func (mode *RawMode) Restore() error {
	mode.mutex.Lock()
	defer mode.mutex.Unlock()
	if mode.restored {
		return nil
	}
	mode.restored = true
	mode.restores++
	if err := term.Restore(mode.fd, mode.previous); err != nil {
		return fmt.Errorf("restore terminal mode on fd %d: %w", mode.fd, err)
	}
	return nil
}

// RestoreCount returns how many times the captured mode was actually
// written back: 0 or 1.
func (mode *RawMode) RestoreCount() int {
	mode.mutex.Lock()
	defer mode.mutex.Unlock()
	return mode.restores
}
