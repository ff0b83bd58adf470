// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package intercept

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/ptyhooks/lib/process"
)

// closeGracePeriod bounds how long Close waits for the child to exit
// after SIGHUP before killing it.
const closeGracePeriod = 2 * time.Second

// SessionConfig describes the child process to run under a PTY.
type SessionConfig struct {
	// Command is the program to run. Resolved through PATH when it
	// contains no slash.
	Command string
	Args    []string

	// Env holds KEY=VALUE overrides appended to the inherited
	// environment. Later entries win.
	Env []string

	// Dir is the child's working directory. Empty means the current
	// directory.
	Dir string

	// Columns and Rows set the initial window size. Zero leaves the
	// kernel default until the first resize.
	Columns uint16
	Rows    uint16
}

// Session owns a PTY pair and the child process attached to its
// subordinate side. The subordinate side is closed in the parent as soon
// as the child has started; the session keeps only the controlling
// (master) side.
type Session struct {
	master  *os.File
	command *exec.Cmd

	closeOnce sync.Once
	closeErr  error

	exited  chan struct{}
	waitErr error
}

// OpenSession allocates a PTY and starts the configured command with
// the subordinate side as its controlling terminal, in a new session.
// Returns a *SpawnError if the child could not be started; no
// descriptors are leaked on that path.
func OpenSession(config SessionConfig) (*Session, error) {
	if config.Command == "" {
		return nil, &SpawnError{Command: "(empty)", Err: errors.New("no command given")}
	}

	command := exec.Command(config.Command, config.Args...)
	command.Env = append(os.Environ(), config.Env...)
	command.Dir = config.Dir

	var size *pty.Winsize
	if config.Columns > 0 && config.Rows > 0 {
		size = &pty.Winsize{Cols: config.Columns, Rows: config.Rows}
	}

	// StartWithSize sets Setsid and Setctty so the child gets the
	// subordinate PTY as its controlling terminal, and closes the
	// subordinate side in the parent once the child has started.
	master, err := pty.StartWithSize(command, size)
	if err != nil {
		return nil, &SpawnError{Command: config.Command, Err: err}
	}

	session := &Session{
		master:  master,
		command: command,
		exited:  make(chan struct{}),
	}
	go session.reap()
	return session, nil
}

// reap waits for the child and records its status. Exactly one call to
// exec.Cmd.Wait happens per session.
func (session *Session) reap() {
	session.waitErr = session.command.Wait()
	close(session.exited)
}

// Read reads child output from the PTY master.
func (session *Session) Read(buffer []byte) (int, error) {
	return session.master.Read(buffer)
}

// Write writes to the child's input through the PTY master.
func (session *Session) Write(data []byte) (int, error) {
	return session.master.Write(data)
}

// Pid returns the child's process ID, which is also its session and
// process group ID.
func (session *Session) Pid() int {
	return session.command.Process.Pid
}

// Exited is closed once the child has exited and been reaped.
func (session *Session) Exited() <-chan struct{} {
	return session.exited
}

// Resize sets the PTY window size with TIOCSWINSZ. The kernel delivers
// SIGWINCH to the foreground process group attached to the subordinate
// side.
func (session *Session) Resize(columns, rows uint16) error {
	winsize := &unix.Winsize{
		Col: columns,
		Row: rows,
	}
	err := session.control(func(fd int) error {
		return unix.IoctlSetWinsize(fd, unix.TIOCSWINSZ, winsize)
	})
	if err != nil {
		return fmt.Errorf("set PTY window size %dx%d: %w", columns, rows, err)
	}
	return nil
}

// Size returns the PTY window size.
func (session *Session) Size() (columns, rows uint16, err error) {
	err = session.control(func(fd int) error {
		winsize, ioctlErr := unix.IoctlGetWinsize(fd, unix.TIOCGWINSZ)
		if ioctlErr != nil {
			return ioctlErr
		}
		columns, rows = winsize.Col, winsize.Row
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("get PTY window size: %w", err)
	}
	return columns, rows, nil
}

// control runs an ioctl against the master descriptor without calling
// os.File.Fd, which would switch the descriptor to blocking mode and
// stop Close from interrupting a pending Read.
func (session *Session) control(function func(fd int) error) error {
	rawConn, err := session.master.SyscallConn()
	if err != nil {
		return err
	}
	var ioctlErr error
	if err := rawConn.Control(func(fd uintptr) {
		ioctlErr = function(int(fd))
	}); err != nil {
		return err
	}
	return ioctlErr
}

// Signal sends sig to the child. Signalling a child that has already
// exited is not an error.
func (session *Session) Signal(sig os.Signal) error {
	select {
	case <-session.exited:
		return nil
	default:
	}
	if err := session.command.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("signal child %d with %v: %w", session.Pid(), sig, err)
	}
	return nil
}

// Wait blocks until the child exits and returns its exit code
// (128+signal for a child killed by a signal).
func (session *Session) Wait() int {
	<-session.exited
	return process.ExitCode(session.waitErr)
}

// Close closes the PTY master and reaps the child. A child still
// running after the master closes gets SIGHUP from the kernel; Close
// follows up with SIGKILL if it has not exited, so Close never hangs on
// a child that ignores hangups. Close is idempotent.
func (session *Session) Close() error {
	session.closeOnce.Do(func() {
		session.closeErr = session.master.Close()
		select {
		case <-session.exited:
		default:
			_ = session.command.Process.Signal(syscall.SIGHUP)
			select {
			case <-session.exited:
			case <-time.After(closeGracePeriod):
				_ = session.command.Process.Kill()
				<-session.exited
			}
		}
	})
	return session.closeErr
}
