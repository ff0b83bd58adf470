// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package intercept

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/muesli/cancelreader"

	"github.com/bureau-foundation/ptyhooks/lib/clock"
)

const (
	// DefaultBufferSize is the read size for each relay direction.
	DefaultBufferSize = 4096

	// DefaultDrainTimeout bounds how long output keeps draining after
	// the child has exited.
	DefaultDrainTimeout = 500 * time.Millisecond
)

// FailurePolicy decides what the relay does when a hook fails.
type FailurePolicy int

const (
	// FailOpen logs the failure and forwards the chunk as it was before
	// the chain ran. The session continues.
	FailOpen FailurePolicy = iota
	// FailClosed ends the session with the *HookError.
	FailClosed
)

func (policy FailurePolicy) String() string {
	switch policy {
	case FailOpen:
		return "open"
	case FailClosed:
		return "closed"
	default:
		return fmt.Sprintf("policy(%d)", int(policy))
	}
}

// ParseFailurePolicy accepts "open" or "closed" (case-insensitive), as
// well as the empty string for the default.
func ParseFailurePolicy(value string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "open", "fail-open":
		return FailOpen, nil
	case "closed", "fail-closed":
		return FailClosed, nil
	default:
		return FailOpen, fmt.Errorf("unknown failure policy %q (want \"open\" or \"closed\")", value)
	}
}

// RelayState is the position of one relay direction in its loop.
type RelayState int32

const (
	StateWaitingForData RelayState = iota
	StateDataReady
	StateDispatchingHooks
	StateForwarding
	StateClosed
)

func (state RelayState) String() string {
	switch state {
	case StateWaitingForData:
		return "waiting-for-data"
	case StateDataReady:
		return "data-ready"
	case StateDispatchingHooks:
		return "dispatching-hooks"
	case StateForwarding:
		return "forwarding"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(state))
	}
}

// Relay copies bytes between a terminal and a child, passing every
// chunk through the registry's hook chain for its direction.
//
// Each direction runs on its own goroutine, so a hook that blocks stalls
// only its own direction. Within a direction chunks are processed
// strictly in order and the hook chain for one chunk completes before
// the next read.
type Relay struct {
	// Child is the child side: reads yield child output, writes reach
	// child input. If Child also implements io.Closer it is closed
	// during teardown to unblock the output reader.
	Child io.ReadWriter

	// Terminal yields bytes typed by the user. An *os.File that
	// supports polling is read through a cancelable reader so teardown
	// never waits on a blocked terminal read.
	Terminal io.Reader

	// Output is the real terminal's output side.
	Output io.Writer

	Registry *Registry
	Policy   FailurePolicy

	// BufferSize is the maximum chunk size read per direction.
	// Defaults to DefaultBufferSize.
	BufferSize int

	// DrainTimeout bounds how long output is still relayed after
	// childExited fires. Defaults to DefaultDrainTimeout.
	DrainTimeout time.Duration

	// Tap, when set, observes forwarded and injected bytes.
	Tap Tap

	Logger *slog.Logger
	Clock  clock.Clock

	states [2]atomic.Int32

	inputChannel  *Channel
	outputChannel *Channel
}

// State returns the current state of one direction. It is intended
// for tests and diagnostics.
func (relay *Relay) State(direction Direction) RelayState {
	if direction != Input && direction != Output {
		return StateClosed
	}
	return RelayState(relay.states[direction].Load())
}

func (relay *Relay) setState(direction Direction, state RelayState) {
	previous := RelayState(relay.states[direction].Swap(int32(state)))
	if state == StateClosed && previous != StateClosed {
		relay.Logger.Debug("relay direction closed",
			"direction", direction.String(),
			"previous_state", previous.String(),
		)
	}
}

// InputChannel returns the channel into the child. Valid once Run has
// started.
func (relay *Relay) InputChannel() *Channel { return relay.inputChannel }

// OutputChannel returns the channel onto the terminal. Valid once Run
// has started.
func (relay *Relay) OutputChannel() *Channel { return relay.outputChannel }

// Run relays until the session ends and returns the fatal error, if any.
//
// The session ends when:
//   - the child's output reaches end of stream (EOF or EIO from a PTY
//     master whose subordinate side has closed);
//   - childExited is closed and output has drained or DrainTimeout
//     elapsed;
//   - ctx is cancelled;
//   - a fatal error occurs: an output-side *IOError, or a *HookError
//     under FailClosed.
//
// End of the terminal's input only stops the input direction. Run
// returns nil when the session ended without a fatal error, including
// through cancellation of ctx.
func (relay *Relay) Run(ctx context.Context, childExited <-chan struct{}) error {
	if relay.Registry == nil {
		relay.Registry = NewRegistry(RegistryConfig{})
	}
	if relay.BufferSize <= 0 {
		relay.BufferSize = DefaultBufferSize
	}
	if relay.DrainTimeout <= 0 {
		relay.DrainTimeout = DefaultDrainTimeout
	}
	if relay.Logger == nil {
		relay.Logger = slog.New(slog.DiscardHandler)
	}
	if relay.Clock == nil {
		relay.Clock = clock.Real()
	}

	relay.inputChannel = NewChannel(Input, relay.Child, relay.Tap)
	relay.outputChannel = NewChannel(Output, relay.Output, relay.Tap)
	relay.states[Input].Store(int32(StateWaitingForData))
	relay.states[Output].Store(int32(StateWaitingForData))

	terminal := newTerminalReader(relay.Terminal, relay.Logger)

	// done is closed when anything ends the session, triggering
	// teardown.
	done := make(chan struct{})
	var doneOnce sync.Once
	triggerDone := func() { doneOnce.Do(func() { close(done) }) }

	var fatalMutex sync.Mutex
	var fatal error
	setFatal := func(err error) {
		fatalMutex.Lock()
		if fatal == nil {
			fatal = err
		}
		fatalMutex.Unlock()
		triggerDone()
	}

	outputDone := make(chan struct{})
	go func() {
		defer close(outputDone)
		defer triggerDone()
		if err := relay.pumpOutput(); err != nil {
			setFatal(err)
		}
	}()

	inputDone := make(chan struct{})
	go func() {
		defer close(inputDone)
		if err := relay.pumpInput(terminal); err != nil {
			setFatal(err)
		}
	}()

	// Child exit starts the drain window: output already written by the
	// child is still relayed until end of stream or the timeout.
	go func() {
		select {
		case <-childExited:
		case <-done:
			return
		}
		select {
		case <-outputDone:
		case <-relay.Clock.After(relay.DrainTimeout):
			relay.Logger.Debug("output drain timed out", "timeout", relay.DrainTimeout)
		case <-done:
		}
		triggerDone()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		triggerDone()
	}

	// Teardown: unblock the terminal reader, then the child reader.
	canceled := terminal.Cancel()
	if closer, ok := relay.Child.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			relay.Logger.Debug("closing child side during teardown", "error", err)
		}
	}
	<-outputDone
	// A reader that cannot be cancelled may stay blocked until the
	// user's next keystroke; do not wait for it.
	if canceled {
		<-inputDone
		_ = terminal.Close()
	}
	relay.setState(Input, StateClosed)
	relay.setState(Output, StateClosed)

	fatalMutex.Lock()
	defer fatalMutex.Unlock()
	return fatal
}

// pumpOutput relays child output to the terminal. It returns nil on end
// of stream and a fatal error otherwise.
func (relay *Relay) pumpOutput() error {
	defer relay.setState(Output, StateClosed)
	context := make(Context)
	buffer := make([]byte, relay.BufferSize)
	for {
		relay.setState(Output, StateWaitingForData)
		bytesRead, readErr := relay.Child.Read(buffer)
		if bytesRead > 0 {
			if err := relay.dispatch(Output, buffer[:bytesRead], relay.outputChannel, context); err != nil {
				return err
			}
		}
		if readErr != nil {
			if isEndOfStream(readErr) {
				return nil
			}
			return &IOError{Direction: Output, Op: "read", Err: readErr}
		}
	}
}

// pumpInput relays terminal input to the child. End of input and input
// I/O errors stop only this direction; the only fatal error it returns
// is a *HookError under FailClosed.
func (relay *Relay) pumpInput(terminal cancelreader.CancelReader) error {
	defer relay.setState(Input, StateClosed)
	context := make(Context)
	buffer := make([]byte, relay.BufferSize)
	for {
		relay.setState(Input, StateWaitingForData)
		bytesRead, readErr := terminal.Read(buffer)
		if bytesRead > 0 {
			if err := relay.dispatch(Input, buffer[:bytesRead], relay.inputChannel, context); err != nil {
				var ioErr *IOError
				if errors.As(err, &ioErr) {
					relay.Logger.Warn("input forwarding stopped", "error", err)
					return nil
				}
				return err
			}
		}
		if readErr != nil {
			switch {
			case errors.Is(readErr, cancelreader.ErrCanceled):
			case isEndOfStream(readErr):
				relay.Logger.Debug("terminal input reached end of stream")
			default:
				relay.Logger.Warn("terminal input stopped",
					"error", &IOError{Direction: Input, Op: "read", Err: readErr})
			}
			return nil
		}
	}
}

// dispatch runs the hook chain for one chunk and forwards the result to
// destination. It returns a *HookError under FailClosed or an *IOError
// when the forwarding write fails.
func (relay *Relay) dispatch(direction Direction, chunk []byte, destination *Channel, context Context) error {
	relay.setState(direction, StateDataReady)
	relay.setState(direction, StateDispatchingHooks)
	data, err := relay.Registry.RunChain(direction, chunk, relay.inputChannel, relay.outputChannel, context)
	if err != nil {
		if relay.Policy == FailClosed {
			return err
		}
		attributes := []any{"error", err}
		var hookErr *HookError
		if errors.As(err, &hookErr) && hookErr.Panicked {
			attributes = append(attributes, "stack", string(hookErr.Stack))
		}
		relay.Logger.Warn("hook failed, forwarding chunk unmodified", attributes...)
	}
	if len(data) == 0 {
		return nil
	}
	relay.setState(direction, StateForwarding)
	if err := destination.forward(data); err != nil {
		return &IOError{Direction: direction, Op: "write", Err: err}
	}
	return nil
}

// isEndOfStream reports whether err marks the normal end of a stream.
// A PTY master returns EIO once the subordinate side has no open
// descriptors left; a closed descriptor during teardown reads as
// os.ErrClosed.
func isEndOfStream(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.EIO) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, fs.ErrClosed)
}

// uncancelableReader adapts a reader that cannot be interrupted.
type uncancelableReader struct {
	io.Reader
}

func (uncancelableReader) Cancel() bool { return false }
func (uncancelableReader) Close() error { return nil }

func newTerminalReader(reader io.Reader, logger *slog.Logger) cancelreader.CancelReader {
	if reader == nil {
		return uncancelableReader{Reader: eofReader{}}
	}
	cancelable, err := cancelreader.NewReader(reader)
	if err != nil {
		logger.Debug("terminal input is not cancelable", "error", err)
		return uncancelableReader{Reader: reader}
	}
	return cancelable
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }
