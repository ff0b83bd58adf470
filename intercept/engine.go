// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package intercept

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/bureau-foundation/ptyhooks/lib/clock"
)

// Exit codes reported when the child could not be started, following
// the shell convention.
const (
	ExitCannotExecute = 126
	ExitNotFound      = 127
)

// terminateGracePeriod is how long the engine lets the child react to
// a forwarded terminating signal before tearing the session down.
const terminateGracePeriod = 2 * time.Second

// EngineConfig configures one intercepted session.
type EngineConfig struct {
	Session SessionConfig

	// Registry holds the hook chains. It is frozen before the relay
	// starts. Nil runs without hooks.
	Registry *Registry

	Policy       FailurePolicy
	BufferSize   int
	DrainTimeout time.Duration

	// Input is the real terminal's input side, normally os.Stdin. When
	// it is a terminal it is switched to raw mode for the session and
	// its window size is mirrored onto the child.
	Input io.Reader

	// Output is the real terminal's output side, normally os.Stdout.
	Output io.Writer

	// Raw enables raw mode on Input when it is a terminal.
	Raw        bool
	RawOptions RawOptions

	// OnRawMode is called right after raw mode is entered and before
	// any bytes are relayed.
	OnRawMode func(mode *RawMode)

	Tap    Tap
	Logger *slog.Logger
	Clock  clock.Clock

	// Signals overrides the signal subscription of the bridge. See
	// BridgeConfig.Signals.
	Signals <-chan os.Signal
}

// Run spawns the child, relays between the terminal and the child
// through the registry's hooks, and returns the child's exit code
// together with the fatal relay error, if any.
//
// Startup order: spawn the child, freeze the registry, enter raw mode,
// start the signal bridge, run the relay. A *SpawnError is returned
// before the terminal mode is touched. Once raw mode has been entered it
// is restored on every return path, including a panic unwinding through
// Run.
func Run(ctx context.Context, config EngineConfig) (exitCode int, err error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	engineClock := config.Clock
	if engineClock == nil {
		engineClock = clock.Real()
	}
	registry := config.Registry
	if registry == nil {
		registry = NewRegistry(RegistryConfig{Logger: logger, Clock: engineClock})
	}

	session, err := OpenSession(config.Session)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return ExitNotFound, err
		}
		return ExitCannotExecute, err
	}
	defer session.Close()
	logger.Info("child started",
		"command", config.Session.Command,
		"args", config.Session.Args,
		"pid", session.Pid(),
	)

	registry.Freeze()

	terminalFd := -1
	if file, ok := config.Input.(*os.File); ok {
		terminalFd = int(file.Fd())
	}

	rawMode := &RawMode{fd: terminalFd, restored: true}
	if config.Raw && terminalFd >= 0 {
		rawMode, err = EnterRawMode(terminalFd, config.RawOptions)
		if err != nil {
			return ExitCannotExecute, err
		}
	}
	defer rawMode.Restore()
	if config.OnRawMode != nil {
		config.OnRawMode(rawMode)
	}

	relayContext, cancel := context.WithCancel(ctx)
	defer cancel()

	stopBridge := StartSignalBridge(BridgeConfig{
		Target:     session,
		TerminalFd: terminalFd,
		Logger:     logger,
		Tap:        config.Tap,
		Signals:    config.Signals,
		OnTerminate: func(sig os.Signal) {
			select {
			case <-session.Exited():
			case <-engineClock.After(terminateGracePeriod):
				logger.Warn("child still running after forwarded signal", "signal", sig.String())
			}
			cancel()
		},
	})
	defer stopBridge()

	relay := &Relay{
		Child:        session,
		Terminal:     config.Input,
		Output:       config.Output,
		Registry:     registry,
		Policy:       config.Policy,
		BufferSize:   config.BufferSize,
		DrainTimeout: config.DrainTimeout,
		Tap:          config.Tap,
		Logger:       logger,
		Clock:        engineClock,
	}
	relayErr := relay.Run(relayContext, session.Exited())

	stopBridge()
	if closeErr := session.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
		logger.Debug("closing PTY", "error", closeErr)
	}
	exitCode = session.Wait()

	if restoreErr := rawMode.Restore(); restoreErr != nil {
		logger.Warn("restoring terminal mode", "error", restoreErr)
	}
	logger.Info("child exited", "exit_code", exitCode)

	for _, direction := range []Direction{Input, Output} {
		for _, stats := range registry.Stats(direction) {
			logger.Debug("hook stats",
				"direction", direction.String(),
				"hook", stats.Name,
				"calls", stats.Calls,
				"replaced", stats.Replaced,
				"suppressed", stats.Suppressed,
				"failed", stats.Failed,
				"slow", stats.Slow,
			)
		}
	}
	return exitCode, relayErr
}
