// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package intercept

import (
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// SignalTarget receives forwarded signals and window-size changes.
// *Session implements it.
type SignalTarget interface {
	Signal(sig os.Signal) error
	Resize(columns, rows uint16) error
}

// BridgeConfig configures StartSignalBridge.
type BridgeConfig struct {
	Target SignalTarget

	// TerminalFd is the descriptor whose window size is mirrored onto
	// the target. Negative disables resize handling.
	TerminalFd int

	Logger *slog.Logger

	// OnTerminate is called after a terminating signal has been
	// forwarded to the target.
	OnTerminate func(sig os.Signal)

	// Tap, when set, is told about every applied resize.
	Tap Tap

	// Signals overrides the process signal subscription. Tests feed
	// signals through it; nil subscribes with signal.Notify.
	Signals <-chan os.Signal
}

// terminatingSignals are forwarded to the child and end the session.
var terminatingSignals = []os.Signal{syscall.SIGTERM, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT}

// StartSignalBridge mirrors the terminal's window size onto the target
// (once immediately, then on every SIGWINCH) and forwards terminating
// signals. The returned stop function unsubscribes and waits for the
// bridge goroutine to exit; it is safe to call more than once.
func StartSignalBridge(config BridgeConfig) (stop func()) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	signals := config.Signals
	var subscription chan os.Signal
	if signals == nil {
		// Buffered so a resize burst or a signal arriving before the
		// goroutine starts is not dropped.
		subscription = make(chan os.Signal, 8)
		signal.Notify(subscription, append([]os.Signal{syscall.SIGWINCH}, terminatingSignals...)...)
		signals = subscription
	}

	bridge := &signalBridge{config: config, logger: logger}
	bridge.syncSize()

	quit := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for {
			select {
			case <-quit:
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}
				bridge.handle(sig)
			}
		}
	}()

	var stopOnce sync.Once
	return func() {
		stopOnce.Do(func() {
			if subscription != nil {
				signal.Stop(subscription)
			}
			close(quit)
			<-finished
		})
	}
}

type signalBridge struct {
	config BridgeConfig
	logger *slog.Logger
}

func (bridge *signalBridge) handle(sig os.Signal) {
	if sig == syscall.SIGWINCH {
		bridge.syncSize()
		return
	}
	bridge.logger.Info("forwarding signal to child", "signal", sig.String())
	// Ignore send errors: the child may have already exited.
	if err := bridge.config.Target.Signal(sig); err != nil {
		bridge.logger.Debug("signal forward failed", "signal", sig.String(), "error", err)
	}
	if bridge.config.OnTerminate != nil {
		bridge.config.OnTerminate(sig)
	}
}

// syncSize copies the terminal's window size to the target. A terminal
// fd that is not a terminal (or already closed) is silently skipped.
func (bridge *signalBridge) syncSize() {
	if bridge.config.TerminalFd < 0 {
		return
	}
	winsize, err := unix.IoctlGetWinsize(bridge.config.TerminalFd, unix.TIOCGWINSZ)
	if err != nil {
		bridge.logger.Debug("reading terminal size", "error", err)
		return
	}
	if winsize.Col == 0 || winsize.Row == 0 {
		return
	}
	if err := bridge.config.Target.Resize(winsize.Col, winsize.Row); err != nil {
		bridge.logger.Debug("resizing child terminal", "error", err)
		return
	}
	bridge.logger.Debug("child terminal resized", "columns", winsize.Col, "rows", winsize.Row)
	if bridge.config.Tap != nil {
		bridge.config.Tap.Resized(winsize.Col, winsize.Row)
	}
}
