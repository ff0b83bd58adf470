// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package intercept

import (
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/ptyhooks/lib/clock"
)

// RegistryConfig configures a Registry. The zero value is usable:
// logging is discarded, the real clock is used, and slow-hook detection
// is off.
type RegistryConfig struct {
	Logger *slog.Logger
	Clock  clock.Clock

	// SlowHookThreshold logs a warning for any single hook invocation
	// that takes longer than this. Zero disables the check.
	SlowHookThreshold time.Duration
}

// Registry holds the input and output hook chains. Hooks are added
// during configuration; Freeze is called before the relay starts, after
// which the chains are immutable and registration panics.
type Registry struct {
	mutex  sync.Mutex
	chains [2][]*hookEntry
	frozen bool

	logger        *slog.Logger
	clock         clock.Clock
	slowThreshold time.Duration
}

type hookEntry struct {
	name string
	hook Hook

	calls      atomic.Uint64
	replaced   atomic.Uint64
	suppressed atomic.Uint64
	failed     atomic.Uint64
	slow       atomic.Uint64
}

// HookStats is a snapshot of one hook's counters.
type HookStats struct {
	Name       string
	Calls      uint64
	Replaced   uint64
	Suppressed uint64
	Failed     uint64
	Slow       uint64
}

// NewRegistry returns an empty registry.
func NewRegistry(config RegistryConfig) *Registry {
	registry := &Registry{
		logger:        config.Logger,
		clock:         config.Clock,
		slowThreshold: config.SlowHookThreshold,
	}
	if registry.logger == nil {
		registry.logger = slog.New(slog.DiscardHandler)
	}
	if registry.clock == nil {
		registry.clock = clock.Real()
	}
	return registry
}

// AddInput appends hook to the input chain (terminal to child).
func (registry *Registry) AddInput(hook Hook) {
	registry.Add(Input, "", hook)
}

// AddOutput appends hook to the output chain (child to terminal).
func (registry *Registry) AddOutput(hook Hook) {
	registry.Add(Output, "", hook)
}

// Add appends hook to the chain for direction under the given name. An
// empty name is replaced by the hook function's symbol name.
//
// Add panics with a *StateError if the registry is frozen or hook is
// nil: both are programming errors in the startup path.
func (registry *Registry) Add(direction Direction, name string, hook Hook) {
	op := fmt.Sprintf("register %s hook", direction)
	if direction != Input && direction != Output {
		panic(&StateError{Op: op, Reason: "unknown direction"})
	}
	if hook == nil {
		panic(&StateError{Op: op, Reason: "nil hook"})
	}
	if name == "" {
		name = functionName(hook)
	}

	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	if registry.frozen {
		panic(&StateError{Op: op, Reason: "registry is frozen; hooks must be registered before the relay starts"})
	}
	registry.chains[direction] = append(registry.chains[direction], &hookEntry{name: name, hook: hook})
}

// Freeze makes both chains immutable. It is idempotent.
func (registry *Registry) Freeze() {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	registry.frozen = true
}

// Frozen reports whether Freeze has been called.
func (registry *Registry) Frozen() bool {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	return registry.frozen
}

// Len returns the number of hooks in the chain for direction.
func (registry *Registry) Len(direction Direction) int {
	return len(registry.chain(direction))
}

// Names returns the hook names for direction in execution order.
func (registry *Registry) Names(direction Direction) []string {
	entries := registry.chain(direction)
	names := make([]string, len(entries))
	for index, entry := range entries {
		names[index] = entry.name
	}
	return names
}

// Stats returns counters for every hook in the chain for direction.
func (registry *Registry) Stats(direction Direction) []HookStats {
	entries := registry.chain(direction)
	stats := make([]HookStats, len(entries))
	for index, entry := range entries {
		stats[index] = HookStats{
			Name:       entry.name,
			Calls:      entry.calls.Load(),
			Replaced:   entry.replaced.Load(),
			Suppressed: entry.suppressed.Load(),
			Failed:     entry.failed.Load(),
			Slow:       entry.slow.Load(),
		}
	}
	return stats
}

func (registry *Registry) chain(direction Direction) []*hookEntry {
	if direction != Input && direction != Output {
		return nil
	}
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	return registry.chains[direction]
}

// RunChain passes data through every hook for direction in order and
// returns the bytes to forward.
//
// Each hook sees the output of the previous one. A hook returning
// Unchanged passes its input on; Replace substitutes new bytes; an
// empty result swallows the chunk and ends the chain early, in which
// case RunChain returns an empty slice. With no hooks, or when every
// hook returns Unchanged, the result is data itself.
//
// If a hook returns an error or panics, the chain is abandoned and
// RunChain returns the original data together with a *HookError. The
// caller decides whether to forward the data or stop.
func (registry *Registry) RunChain(direction Direction, data []byte, channel, terminal *Channel, context Context) ([]byte, error) {
	entries := registry.chain(direction)
	if len(entries) == 0 {
		return data, nil
	}

	call := Call{
		Direction: direction,
		Channel:   channel,
		Terminal:  terminal,
		Context:   context,
	}
	current := data
	for index, entry := range entries {
		call.Data = current
		result, err := registry.invoke(entry, &call)
		if err != nil {
			entry.failed.Add(1)
			if hookErr, ok := err.(*HookError); ok {
				hookErr.Direction = direction
				hookErr.Index = index
				hookErr.Hook = entry.name
				return data, hookErr
			}
			return data, &HookError{Direction: direction, Index: index, Hook: entry.name, Err: err}
		}
		switch result.action {
		case actionReplace:
			entry.replaced.Add(1)
			current = result.data
		case actionSuppress:
			entry.suppressed.Add(1)
			return data[:0], nil
		}
	}
	return current, nil
}

// invoke calls one hook, converting a panic into a *HookError.
func (registry *Registry) invoke(entry *hookEntry, call *Call) (result Result, err error) {
	entry.calls.Add(1)
	start := registry.clock.Now()
	defer func() {
		if recovered := recover(); recovered != nil {
			err = &HookError{
				Panicked: true,
				Stack:    debug.Stack(),
				Err:      fmt.Errorf("%v", recovered),
			}
		}
		if registry.slowThreshold > 0 {
			if elapsed := clock.Since(registry.clock, start); elapsed > registry.slowThreshold {
				entry.slow.Add(1)
				registry.logger.Warn("slow hook",
					"direction", call.Direction.String(),
					"hook", entry.name,
					"elapsed", elapsed,
					"threshold", registry.slowThreshold,
				)
			}
		}
	}()
	return entry.hook(call)
}

// functionName returns the short symbol name of a function value, such
// as "hooks.Rot13.func1".
func functionName(function any) string {
	pointer := reflect.ValueOf(function).Pointer()
	runtimeFunction := runtime.FuncForPC(pointer)
	if runtimeFunction == nil {
		return fmt.Sprintf("hook@%#x", pointer)
	}
	name := runtimeFunction.Name()
	if slash := strings.LastIndexByte(name, '/'); slash >= 0 {
		name = name[slash+1:]
	}
	return name
}
