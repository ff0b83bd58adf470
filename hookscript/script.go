// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hookscript

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/bureau-foundation/ptyhooks/intercept"
	"github.com/bureau-foundation/ptyhooks/lib/digest"
)

// DefaultTimeout bounds a single hook call, and the script's top-level
// execution at load time.
const DefaultTimeout = time.Second

// contextKey is where a hook's Lua context table lives in the
// direction's intercept.Context.
const contextKey = "hookscript.context"

// Options configures Load.
type Options struct {
	Logger *slog.Logger

	// Timeout bounds each hook call. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Script is a loaded hook script. Its hooks stay registered with the
// registry for the rest of the session; Close releases the interpreter
// once the relay has stopped.
type Script struct {
	name    string
	digest  digest.Digest
	timeout time.Duration
	logger  *slog.Logger

	mutex  sync.Mutex
	state  *lua.LState
	closed bool

	channels map[*intercept.Channel]*lua.LUserData

	inputHooks  int
	outputHooks int
}

// Load runs the script at path and registers its hooks with registry.
func Load(path string, registry *intercept.Registry, options Options) (*Script, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading hook script: %w", err)
	}
	return LoadSource(path, source, registry, options)
}

// LoadSource is Load for a script already in memory. name identifies
// the script in hook names and error messages.
func LoadSource(name string, source []byte, registry *intercept.Registry, options Options) (*Script, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	state, err := newSandbox(logger)
	if err != nil {
		return nil, err
	}
	openModule(state)

	script := &Script{
		name:     name,
		digest:   digest.Bytes(source),
		timeout:  timeout,
		logger:   logger,
		state:    state,
		channels: make(map[*intercept.Channel]*lua.LUserData),
	}

	if err := script.run(source); err != nil {
		state.Close()
		return nil, err
	}

	inputs, err := script.collect(InputHooksGlobal)
	if err != nil {
		state.Close()
		return nil, err
	}
	outputs, err := script.collect(OutputHooksGlobal)
	if err != nil {
		state.Close()
		return nil, err
	}
	for _, function := range inputs {
		registry.Add(intercept.Input, script.hookName(function), script.hook(intercept.Input, function))
	}
	for _, function := range outputs {
		registry.Add(intercept.Output, script.hookName(function), script.hook(intercept.Output, function))
	}
	script.inputHooks = len(inputs)
	script.outputHooks = len(outputs)

	logger.Info("hook script loaded",
		"script", name,
		"digest", script.digest.Short(),
		"input_hooks", script.inputHooks,
		"output_hooks", script.outputHooks,
	)
	return script, nil
}

// run executes the script's top level under the timeout.
func (script *Script) run(source []byte) error {
	function, err := script.state.Load(bytes.NewReader(source), script.name)
	if err != nil {
		return fmt.Errorf("parsing hook script %s: %w", script.name, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), script.timeout)
	defer cancel()
	script.state.SetContext(ctx)
	defer script.state.RemoveContext()

	err = script.state.CallByParam(lua.P{Fn: function, NRet: 0, Protect: true})
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("running hook script %s: exceeded %v: %w", script.name, script.timeout, ctx.Err())
		}
		return fmt.Errorf("running hook script %s: %w", script.name, err)
	}
	return nil
}

// collect returns the functions in the named global list. A missing
// global yields none.
func (script *Script) collect(global string) ([]*lua.LFunction, error) {
	value := script.state.GetGlobal(global)
	if value == lua.LNil {
		return nil, nil
	}
	list, ok := value.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("hook script %s: %s is a %s, want a table", script.name, global, value.Type())
	}
	functions := make([]*lua.LFunction, 0, list.Len())
	for index := 1; index <= list.Len(); index++ {
		function, ok := list.RawGetInt(index).(*lua.LFunction)
		if !ok {
			return nil, fmt.Errorf("hook script %s: %s[%d] is a %s, want a function",
				script.name, global, index, list.RawGetInt(index).Type())
		}
		functions = append(functions, function)
	}
	return functions, nil
}

// hookName names a Lua hook by where it was defined.
func (script *Script) hookName(function *lua.LFunction) string {
	if function.Proto == nil {
		return "lua:" + script.name
	}
	return fmt.Sprintf("lua:%s:%d", function.Proto.SourceName, function.Proto.LineDefined)
}

// hook adapts a Lua function to intercept.Hook.
func (script *Script) hook(direction intercept.Direction, function *lua.LFunction) intercept.Hook {
	return func(call *intercept.Call) (intercept.Result, error) {
		script.mutex.Lock()
		defer script.mutex.Unlock()
		if script.closed {
			return intercept.Unchanged(), errors.New("hook script is closed")
		}

		state := script.state
		ctx, cancel := context.WithTimeout(context.Background(), script.timeout)
		defer cancel()
		state.SetContext(ctx)
		defer state.RemoveContext()

		err := state.CallByParam(lua.P{Fn: function, NRet: 1, Protect: true},
			lua.LString(call.Data),
			script.channel(call.Channel),
			script.context(direction, call),
		)
		if err != nil {
			if ctx.Err() != nil {
				return intercept.Unchanged(), fmt.Errorf("exceeded %v: %w", script.timeout, ctx.Err())
			}
			return intercept.Unchanged(), err
		}
		returned := state.Get(-1)
		state.Pop(1)
		return result(returned)
	}
}

// result maps a hook's return value onto a chain result.
func result(value lua.LValue) (intercept.Result, error) {
	switch value := value.(type) {
	case *lua.LNilType:
		return intercept.Unchanged(), nil
	case lua.LBool:
		if value {
			return intercept.Unchanged(), nil
		}
		return intercept.Suppress(), nil
	case lua.LString:
		return intercept.Replace([]byte(value)), nil
	default:
		return intercept.Unchanged(), fmt.Errorf("hook returned a %s, want nil, a string or false", value.Type())
	}
}

// channel returns the Lua userdata for a channel, creating it on first
// use. Must be called with the script lock held.
func (script *Script) channel(channel *intercept.Channel) lua.LValue {
	if channel == nil {
		return lua.LNil
	}
	userData, ok := script.channels[channel]
	if !ok {
		userData = newChannel(script.state, channel)
		script.channels[channel] = userData
	}
	return userData
}

// context returns the direction's Lua context table, stored in the
// intercept.Context so it lives exactly as long as the session's
// per-direction state. Must be called with the script lock held.
func (script *Script) context(direction intercept.Direction, call *intercept.Call) *lua.LTable {
	table, ok := call.Context[contextKey].(*lua.LTable)
	if !ok {
		table = script.state.NewTable()
		script.state.SetField(table, "direction", lua.LString(direction.String()))
		if call.Context != nil {
			call.Context[contextKey] = table
		}
	}
	script.state.SetField(table, "terminal", script.channel(call.Terminal))
	return table
}

// Name returns the script's name, normally its path.
func (script *Script) Name() string { return script.name }

// Digest returns the BLAKE3 digest of the script source.
func (script *Script) Digest() digest.Digest { return script.digest }

// HookCount returns how many hooks the script registered for each
// direction.
func (script *Script) HookCount() (input, output int) {
	return script.inputHooks, script.outputHooks
}

// Close releases the interpreter. Hooks called afterwards fail with an
// error. Close is idempotent.
func (script *Script) Close() {
	script.mutex.Lock()
	defer script.mutex.Unlock()
	if script.closed {
		return
	}
	script.closed = true
	script.state.Close()
}
