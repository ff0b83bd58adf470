// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hookscript

import (
	"os"

	lua "github.com/yuin/gopher-lua"

	"github.com/bureau-foundation/ptyhooks/intercept"
)

const (
	// ModuleName is the name scripts pass to require.
	ModuleName = "ptyhooks"

	// InputHooksGlobal and OutputHooksGlobal name the tables the
	// loader reads after the script has run.
	InputHooksGlobal  = "PTY_INPUT_HOOKS"
	OutputHooksGlobal = "PTY_OUTPUT_HOOKS"

	channelTypeName = "ptyhooks.channel"
)

// openModule registers the ptyhooks module and the channel userdata
// type.
func openModule(state *lua.LState) {
	channelMethods := map[string]lua.LGFunction{
		"write": channelWrite,
	}
	metatable := state.NewTypeMetatable(channelTypeName)
	state.SetField(metatable, "__index", state.SetFuncs(state.NewTable(), channelMethods))
	state.SetField(metatable, "__tostring", state.NewFunction(func(L *lua.LState) int {
		channel := checkChannel(L, 1)
		L.Push(lua.LString("channel(" + channel.Destination.String() + ")"))
		return 1
	}))

	state.PreloadModule(ModuleName, func(L *lua.LState) int {
		module := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
			"write":       moduleWrite,
			"getenv":      moduleGetenv,
			"input_hook":  appendHook(InputHooksGlobal),
			"output_hook": appendHook(OutputHooksGlobal),
		})
		L.SetField(module, "INPUT", lua.LString(intercept.Input.String()))
		L.SetField(module, "OUTPUT", lua.LString(intercept.Output.String()))
		L.Push(module)
		return 1
	})
}

// newChannel wraps a channel for passing into Lua.
func newChannel(state *lua.LState, channel *intercept.Channel) *lua.LUserData {
	userData := state.NewUserData()
	userData.Value = channel
	state.SetMetatable(userData, state.GetTypeMetatable(channelTypeName))
	return userData
}

func checkChannel(L *lua.LState, position int) *intercept.Channel {
	userData := L.CheckUserData(position)
	channel, ok := userData.Value.(*intercept.Channel)
	if !ok || channel == nil {
		L.ArgError(position, "channel expected")
		return nil
	}
	return channel
}

// writeTo writes the string at position 2 to the channel at position 1
// and returns the number of bytes written, or raises a Lua error.
func writeTo(L *lua.LState) int {
	channel := checkChannel(L, 1)
	data := L.CheckString(2)
	written, err := channel.WriteString(data)
	if err != nil {
		L.RaiseError("write to %s: %v", channel.Destination, err)
		return 0
	}
	L.Push(lua.LNumber(written))
	return 1
}

// ptyhooks.write(channel, data)
func moduleWrite(L *lua.LState) int { return writeTo(L) }

// channel:write(data)
func channelWrite(L *lua.LState) int { return writeTo(L) }

// ptyhooks.getenv(name) returns the variable's value or nil.
func moduleGetenv(L *lua.LState) int {
	value, ok := os.LookupEnv(L.CheckString(1))
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(value))
	return 1
}

// appendHook returns the body of ptyhooks.input_hook / output_hook:
// append fn to the named global list (creating it if needed) and return
// fn, so the call can wrap a function definition.
func appendHook(global string) lua.LGFunction {
	return func(L *lua.LState) int {
		function := L.CheckFunction(1)
		list, ok := L.GetGlobal(global).(*lua.LTable)
		if !ok {
			if L.GetGlobal(global) != lua.LNil {
				L.RaiseError("%s is not a table", global)
				return 0
			}
			list = L.NewTable()
			L.SetGlobal(global, list)
		}
		list.Append(function)
		L.Push(function)
		return 1
	}
}
