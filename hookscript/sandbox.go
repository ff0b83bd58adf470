// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hookscript

import (
	"fmt"
	"log/slog"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// newSandbox returns an interpreter with only the safe standard
// libraries opened. require is limited to the preloaded ptyhooks module
// and the already-open libraries; nothing can be loaded from disk.
func newSandbox(logger *slog.Logger) (*lua.LState, error) {
	state := lua.NewState(lua.Options{SkipOpenLibs: true})

	for _, library := range []struct {
		name     string
		function lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		err := state.CallByParam(lua.P{
			Fn:      state.NewFunction(library.function),
			NRet:    0,
			Protect: true,
		}, lua.LString(library.name))
		if err != nil {
			state.Close()
			return nil, fmt.Errorf("opening Lua library %q: %w", library.name, err)
		}
	}

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "collectgarbage"} {
		state.SetGlobal(name, lua.LNil)
	}

	if packageTable, ok := state.GetGlobal("package").(*lua.LTable); ok {
		state.SetField(packageTable, "path", lua.LString(""))
		state.SetField(packageTable, "cpath", lua.LString(""))
		// Only preload entries may be required; drop the file
		// searchers so a missing module never touches the filesystem.
		if loaders, ok := state.GetField(packageTable, "loaders").(*lua.LTable); ok {
			for index := loaders.Len(); index > 1; index-- {
				loaders.Remove(index)
			}
		}
	}

	// The terminal is in raw mode while hooks run, so print goes to the
	// log instead of stdout.
	state.SetGlobal("print", state.NewFunction(func(L *lua.LState) int {
		parts := make([]string, L.GetTop())
		for index := range parts {
			parts[index] = L.ToStringMeta(L.Get(index + 1)).String()
		}
		logger.Info("hook script print", "message", strings.Join(parts, "\t"))
		return 0
	}))

	return state, nil
}
