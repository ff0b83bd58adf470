// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hookscript

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/ptyhooks/intercept"
	"github.com/bureau-foundation/ptyhooks/lib/digest"
)

// bufferWriter is a goroutine-safe bytes.Buffer.
type bufferWriter struct {
	mutex  sync.Mutex
	buffer bytes.Buffer
}

func (writer *bufferWriter) Write(data []byte) (int, error) {
	writer.mutex.Lock()
	defer writer.mutex.Unlock()
	return writer.buffer.Write(data)
}

func (writer *bufferWriter) String() string {
	writer.mutex.Lock()
	defer writer.mutex.Unlock()
	return writer.buffer.String()
}

// chainHarness holds a registry with a loaded script and channels that
// capture side-channel writes.
type chainHarness struct {
	registry *intercept.Registry
	script   *Script

	childInput *bufferWriter
	terminal   *bufferWriter
	channel    *intercept.Channel
	terminalCh *intercept.Channel
	contexts   map[intercept.Direction]intercept.Context
}

func loadHarness(t *testing.T, source string, options Options) *chainHarness {
	t.Helper()
	registry := intercept.NewRegistry(intercept.RegistryConfig{})
	script, err := LoadSource("test.lua", []byte(source), registry, options)
	if err != nil {
		t.Fatalf("LoadSource: %v", err)
	}
	t.Cleanup(script.Close)
	harness := &chainHarness{
		registry:   registry,
		script:     script,
		childInput: &bufferWriter{},
		terminal:   &bufferWriter{},
		contexts: map[intercept.Direction]intercept.Context{
			intercept.Input:  {},
			intercept.Output: {},
		},
	}
	harness.channel = intercept.NewChannel(intercept.Input, harness.childInput, nil)
	harness.terminalCh = intercept.NewChannel(intercept.Output, harness.terminal, nil)
	return harness
}

func (harness *chainHarness) run(t *testing.T, direction intercept.Direction, data string) (string, error) {
	t.Helper()
	result, err := harness.registry.RunChain(direction, []byte(data),
		harness.channel, harness.terminalCh, harness.contexts[direction])
	return string(result), err
}

func TestLoadRegistersInOrder(t *testing.T) {
	harness := loadHarness(t, `
PTY_OUTPUT_HOOKS = {
  function(data) return data .. "-1" end,
  function(data) return data .. "-2" end,
}
PTY_INPUT_HOOKS = {
  function(data) return string.upper(data) end,
}
`, Options{})

	got, err := harness.run(t, intercept.Output, "x")
	if err != nil {
		t.Fatalf("output chain: %v", err)
	}
	if got != "x-1-2" {
		t.Errorf("output chain = %q, want %q", got, "x-1-2")
	}
	got, err = harness.run(t, intercept.Input, "abc")
	if err != nil {
		t.Fatalf("input chain: %v", err)
	}
	if got != "ABC" {
		t.Errorf("input chain = %q, want %q", got, "ABC")
	}

	input, output := harness.script.HookCount()
	if input != 1 || output != 2 {
		t.Errorf("HookCount = (%d, %d), want (1, 2)", input, output)
	}
	names := harness.registry.Names(intercept.Output)
	if len(names) != 2 || names[0] != "lua:test.lua:3" || names[1] != "lua:test.lua:4" {
		t.Errorf("hook names = %v, want [lua:test.lua:3 lua:test.lua:4]", names)
	}
}

func TestLoadMissingGlobalsMeansNoHooks(t *testing.T) {
	harness := loadHarness(t, `local unused = 1`, Options{})
	if harness.registry.Len(intercept.Input) != 0 || harness.registry.Len(intercept.Output) != 0 {
		t.Errorf("registry has hooks for a script without hook tables")
	}
}

func TestLoadRejectsBadHookTables(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"not a table", `PTY_INPUT_HOOKS = "nope"`, "PTY_INPUT_HOOKS is a string"},
		{"not a function", `PTY_OUTPUT_HOOKS = { 42 }`, "PTY_OUTPUT_HOOKS[1] is a number"},
		{"syntax error", `PTY_INPUT_HOOKS = {`, "parsing hook script"},
		{"runtime error", `error("config broken")`, "config broken"},
		{"file loading removed", `dofile("/etc/passwd")`, "running hook script"},
		{"io unavailable", `require("io")`, "io"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			registry := intercept.NewRegistry(intercept.RegistryConfig{})
			_, err := LoadSource("bad.lua", []byte(test.source), registry, Options{})
			if err == nil {
				t.Fatal("LoadSource succeeded, want error")
			}
			if !strings.Contains(err.Error(), test.want) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), test.want)
			}
		})
	}
}

func TestModuleHookHelpers(t *testing.T) {
	harness := loadHarness(t, `
local ptyhooks = require("ptyhooks")

local seen = 0
ptyhooks.input_hook(function(data, channel, context)
  seen = seen + 1
  context.count = (context.count or 0) + 1
  return nil
end)

ptyhooks.output_hook(function(data, channel, context)
  if data:sub(-2) == ": " then
    ptyhooks.write(channel, "\r")
    context.terminal:write("\a")
  end
end)
`, Options{})

	for range 2 {
		got, err := harness.run(t, intercept.Input, "ls")
		if err != nil {
			t.Fatalf("input chain: %v", err)
		}
		if got != "ls" {
			t.Errorf("input chain = %q, want unchanged %q", got, "ls")
		}
	}

	got, err := harness.run(t, intercept.Output, "Password: ")
	if err != nil {
		t.Fatalf("output chain: %v", err)
	}
	if got != "Password: " {
		t.Errorf("output chain = %q, want unchanged", got)
	}
	if harness.childInput.String() != "\r" {
		t.Errorf("child received %q, want %q", harness.childInput.String(), "\r")
	}
	if harness.terminal.String() != "\a" {
		t.Errorf("terminal received %q, want %q", harness.terminal.String(), "\a")
	}
}

func TestHookContextPersistsPerDirection(t *testing.T) {
	harness := loadHarness(t, `
local function counter(data, channel, context)
  context.calls = (context.calls or 0) + 1
  return context.direction .. ":" .. context.calls
end
PTY_INPUT_HOOKS = { counter }
PTY_OUTPUT_HOOKS = { counter }
`, Options{})

	for _, want := range []string{"input:1", "input:2"} {
		got, err := harness.run(t, intercept.Input, "x")
		if err != nil {
			t.Fatalf("input chain: %v", err)
		}
		if got != want {
			t.Errorf("input chain = %q, want %q", got, want)
		}
	}
	got, err := harness.run(t, intercept.Output, "x")
	if err != nil {
		t.Fatalf("output chain: %v", err)
	}
	if got != "output:1" {
		t.Errorf("output chain = %q, want %q (contexts must not be shared)", got, "output:1")
	}
}

func TestHookResults(t *testing.T) {
	harness := loadHarness(t, `
PTY_OUTPUT_HOOKS = {
  function(data)
    if data == "drop" then return false end
    if data == "empty" then return "" end
    if data == "keep" then return true end
    if data == "number" then return 7 end
    return nil
  end,
}
`, Options{})

	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"drop", "", false},
		{"empty", "", false},
		{"keep", "keep", false},
		{"other", "other", false},
		{"number", "number", true},
	}
	for _, test := range tests {
		got, err := harness.run(t, intercept.Output, test.input)
		if (err != nil) != test.wantErr {
			t.Errorf("%q: error = %v, want error %v", test.input, err, test.wantErr)
		}
		if got != test.want {
			t.Errorf("%q: result = %q, want %q", test.input, got, test.want)
		}
	}
}

func TestHookErrorBecomesHookError(t *testing.T) {
	harness := loadHarness(t, `
PTY_OUTPUT_HOOKS = {
  function(data) error("bad chunk") end,
}
`, Options{})

	got, err := harness.run(t, intercept.Output, "payload")
	if got != "payload" {
		t.Errorf("result = %q, want pre-chain data", got)
	}
	var hookErr *intercept.HookError
	if !errors.As(err, &hookErr) {
		t.Fatalf("error = %v, want *intercept.HookError", err)
	}
	if !strings.Contains(hookErr.Error(), "bad chunk") {
		t.Errorf("HookError = %q, want it to carry the Lua message", hookErr.Error())
	}

	// The next chunk starts fresh.
	if _, err := harness.run(t, intercept.Output, "again"); err == nil {
		t.Error("second call succeeded, want the same failure")
	}
}

func TestHookTimeout(t *testing.T) {
	harness := loadHarness(t, `
PTY_INPUT_HOOKS = {
  function(data)
    while true do end
  end,
}
`, Options{Timeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := harness.run(t, intercept.Input, "x")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("hook ran for %v despite a 50ms timeout", elapsed)
	}
}

func TestGetenv(t *testing.T) {
	t.Setenv("PTYHOOKS_SCRIPT_TEST", "configured")
	harness := loadHarness(t, `
local ptyhooks = require("ptyhooks")
local value = ptyhooks.getenv("PTYHOOKS_SCRIPT_TEST")
local missing = ptyhooks.getenv("PTYHOOKS_SCRIPT_TEST_UNSET")
PTY_OUTPUT_HOOKS = {
  function(data)
    return value .. ":" .. tostring(missing)
  end,
}
`, Options{})

	got, err := harness.run(t, intercept.Output, "x")
	if err != nil {
		t.Fatalf("output chain: %v", err)
	}
	if got != "configured:nil" {
		t.Errorf("result = %q, want %q", got, "configured:nil")
	}
}

func TestLoadFileDigest(t *testing.T) {
	source := []byte(`PTY_INPUT_HOOKS = {}`)
	path := filepath.Join(t.TempDir(), "hooks.lua")
	if err := os.WriteFile(path, source, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	registry := intercept.NewRegistry(intercept.RegistryConfig{})
	script, err := Load(path, registry, Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer script.Close()

	if script.Digest() != digest.Bytes(source) {
		t.Errorf("Digest = %s, want %s", script.Digest(), digest.Bytes(source))
	}
	if script.Name() != path {
		t.Errorf("Name = %q, want %q", script.Name(), path)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.lua"), registry, Options{}); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load of missing file: error = %v, want os.ErrNotExist", err)
	}
}

func TestClosedScriptHooksFail(t *testing.T) {
	harness := loadHarness(t, `PTY_INPUT_HOOKS = { function(data) return data end }`, Options{})
	harness.script.Close()
	harness.script.Close()

	if _, err := harness.run(t, intercept.Input, "x"); err == nil {
		t.Error("hook of a closed script succeeded")
	}
}
