// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/ptyhooks/cmd/ptyhooks/cli"
	"github.com/bureau-foundation/ptyhooks/intercept"
	"github.com/bureau-foundation/ptyhooks/lib/config"
	"github.com/bureau-foundation/ptyhooks/lib/digest"
	"github.com/bureau-foundation/ptyhooks/recording"
)

func TestResolveCommand(t *testing.T) {
	withShell := func(string) string { return "/bin/zsh" }
	noShell := func(string) string { return "" }

	tests := []struct {
		name       string
		args       []string
		configured []string
		getenv     func(string) string
		wantName   string
		wantArgs   []string
	}{
		{"arguments win", []string{"vim", "x"}, []string{"bash"}, withShell, "vim", []string{"x"}},
		{"configured command", nil, []string{"python3", "-i"}, withShell, "python3", []string{"-i"}},
		{"shell", nil, nil, withShell, "/bin/zsh", nil},
		{"fallback", nil, nil, noShell, "/bin/sh", nil},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			name, args := resolveCommand(test.args, test.configured, test.getenv)
			if name != test.wantName {
				t.Errorf("command = %q, want %q", name, test.wantName)
			}
			if strings.Join(args, " ") != strings.Join(test.wantArgs, " ") {
				t.Errorf("args = %v, want %v", args, test.wantArgs)
			}
		})
	}
}

func TestEnvironmentIsSorted(t *testing.T) {
	env := environment(map[string]string{"TERM": "xterm", "LANG": "C.UTF-8", "A": ""})
	want := "A=,LANG=C.UTF-8,TERM=xterm"
	if got := strings.Join(env, ","); got != want {
		t.Errorf("environment = %s, want %s", got, want)
	}
}

func parseRunFlags(t *testing.T, args ...string) (*runFlags, *config.Config, error) {
	t.Helper()
	var flags runFlags
	flagSet := flags.flagSet()
	if err := flagSet.Parse(args); err != nil {
		t.Fatalf("parsing %v: %v", args, err)
	}
	cfg := config.Default()
	return &flags, cfg, flags.apply(flagSet, cfg)
}

func TestFlagsOverrideConfig(t *testing.T) {
	_, cfg, err := parseRunFlags(t,
		"--script", "hooks.lua",
		"--builtin", "rot13,bell_on_prompt",
		"--failure-policy", "closed",
		"--record", "out.ptyrec",
		"--compression", "lz4",
		"--no-raw",
		"--drain-timeout", "2s",
		"--env", "TERM=dumb",
		"-e", "EMPTY=",
		"--log-level", "debug",
		"--", "cat",
	)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if cfg.Hooks.Script != "hooks.lua" {
		t.Errorf("script = %q", cfg.Hooks.Script)
	}
	if strings.Join(cfg.Hooks.Builtin, ",") != "rot13,bell_on_prompt" {
		t.Errorf("builtin = %v", cfg.Hooks.Builtin)
	}
	if cfg.Hooks.FailurePolicy != "closed" {
		t.Errorf("failure policy = %q", cfg.Hooks.FailurePolicy)
	}
	if cfg.Record.Path != "out.ptyrec" || cfg.Record.Compression != "lz4" {
		t.Errorf("record = %+v", cfg.Record)
	}
	if cfg.Terminal.Raw {
		t.Error("--no-raw left raw mode on")
	}
	if cfg.Relay.DrainTimeout != 2*time.Second {
		t.Errorf("drain timeout = %v", cfg.Relay.DrainTimeout)
	}
	if value, ok := cfg.Environment["EMPTY"]; !ok || value != "" || cfg.Environment["TERM"] != "dumb" {
		t.Errorf("environment = %v", cfg.Environment)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestUnsetFlagsKeepConfig(t *testing.T) {
	_, cfg, err := parseRunFlags(t, "bash")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	defaults := config.Default()
	if cfg.Relay.BufferSize != defaults.Relay.BufferSize || !cfg.Terminal.Raw || cfg.Hooks.ScriptTimeout != defaults.Hooks.ScriptTimeout {
		t.Errorf("unset flags changed the config: %+v", cfg)
	}
}

func TestInvalidFlagValuesAreUsageErrors(t *testing.T) {
	for _, args := range [][]string{
		{"--failure-policy", "sometimes"},
		{"--compression", "gzip"},
		{"--buffer-size", "0"},
		{"--env", "NOEQUALS"},
	} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			_, _, err := parseRunFlags(t, args...)
			var usage *cli.UsageError
			if !errors.As(err, &usage) {
				t.Errorf("apply = %v, want a UsageError", err)
			}
		})
	}
}

func TestLoadConfigFromFlag(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "ptyhooks.yaml")
	if err := os.WriteFile(configPath, []byte("command: [top]\n"), 0644); err != nil {
		t.Fatal(err)
	}

	flags := &runFlags{config: configPath}
	cfg, err := flags.loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if len(cfg.Command) != 1 || cfg.Command[0] != "top" {
		t.Errorf("command = %v, want [top]", cfg.Command)
	}

	flags.config = filepath.Join(t.TempDir(), "missing.yaml")
	var usage *cli.UsageError
	if _, err := flags.loadConfig(); !errors.As(err, &usage) {
		t.Errorf("loadConfig of a missing file = %v, want a UsageError", err)
	}
}

func TestBuildRegistry(t *testing.T) {
	scriptPath := filepath.Join(t.TempDir(), "hooks.lua")
	script := `
PTY_INPUT_HOOKS = { function(data) return data:upper() end }
PTY_OUTPUT_HOOKS = {}
`
	if err := os.WriteFile(scriptPath, []byte(script), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Hooks.Script = scriptPath
	cfg.Hooks.Builtin = []string{"rot13", "bell_on_prompt"}

	registry, loaded, err := buildRegistry(cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("buildRegistry: %v", err)
	}
	defer loaded.Close()

	input := registry.Names(intercept.Input)
	if len(input) != 2 || !strings.HasPrefix(input[0], "lua:") || input[1] != "builtin:rot13" {
		t.Errorf("input hooks = %v, want the script hook then builtin:rot13", input)
	}
	output := registry.Names(intercept.Output)
	if len(output) != 1 || output[0] != "builtin:bell_on_prompt" {
		t.Errorf("output hooks = %v, want [builtin:bell_on_prompt]", output)
	}
}

func TestBuildRegistryUnknownBuiltin(t *testing.T) {
	cfg := config.Default()
	cfg.Hooks.Builtin = []string{"rot14"}

	_, _, err := buildRegistry(cfg, slog.New(slog.DiscardHandler))
	var usage *cli.UsageError
	if !errors.As(err, &usage) {
		t.Fatalf("buildRegistry = %v, want a UsageError", err)
	}
	if !strings.Contains(err.Error(), "rot13") {
		t.Errorf("error %q should list the available hooks", err)
	}
}

func TestPrintInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.ptyrec")
	recorder, err := recording.Create(path, recording.Header{
		Command:     "bash",
		Args:        []string{"--norc"},
		Columns:     80,
		Rows:        24,
		OutputHooks: []string{"builtin:bell_on_prompt"},
	}, recording.RecorderOptions{Compression: recording.CompressionLZ4})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	recorder.Forwarded(intercept.Output, []byte("$ "))
	recorder.Forwarded(intercept.Input, []byte("exit\r"))
	if err := recorder.Close(0); err != nil {
		t.Fatalf("Close: %v", err)
	}

	player, err := recording.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer player.Close()
	info, err := player.Info()
	if err != nil {
		t.Fatalf("Info: %v", err)
	}

	var buffer bytes.Buffer
	printInfo(&buffer, info)
	output := buffer.String()
	for _, want := range []string{
		"bash --norc",
		"80x24",
		"lz4",
		"builtin:bell_on_prompt",
		"input=1",
		"output=1",
		"exit=1",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("info output missing %q\n\nFull output:\n%s", want, output)
		}
	}

	fields := make(map[string]string)
	for _, line := range strings.Split(output, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if ok {
			fields[key] = strings.Join(strings.Fields(value), " ")
		}
	}
	if fields["input"] != "5 bytes" || fields["output"] != "2 bytes" {
		t.Errorf("byte counts: input %q, output %q", fields["input"], fields["output"])
	}
	if fields["exit code"] != "0" {
		t.Errorf("exit code = %q, want 0", fields["exit code"])
	}
}

func TestPrintBuiltins(t *testing.T) {
	var buffer bytes.Buffer
	printBuiltins(&buffer)
	output := buffer.String()
	for _, want := range []string{"bell_on_prompt", "cancel_sudo", "rot13", "strip_altscreen"} {
		if !strings.Contains(output, want) {
			t.Errorf("builtins output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestReplayRequiresOneFile(t *testing.T) {
	err := rootCommand().Execute([]string{"replay"})
	var usage *cli.UsageError
	if !errors.As(err, &usage) {
		t.Errorf("replay without a file = %v, want a UsageError", err)
	}
}

func TestCheckScript(t *testing.T) {
	scriptPath := filepath.Join(t.TempDir(), "hooks.lua")
	source := []byte("PTY_OUTPUT_HOOKS = {}\n")
	if err := os.WriteFile(scriptPath, source, 0644); err != nil {
		t.Fatal(err)
	}
	header := recording.Header{ScriptDigest: digest.Bytes(source).String()}

	var buffer bytes.Buffer
	if err := checkScript(&buffer, header, scriptPath); err != nil {
		t.Fatalf("checkScript on the recorded script: %v", err)
	}
	if !strings.Contains(buffer.String(), "matches") {
		t.Errorf("output = %q, want a match", buffer.String())
	}

	if err := os.WriteFile(scriptPath, []byte("PTY_INPUT_HOOKS = {}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	buffer.Reset()
	err := checkScript(&buffer, header, scriptPath)
	var exit *cli.ExitError
	if !errors.As(err, &exit) || exit.Code != 1 {
		t.Errorf("checkScript on an edited script = %v, want exit code 1", err)
	}
	if !strings.Contains(buffer.String(), "differs") {
		t.Errorf("output = %q, want a mismatch", buffer.String())
	}

	var usage *cli.UsageError
	if err := checkScript(&buffer, recording.Header{}, scriptPath); !errors.As(err, &usage) {
		t.Errorf("checkScript without a recorded digest = %v, want a UsageError", err)
	}
}
