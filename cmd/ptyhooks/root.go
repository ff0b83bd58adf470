// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/ptyhooks/cmd/ptyhooks/cli"
	"github.com/bureau-foundation/ptyhooks/hooks"
	"github.com/bureau-foundation/ptyhooks/hookscript"
	"github.com/bureau-foundation/ptyhooks/intercept"
	"github.com/bureau-foundation/ptyhooks/lib/config"
	"github.com/bureau-foundation/ptyhooks/lib/version"
	"github.com/bureau-foundation/ptyhooks/recording"
)

// runFlags holds the root command's flags. Every flag overrides the
// configuration value of the same meaning, and only when given.
type runFlags struct {
	config        string
	script        string
	builtin       []string
	failurePolicy string
	record        string
	compression   string
	noRaw         bool
	keepSignals   bool
	bufferSize    int
	drainTimeout  time.Duration
	slowThreshold time.Duration
	scriptTimeout time.Duration
	dir           string
	env           []string
	logLevel      string
	logFormat     string
	logFile       string
}

func (flags *runFlags) flagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("ptyhooks", pflag.ContinueOnError)
	// Everything after the command name belongs to the child.
	flagSet.SetInterspersed(false)

	flagSet.StringVarP(&flags.config, "config", "c", "", "configuration file (default $"+config.EnvironmentVariable+")")
	flagSet.StringVarP(&flags.script, "script", "s", "", "Lua hook script")
	flagSet.StringSliceVarP(&flags.builtin, "builtin", "b", nil, "stock hooks to add: "+strings.Join(hooks.Names(), ", "))
	flagSet.StringVar(&flags.failurePolicy, "failure-policy", "", "hook failure handling: open or closed (default open)")
	flagSet.StringVarP(&flags.record, "record", "r", "", "record the session to this file")
	flagSet.StringVar(&flags.compression, "compression", "", "recording compression: none, lz4 or zstd (default zstd)")
	flagSet.BoolVar(&flags.noRaw, "no-raw", false, "leave the terminal in cooked mode")
	flagSet.BoolVar(&flags.keepSignals, "keep-signals", false, "let Ctrl-C and Ctrl-\\ signal ptyhooks instead of the child")
	flagSet.IntVar(&flags.bufferSize, "buffer-size", 0, "read size per chunk (default 4096)")
	flagSet.DurationVar(&flags.drainTimeout, "drain-timeout", 0, "how long output keeps flowing after the child exits (default 500ms)")
	flagSet.DurationVar(&flags.slowThreshold, "slow-threshold", 0, "warn about hook calls slower than this (default 50ms)")
	flagSet.DurationVar(&flags.scriptTimeout, "script-timeout", 0, "time limit for each Lua hook call (default 1s)")
	flagSet.StringVarP(&flags.dir, "dir", "C", "", "working directory of the child")
	flagSet.StringArrayVarP(&flags.env, "env", "e", nil, "KEY=VALUE added to the child's environment (repeatable)")
	flagSet.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error (default info)")
	flagSet.StringVar(&flags.logFormat, "log-format", "", "text or json (default text)")
	flagSet.StringVar(&flags.logFile, "log-file", "", "append logs to this file instead of stderr")
	return flagSet
}

// apply overlays the flags that were given on cfg and validates the
// result.
func (flags *runFlags) apply(flagSet *pflag.FlagSet, cfg *config.Config) error {
	if flagSet.Changed("script") {
		cfg.Hooks.Script = flags.script
	}
	if flagSet.Changed("builtin") {
		cfg.Hooks.Builtin = append(cfg.Hooks.Builtin, flags.builtin...)
	}
	if flagSet.Changed("failure-policy") {
		cfg.Hooks.FailurePolicy = flags.failurePolicy
	}
	if flagSet.Changed("record") {
		cfg.Record.Path = flags.record
	}
	if flagSet.Changed("compression") {
		cfg.Record.Compression = flags.compression
	}
	if flagSet.Changed("no-raw") {
		cfg.Terminal.Raw = !flags.noRaw
	}
	if flagSet.Changed("keep-signals") {
		cfg.Terminal.KeepSignals = flags.keepSignals
	}
	if flagSet.Changed("buffer-size") {
		cfg.Relay.BufferSize = flags.bufferSize
	}
	if flagSet.Changed("drain-timeout") {
		cfg.Relay.DrainTimeout = flags.drainTimeout
	}
	if flagSet.Changed("slow-threshold") {
		cfg.Hooks.SlowThreshold = flags.slowThreshold
	}
	if flagSet.Changed("script-timeout") {
		cfg.Hooks.ScriptTimeout = flags.scriptTimeout
	}
	if flagSet.Changed("dir") {
		cfg.Dir = flags.dir
	}
	for _, assignment := range flags.env {
		key, value, ok := strings.Cut(assignment, "=")
		if !ok || key == "" {
			return cli.Usage("--env %q: want KEY=VALUE", assignment)
		}
		if cfg.Environment == nil {
			cfg.Environment = make(map[string]string)
		}
		cfg.Environment[key] = value
	}
	if flagSet.Changed("log-level") {
		cfg.Log.Level = flags.logLevel
	}
	if flagSet.Changed("log-format") {
		cfg.Log.Format = flags.logFormat
	}
	if flagSet.Changed("log-file") {
		cfg.Log.File = flags.logFile
	}

	if err := cfg.Validate(); err != nil {
		return &cli.UsageError{Err: err}
	}
	return nil
}

// loadConfig loads the --config file, or the PTYHOOKS_CONFIG file, or
// the defaults.
func (flags *runFlags) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if flags.config != "" {
		cfg, err = config.LoadFile(flags.config)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, &cli.UsageError{Err: err}
	}
	return cfg, nil
}

func rootCommand() *cli.Command {
	var flags runFlags
	var parsed *pflag.FlagSet

	return &cli.Command{
		Name:    "ptyhooks",
		Summary: "Run a command with hooks on its terminal input and output",
		Description: `Run a command on a pseudo-terminal and pass every chunk of keyboard
input and program output through a chain of hooks.

Hooks come from a Lua script and from the stock hook library. A hook
can pass a chunk through, replace it, swallow it, or write directly to
either side. The command defaults to the configured command, then
$SHELL, then /bin/sh.`,
		Usage: "ptyhooks [flags] [--] [command [args...]]",
		Examples: []cli.Example{
			{
				Description: "Ring the bell whenever a shell prompt appears",
				Command:     "ptyhooks --builtin bell_on_prompt bash",
			},
			{
				Description: "Run hooks from a script and record the session",
				Command:     "ptyhooks --script hooks.lua --record session.ptyrec -- python3 -i",
			},
		},
		Flags: func() *pflag.FlagSet {
			parsed = flags.flagSet()
			return parsed
		},
		Subcommands: []*cli.Command{
			replayCommand(),
			builtinsCommand(),
			versionCommand(),
		},
		Run: func(args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			if err := flags.apply(parsed, cfg); err != nil {
				return err
			}
			return runSession(cfg, args)
		},
	}
}

// resolveCommand picks the child command: the arguments, then the
// configured command, then $SHELL, then /bin/sh.
func resolveCommand(args, configured []string, getenv func(string) string) (string, []string) {
	switch {
	case len(args) > 0:
		return args[0], args[1:]
	case len(configured) > 0:
		return configured[0], configured[1:]
	case getenv("SHELL") != "":
		return getenv("SHELL"), nil
	default:
		return "/bin/sh", nil
	}
}

// environment converts the configured overrides to KEY=VALUE form in a
// stable order.
func environment(overrides map[string]string) []string {
	env := make([]string, 0, len(overrides))
	for key, value := range overrides {
		env = append(env, key+"="+value)
	}
	slices.Sort(env)
	return env
}

// buildRegistry registers the script's hooks, then the builtins. The
// returned script is nil when none is configured; the caller closes it
// after the session.
func buildRegistry(cfg *config.Config, logger *slog.Logger) (*intercept.Registry, *hookscript.Script, error) {
	registry := intercept.NewRegistry(intercept.RegistryConfig{
		Logger:            logger,
		SlowHookThreshold: cfg.Hooks.SlowThreshold,
	})

	var script *hookscript.Script
	if cfg.Hooks.Script != "" {
		var err error
		script, err = hookscript.Load(cfg.Hooks.Script, registry, hookscript.Options{
			Logger:  logger.With("script", cfg.Hooks.Script),
			Timeout: cfg.Hooks.ScriptTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
	}

	if err := hooks.Register(registry, cfg.Hooks.Builtin); err != nil {
		if script != nil {
			script.Close()
		}
		return nil, nil, &cli.UsageError{Err: err}
	}
	return registry, script, nil
}

func runSession(cfg *config.Config, args []string) error {
	policy, err := intercept.ParseFailurePolicy(cfg.Hooks.FailurePolicy)
	if err != nil {
		return &cli.UsageError{Err: err}
	}

	logger, terminal, closeLog, err := cli.NewLogger(cfg.Log)
	if err != nil {
		return &cli.UsageError{Err: err}
	}
	defer closeLog()

	registry, script, err := buildRegistry(cfg, logger)
	if err != nil {
		return err
	}
	if script != nil {
		defer script.Close()
		input, output := script.HookCount()
		logger.Info("hook script loaded",
			"script", script.Name(),
			"digest", script.Digest().Short(),
			"input_hooks", input,
			"output_hooks", output,
		)
	}

	command, commandArgs := resolveCommand(args, cfg.Command, os.Getenv)
	sessionConfig := intercept.SessionConfig{
		Command: command,
		Args:    commandArgs,
		Env:     environment(cfg.Environment),
		Dir:     cfg.Dir,
	}
	if columns, rows, err := term.GetSize(int(os.Stdin.Fd())); err == nil {
		sessionConfig.Columns = uint16(columns)
		sessionConfig.Rows = uint16(rows)
	}

	var recorder *recording.Recorder
	var tap intercept.Tap
	if cfg.Record.Path != "" {
		recorder, err = startRecording(cfg, sessionConfig, registry, script, logger)
		if err != nil {
			return err
		}
		tap = recorder
	}

	exitCode, runErr := intercept.Run(context.Background(), intercept.EngineConfig{
		Session:      sessionConfig,
		Registry:     registry,
		Policy:       policy,
		BufferSize:   cfg.Relay.BufferSize,
		DrainTimeout: cfg.Relay.DrainTimeout,
		Input:        os.Stdin,
		Output:       os.Stdout,
		Raw:          cfg.Terminal.Raw,
		RawOptions:   intercept.RawOptions{KeepSignals: cfg.Terminal.KeepSignals},
		OnRawMode: func(mode *intercept.RawMode) {
			if terminal != nil && mode.Active() {
				terminal.SetRaw(true)
			}
		},
		Tap:    tap,
		Logger: logger,
	})
	if terminal != nil {
		terminal.SetRaw(false)
	}

	if recorder != nil {
		if err := recorder.Close(exitCode); err != nil {
			logger.Error("recording incomplete", "path", cfg.Record.Path, "error", err)
		}
	}

	var spawnErr *intercept.SpawnError
	if errors.As(runErr, &spawnErr) {
		return &cli.ExitError{Code: exitCode, Err: runErr}
	}
	if runErr != nil {
		logger.Error("session ended with an error", "error", runErr)
		if exitCode == 0 {
			exitCode = 1
		}
	}
	if exitCode != 0 {
		return &cli.ExitError{Code: exitCode}
	}
	return nil
}

func startRecording(cfg *config.Config, session intercept.SessionConfig, registry *intercept.Registry, script *hookscript.Script, logger *slog.Logger) (*recording.Recorder, error) {
	compression, err := recording.ParseCompressionTag(cfg.Record.Compression)
	if err != nil {
		return nil, &cli.UsageError{Err: err}
	}
	header := recording.Header{
		Command:     session.Command,
		Args:        session.Args,
		Columns:     session.Columns,
		Rows:        session.Rows,
		InputHooks:  registry.Names(intercept.Input),
		OutputHooks: registry.Names(intercept.Output),
		Recorder:    version.Info(),
	}
	if script != nil {
		header.ScriptDigest = script.Digest().String()
	}
	recorder, err := recording.Create(cfg.Record.Path, header, recording.RecorderOptions{
		Compression: compression,
		Logger:      logger.With("recording", cfg.Record.Path),
	})
	if err != nil {
		return nil, fmt.Errorf("starting recording: %w", err)
	}
	logger.Info("recording session", "path", cfg.Record.Path, "compression", compression.String())
	return recorder, nil
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Usage:   "ptyhooks version",
		Run: func(args []string) error {
			fmt.Println("ptyhooks " + version.Full())
			return nil
		},
	}
}
