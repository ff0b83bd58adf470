// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the variable [Load] reads the config path
// from.
const EnvironmentVariable = "PTYHOOKS_CONFIG"

// Config is the ptyhooks configuration.
type Config struct {
	// Command is the child command and its arguments. Empty means the
	// user's $SHELL, then /bin/sh.
	Command []string `yaml:"command"`

	// Environment is added to the inherited environment of the child.
	// Values here win over inherited ones.
	Environment map[string]string `yaml:"environment"`

	// Dir is the child's working directory. Empty means the current
	// directory.
	Dir string `yaml:"dir"`

	// Hooks configures which hooks run and how failures are handled.
	Hooks HooksConfig `yaml:"hooks"`

	// Relay configures the byte pumps.
	Relay RelayConfig `yaml:"relay"`

	// Terminal configures the controlling terminal.
	Terminal TerminalConfig `yaml:"terminal"`

	// Record configures session recording.
	Record RecordConfig `yaml:"record"`

	// Log configures diagnostic logging.
	Log LogConfig `yaml:"log"`
}

// HooksConfig configures the hook chains.
type HooksConfig struct {
	// Script is a Lua hook script. Empty means no script.
	Script string `yaml:"script"`

	// Builtin lists stock hooks by name, appended after the script's
	// hooks in each direction.
	Builtin []string `yaml:"builtin"`

	// FailurePolicy is "open" (log hook failures and forward the
	// original data) or "closed" (end the session).
	// Default: open
	FailurePolicy string `yaml:"failure_policy"`

	// SlowThreshold logs a warning for any hook call that takes
	// longer. Zero disables the check.
	// Default: 50ms
	SlowThreshold time.Duration `yaml:"slow_threshold"`

	// ScriptTimeout bounds every Lua call.
	// Default: 1s
	ScriptTimeout time.Duration `yaml:"script_timeout"`
}

// RelayConfig configures the byte pumps.
type RelayConfig struct {
	// BufferSize is the read size per chunk.
	// Default: 4096
	BufferSize int `yaml:"buffer_size"`

	// DrainTimeout is how long output keeps flowing after the child
	// exits.
	// Default: 500ms
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

// TerminalConfig configures the controlling terminal.
type TerminalConfig struct {
	// Raw puts the terminal in raw mode for the session.
	// Default: true
	Raw bool `yaml:"raw"`

	// KeepSignals leaves ISIG enabled in raw mode so Ctrl-C signals
	// ptyhooks itself rather than reaching the child as a byte.
	// Default: false
	KeepSignals bool `yaml:"keep_signals"`
}

// RecordConfig configures session recording.
type RecordConfig struct {
	// Path is the recording file. Empty disables recording.
	Path string `yaml:"path"`

	// Compression is "none", "lz4" or "zstd".
	// Default: zstd
	Compression string `yaml:"compression"`
}

// LogConfig configures diagnostic logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	// Default: info
	Level string `yaml:"level"`

	// Format is "text" or "json".
	// Default: text
	Format string `yaml:"format"`

	// File receives log output. Empty means stderr.
	File string `yaml:"file"`
}

// Default returns the default configuration. A loaded file is merged
// over these values.
func Default() *Config {
	return &Config{
		Hooks: HooksConfig{
			FailurePolicy: "open",
			SlowThreshold: 50 * time.Millisecond,
			ScriptTimeout: time.Second,
		},
		Relay: RelayConfig{
			BufferSize:   4096,
			DrainTimeout: 500 * time.Millisecond,
		},
		Terminal: TerminalConfig{
			Raw: true,
		},
		Record: RecordConfig{
			Compression: "zstd",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads the file named by PTYHOOKS_CONFIG, or returns the defaults
// when the variable is not set.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return Default(), nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. Files ending
// in .json or .jsonc may contain comments and trailing commas; all
// other files are YAML. Unknown keys are an error.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// loadFile decodes a single configuration file over the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is a subset of YAML, so the stripped document goes
		// through the same decoder.
		data = jsonc.ToJSON(data)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths
// and environment values.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Dir = expandVars(c.Dir, vars)
	c.Hooks.Script = expandVars(c.Hooks.Script, vars)
	c.Record.Path = expandVars(c.Record.Path, vars)
	c.Log.File = expandVars(c.Log.File, vars)
	for key, value := range c.Environment {
		c.Environment[key] = expandVars(value, vars)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the values this package owns. Hook names, the
// failure policy and the compression are parsed again by the packages
// that use them; the checks here only catch typos early.
func (c *Config) Validate() error {
	var errs []error

	policies := []string{"open", "fail-open", "closed", "fail-closed"}
	if !contains(policies, c.Hooks.FailurePolicy) {
		errs = append(errs, fmt.Errorf("hooks.failure_policy must be one of: %v", policies))
	}
	if c.Hooks.SlowThreshold < 0 {
		errs = append(errs, errors.New("hooks.slow_threshold must not be negative"))
	}
	if c.Hooks.ScriptTimeout <= 0 {
		errs = append(errs, errors.New("hooks.script_timeout must be positive"))
	}

	if c.Relay.BufferSize <= 0 {
		errs = append(errs, errors.New("relay.buffer_size must be positive"))
	}
	if c.Relay.DrainTimeout < 0 {
		errs = append(errs, errors.New("relay.drain_timeout must not be negative"))
	}

	compressions := []string{"none", "lz4", "zstd"}
	if !contains(compressions, c.Record.Compression) {
		errs = append(errs, fmt.Errorf("record.compression must be one of: %v", compressions))
	}

	levels := []string{"debug", "info", "warn", "error"}
	if !contains(levels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", levels))
	}
	formats := []string{"text", "json"}
	if !contains(formats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", formats))
	}

	for index, name := range c.Hooks.Builtin {
		if name == "" {
			errs = append(errs, fmt.Errorf("hooks.builtin[%d] is empty", index))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
