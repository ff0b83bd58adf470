// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hooks

import (
	"fmt"
	"slices"
	"strings"

	"github.com/bureau-foundation/ptyhooks/intercept"
)

// Builtin hook names accepted in configuration.
const (
	NameBellOnPrompt   = "bell_on_prompt"
	NameStripAltScreen = "strip_altscreen"
	NameRot13          = "rot13"
	NameCancelSudo     = "cancel_sudo"
)

// Names returns every builtin hook name, sorted.
func Names() []string {
	names := []string{NameBellOnPrompt, NameStripAltScreen, NameRot13, NameCancelSudo}
	slices.Sort(names)
	return names
}

// Builtin resolves a configuration name to a hook and the direction it
// belongs to. strip_altscreen needs terminfo and fails with an error
// wrapping ErrNoAltScreen when the terminal has no alternate screen.
func Builtin(name string) (intercept.Hook, intercept.Direction, error) {
	switch name {
	case NameBellOnPrompt:
		return BellOnPrompt(), intercept.Output, nil
	case NameStripAltScreen:
		enter, exit, err := AltScreenSequences()
		if err != nil {
			return nil, intercept.Output, fmt.Errorf("builtin hook %s: %w", name, err)
		}
		return StripAltScreen(enter, exit), intercept.Output, nil
	case NameRot13:
		return Rot13(), intercept.Input, nil
	case NameCancelSudo:
		return CancelSudo(), intercept.Output, nil
	default:
		return nil, intercept.Input, fmt.Errorf("unknown builtin hook %q (available: %s)", name, strings.Join(Names(), ", "))
	}
}

// Register adds the named builtin hooks to registry in order, each
// under the name "builtin:<name>".
func Register(registry *intercept.Registry, names []string) error {
	for _, name := range names {
		hook, direction, err := Builtin(name)
		if err != nil {
			return err
		}
		registry.Add(direction, "builtin:"+name, hook)
	}
	return nil
}
