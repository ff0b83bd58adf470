// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hooks

import (
	"bytes"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/ptyhooks/intercept"
)

// DefaultPromptSuffixes are the endings BellOnPrompt treats as a prompt.
var DefaultPromptSuffixes = []string{": ", "$ ", "# ", "> ", "? "}

// BellOnPrompt returns an output hook that rings the terminal bell
// whenever a chunk ends with one of the given prompt suffixes, so a
// user in another window notices that a command finished or wants
// input. Escape sequences are stripped before matching, which keeps
// colored prompts working. With no suffixes, DefaultPromptSuffixes is
// used. The chunk itself is never modified.
func BellOnPrompt(suffixes ...string) intercept.Hook {
	if len(suffixes) == 0 {
		suffixes = DefaultPromptSuffixes
	}
	return func(call *intercept.Call) (intercept.Result, error) {
		visible := ansi.Strip(string(call.Data))
		for _, suffix := range suffixes {
			if strings.HasSuffix(visible, suffix) {
				_, err := call.Terminal.Write([]byte{'\a'})
				return intercept.Unchanged(), err
			}
		}
		return intercept.Unchanged(), nil
	}
}

// Rot13 returns an input hook that shifts ASCII letters by 13
// positions. Every other byte passes through untouched, so invalid
// UTF-8 is harmless; escape sequences containing letters are broken,
// which is the joke.
func Rot13() intercept.Hook {
	return func(call *intercept.Call) (intercept.Result, error) {
		return intercept.Replace(Rot13Bytes(call.Data)), nil
	}
}

// Rot13Bytes returns a rot13-shifted copy of data.
func Rot13Bytes(data []byte) []byte {
	shifted := make([]byte, len(data))
	for index, b := range data {
		switch {
		case b >= 'a' && b <= 'z':
			shifted[index] = 'a' + (b-'a'+13)%26
		case b >= 'A' && b <= 'Z':
			shifted[index] = 'A' + (b-'A'+13)%26
		default:
			shifted[index] = b
		}
	}
	return shifted
}

var (
	sudoPrompt  = []byte("[sudo] password for")
	sudoRefusal = []byte("No sudo for you!")
)

// CancelSudo returns an output hook that answers every sudo password
// prompt with an empty line and appends a refusal to the prompt.
func CancelSudo() intercept.Hook {
	return func(call *intercept.Call) (intercept.Result, error) {
		if !bytes.HasPrefix(call.Data, sudoPrompt) {
			return intercept.Unchanged(), nil
		}
		if _, err := call.Channel.Write([]byte{'\r'}); err != nil {
			return intercept.Unchanged(), err
		}
		refused := make([]byte, 0, len(call.Data)+len(sudoRefusal))
		refused = append(refused, call.Data...)
		refused = append(refused, sudoRefusal...)
		return intercept.Replace(refused), nil
	}
}
