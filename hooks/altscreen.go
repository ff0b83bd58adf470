// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hooks

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/xo/terminfo"

	"github.com/bureau-foundation/ptyhooks/intercept"
)

// ErrNoAltScreen is returned by AltScreenSequences when the terminal
// description has no alternate-screen capabilities.
var ErrNoAltScreen = errors.New("terminal has no alternate screen capabilities")

// AltScreenSequences looks up the smcup and rmcup sequences (enter and
// exit the alternate screen) for $TERM.
func AltScreenSequences() (enter, exit []byte, err error) {
	info, err := terminfo.LoadFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("loading terminfo: %w", err)
	}
	enter = info.Strings[terminfo.EnterCaMode]
	exit = info.Strings[terminfo.ExitCaMode]
	if len(enter) == 0 || len(exit) == 0 {
		name := "terminal"
		if len(info.Names) > 0 {
			name = info.Names[0]
		}
		return nil, nil, fmt.Errorf("%s: %w", name, ErrNoAltScreen)
	}
	return enter, exit, nil
}

const altScreenPendingKey = "hooks.altscreen.pending"

// StripAltScreen returns an output hook that removes the enter and
// exit sequences from the stream, so full-screen programs draw into
// the normal scrollback instead of the alternate screen.
//
// A sequence may be split across two chunks. When a chunk ends with a
// proper prefix of either sequence, those bytes are held back in the
// direction's Context and prepended to the next chunk.
func StripAltScreen(enter, exit []byte) intercept.Hook {
	sequences := make([][]byte, 0, 2)
	for _, sequence := range [][]byte{enter, exit} {
		if len(sequence) > 0 {
			sequences = append(sequences, bytes.Clone(sequence))
		}
	}
	return func(call *intercept.Call) (intercept.Result, error) {
		if len(sequences) == 0 {
			return intercept.Unchanged(), nil
		}
		pending, _ := call.Context[altScreenPendingKey].([]byte)

		data := call.Data
		if len(pending) > 0 {
			data = append(pending, call.Data...)
		}
		changed := len(pending) > 0
		for _, sequence := range sequences {
			if bytes.Contains(data, sequence) {
				data = bytes.ReplaceAll(data, sequence, nil)
				changed = true
			}
		}

		held := partialSuffix(data, sequences)
		if held > 0 {
			call.Context[altScreenPendingKey] = bytes.Clone(data[len(data)-held:])
			data = data[:len(data)-held]
			changed = true
		} else {
			delete(call.Context, altScreenPendingKey)
		}

		if !changed {
			return intercept.Unchanged(), nil
		}
		// An empty result swallows the chunk; the held bytes come out
		// with the next one.
		return intercept.Replace(bytes.Clone(data)), nil
	}
}

// partialSuffix returns the length of the longest suffix of data that
// is a proper prefix of one of the sequences.
func partialSuffix(data []byte, sequences [][]byte) int {
	longest := 0
	for _, sequence := range sequences {
		limit := min(len(sequence)-1, len(data))
		for length := limit; length > longest; length-- {
			if bytes.HasSuffix(data, sequence[:length]) {
				longest = length
				break
			}
		}
	}
	return longest
}
