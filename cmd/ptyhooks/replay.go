// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/ptyhooks/cmd/ptyhooks/cli"
	"github.com/bureau-foundation/ptyhooks/hooks"
	"github.com/bureau-foundation/ptyhooks/lib/codec"
	"github.com/bureau-foundation/ptyhooks/lib/digest"
	"github.com/bureau-foundation/ptyhooks/recording"
)

func replayCommand() *cli.Command {
	var (
		speed   float64
		maxIdle time.Duration
		info    bool
		header  bool
		script  string
	)

	return &cli.Command{
		Name:    "replay",
		Summary: "Play back a recorded session",
		Description: `Play back a session recorded with --record. Output is written to stdout
with the recorded timing, including bytes that hooks injected into the
output. Keyboard input is not replayed.`,
		Usage: "ptyhooks replay [flags] <file>",
		Examples: []cli.Example{
			{
				Description: "Replay at double speed, skipping long pauses",
				Command:     "ptyhooks replay --speed 2 --max-idle 1s session.ptyrec",
			},
			{
				Description: "Check whether hooks.lua is the script the session ran with",
				Command:     "ptyhooks replay --check-script hooks.lua session.ptyrec",
			},
			{
				Description: "Show what a recording contains",
				Command:     "ptyhooks replay --info session.ptyrec",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("replay", pflag.ContinueOnError)
			flagSet.Float64Var(&speed, "speed", 1, "playback speed multiplier; 0 writes everything at once")
			flagSet.DurationVar(&maxIdle, "max-idle", 0, "cap every pause at this duration (0 = no cap)")
			flagSet.BoolVar(&info, "info", false, "print a summary instead of playing")
			flagSet.StringVar(&script, "check-script", "", "compare a hook script with the one the session was recorded with")
			flagSet.BoolVar(&header, "header", false, "print the stored header in CBOR diagnostic notation instead of playing")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return cli.Usage("replay takes exactly one recording file, got %d arguments", len(args))
			}
			player, err := recording.Open(args[0])
			if err != nil {
				return err
			}
			defer player.Close()

			if script != "" {
				return checkScript(os.Stdout, player.Header(), script)
			}

			if header {
				diagnostic, err := codec.Diagnose(player.RawHeader())
				if err != nil {
					return fmt.Errorf("decoding header: %w", err)
				}
				fmt.Println(diagnostic)
				return nil
			}

			if info {
				summary, err := player.Info()
				if err != nil {
					return err
				}
				printInfo(os.Stdout, summary)
				return nil
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			player.Speed = speed
			player.MaxIdle = maxIdle
			if err := player.Play(ctx, os.Stdout); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}

// printInfo writes a recording summary as aligned key/value lines.
func printInfo(w io.Writer, info recording.Info) {
	tw := tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)
	defer tw.Flush()

	header := info.Header
	fmt.Fprintf(tw, "command:\t%s\n", strings.Join(append([]string{header.Command}, header.Args...), " "))
	fmt.Fprintf(tw, "started:\t%s\n", header.StartedAt.Format(time.RFC3339))
	if header.Columns > 0 && header.Rows > 0 {
		fmt.Fprintf(tw, "size:\t%dx%d\n", header.Columns, header.Rows)
	}
	fmt.Fprintf(tw, "compression:\t%s\n", info.Compression)
	if header.Recorder != "" {
		fmt.Fprintf(tw, "recorded by:\t%s\n", header.Recorder)
	}
	if header.ScriptDigest != "" {
		fmt.Fprintf(tw, "script digest:\t%s\n", header.ScriptDigest)
	}
	if len(header.InputHooks) > 0 {
		fmt.Fprintf(tw, "input hooks:\t%s\n", strings.Join(header.InputHooks, ", "))
	}
	if len(header.OutputHooks) > 0 {
		fmt.Fprintf(tw, "output hooks:\t%s\n", strings.Join(header.OutputHooks, ", "))
	}
	fmt.Fprintf(tw, "duration:\t%s\n", info.Duration.Round(time.Millisecond))
	fmt.Fprintf(tw, "input:\t%d bytes\n", info.InputBytes)
	fmt.Fprintf(tw, "output:\t%d bytes\n", info.OutputBytes)
	fmt.Fprintf(tw, "injected:\t%d bytes\n", info.InjectedBytes)

	types := make([]recording.FrameType, 0, len(info.Frames))
	for frameType := range info.Frames {
		types = append(types, frameType)
	}
	slices.Sort(types)
	counts := make([]string, 0, len(types))
	for _, frameType := range types {
		counts = append(counts, fmt.Sprintf("%s=%d", frameType, info.Frames[frameType]))
	}
	fmt.Fprintf(tw, "frames:\t%s\n", strings.Join(counts, " "))

	switch {
	case info.Complete:
		fmt.Fprintf(tw, "exit code:\t%d\n", info.ExitCode)
	case info.Truncated:
		fmt.Fprintf(tw, "exit code:\tunknown (recording is truncated)\n")
	default:
		fmt.Fprintf(tw, "exit code:\tunknown (no exit frame)\n")
	}
}

// checkScript compares the digest of the script at path with the one
// stored in the header. A mismatch is reported and exits with 1.
func checkScript(w io.Writer, header recording.Header, path string) error {
	if header.ScriptDigest == "" {
		return cli.Usage("the recording was made without a hook script")
	}
	recorded, err := digest.Parse(header.ScriptDigest)
	if err != nil {
		return fmt.Errorf("recording header: %w", err)
	}
	current, err := digest.File(path)
	if err != nil {
		return err
	}
	if current != recorded {
		fmt.Fprintf(w, "%s differs: recorded %s, now %s\n", path, recorded.Short(), current.Short())
		return &cli.ExitError{Code: 1}
	}
	fmt.Fprintf(w, "%s matches the recorded script (%s)\n", path, recorded.Short())
	return nil
}

func builtinsCommand() *cli.Command {
	return &cli.Command{
		Name:    "builtins",
		Summary: "List the stock hooks",
		Usage:   "ptyhooks builtins",
		Run: func(args []string) error {
			if len(args) != 0 {
				return cli.Usage("builtins takes no arguments")
			}
			printBuiltins(os.Stdout)
			return nil
		},
	}
}

func printBuiltins(w io.Writer) {
	tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	defer tw.Flush()
	for _, name := range hooks.Names() {
		_, direction, err := hooks.Builtin(name)
		status := ""
		if err != nil {
			status = "unavailable: " + err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, direction, status)
	}
}
