// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// These variables are set via -ldflags at build time. When they are
// left at their defaults, the VCS stamp the go command embeds is used
// instead.
var (
	// GitCommit is the short git SHA of the build.
	GitCommit = ""

	// GitDirty is "true" when the tree had uncommitted changes.
	GitDirty = ""

	// Version is the semantic version. This is set manually for releases.
	Version = "0.1.0-dev"
)

// commit returns the build's commit and dirty flag, preferring the
// ldflags values over the embedded VCS settings.
func commit() (revision string, dirty bool) {
	if GitCommit != "" {
		return GitCommit, GitDirty == "true"
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown", false
	}
	revision = "unknown"
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
			if len(revision) > 12 {
				revision = revision[:12]
			}
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return revision, dirty
}

// Info returns a one-line version string, e.g. "0.1.0-dev (3f2a9c1e08b4)".
// Recordings store it in their header.
func Info() string {
	revision, dirty := commit()
	suffix := ""
	if dirty {
		suffix = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s)", Version, revision, suffix)
}

// Full returns Info plus the Go toolchain and platform.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
