// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
)

// These variables are set via -ldflags at build time, for example:
//
//	go build -ldflags "-X github.com/codetease/vegh/lib/version.GitCommit=$(git rev-parse --short HEAD)"
var (
	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// GitDirty indicates whether there were uncommitted changes.
	GitDirty = "false"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// Version is the semantic version of the vegh tool.
	Version = "0.3.0-dev"
)

// CoreVersion is the version of the snapshot core: the container
// format reader and writer, hasher, and cache.
const CoreVersion = "0.3.0"

// Info returns a formatted version string suitable for --version output.
func Info() string {
	dirty := ""
	if GitDirty == "true" {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, GitCommit, dirty, BuildTime)
}

// Full returns detailed version information including Go version.
func Full() string {
	return fmt.Sprintf("%s\n  Core: %s\n  Go: %s\n  Platform: %s/%s",
		Info(), CoreVersion, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Engine describes the runtime the core is executing in.
func Engine() string {
	return fmt.Sprintf("go %s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
