// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for vegh.
//
// Three package-level variables are injected at build time via
// -ldflags -X:
//
//   - [GitCommit] -- short git SHA of the build
//   - [GitDirty] -- "true" if there were uncommitted changes
//   - [BuildTime] -- UTC timestamp of the build
//
// [Version] is the release version and [CoreVersion] the version of
// the snapshot core reported by library info queries. Both are set
// manually for releases.
package version
