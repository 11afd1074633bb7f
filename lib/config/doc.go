// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for vegh.
//
// Configuration comes from a single file named by either the
// VEGH_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). [Resolve] applies that precedence for the CLI and
// falls back to [Default] when neither is given. There is no
// ~/.config discovery and no automatic file search.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${VEGH_HOME}, and ${VAR:-default} patterns are expanded.
// No environment variable overrides a config value.
//
// Unknown keys are errors, so a misspelled option is reported rather
// than silently ignored.
package config
