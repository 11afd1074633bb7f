// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the vegh command tree.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/codetease/vegh/cmd/vegh/cli"
	"github.com/codetease/vegh/lib/config"
	"github.com/codetease/vegh/lib/snapshot"
	"github.com/codetease/vegh/lib/version"
)

// Streams are the process streams commands write to.
type Streams struct {
	Stdout io.Writer
	Stderr io.Writer

	// Interactive reports whether Stderr is a terminal. Progress
	// output is only drawn when it is.
	Interactive bool

	// Logger receives diagnostics. Nil builds one from --verbose
	// with [cli.NewCommandLogger].
	Logger *slog.Logger
}

// Root builds the complete vegh command tree.
func Root(streams Streams) *cli.Command {
	return &cli.Command{
		Name: "vegh",
		Description: `vegh: content snapshots with integrity digests and an incremental cache.

Pack a directory into a single-file snapshot, inspect and extract it,
and verify it byte for byte.`,
		Subcommands: []*cli.Command{
			packCommand(streams),
			listCommand(streams),
			metaCommand(streams),
			catCommand(streams),
			verifyCommand(streams),
			hashCommand(streams),
			diffCommand(streams),
			cacheCommand(streams),
			infoCommand(streams),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, args []string) error {
					if len(args) > 0 {
						return cli.Usagef("version takes no arguments")
					}
					fmt.Fprintf(streams.Stdout, "vegh %s\n", version.Full())
					return nil
				},
			},
		},
	}
}

// globalParams are shared by every command that reads configuration
// or logs.
type globalParams struct {
	ConfigPath string `flag:"config" desc:"configuration file (default: $VEGH_CONFIG, then built-in defaults)"`
	Verbose    bool   `flag:"verbose,v" desc:"log debug detail to stderr"`
}

func (g *globalParams) config() (*config.Config, error) {
	loaded, err := config.Resolve(g.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := loaded.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return loaded, nil
}

func (g *globalParams) logger(streams Streams) *slog.Logger {
	if streams.Logger != nil {
		return streams.Logger
	}
	return cli.NewCommandLogger(g.Verbose)
}

// openSnapshot opens the snapshot file at filename. The returned
// close function releases the file.
func openSnapshot(filename string) (*snapshot.Snapshot, func() error, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, err
	}
	opened, err := snapshot.Open(file, info.Size())
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("opening %s: %w", filename, err)
	}
	return opened, file.Close, nil
}

func exactArgs(command string, args []string, count int, what string) error {
	if len(args) != count {
		return cli.Usagef("usage: vegh %s %s", command, what)
	}
	return nil
}
