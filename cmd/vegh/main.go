// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

// Command vegh packs, inspects, and verifies content snapshots.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/codetease/vegh/cmd/vegh/cli"
	"github.com/codetease/vegh/cmd/vegh/commands"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := commands.Root(commands.Streams{
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		Interactive: term.IsTerminal(int(os.Stderr.Fd())),
	})
	err := root.Execute(ctx, args, os.Stdout)
	if err == nil {
		return cli.ExitOK
	}
	// A command that already wrote its own output returns an
	// ExitError; don't add an "error:" line for those.
	var exitError *cli.ExitError
	if !errors.As(err, &exitError) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	return cli.ExitCodeFor(err)
}
