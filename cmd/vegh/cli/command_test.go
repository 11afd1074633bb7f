// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &Command{
		Name: "vegh",
		Subcommands: []*Command{
			{
				Name: "cache",
				Subcommands: []*Command{
					{
						Name: "show",
						Run: func(_ context.Context, args []string) error {
							called = "cache show"
							receivedArgs = args
							return nil
						},
					},
				},
			},
			{
				Name: "list",
				Run: func(_ context.Context, args []string) error {
					called = "list"
					return nil
				},
			},
		},
	}

	if err := root.Execute(context.Background(), []string{"cache", "show", "extra"}, &bytes.Buffer{}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "cache show" {
		t.Errorf("dispatched to %q, want %q", called, "cache show")
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "extra" {
		t.Errorf("args = %v, want [extra]", receivedArgs)
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var params struct {
		Output  string   `flag:"output,o"`
		Exclude []string `flag:"exclude"`
		Verbose bool     `flag:"verbose,v"`
	}
	var receivedArgs []string

	command := &Command{
		Name: "pack",
		Flags: func() *pflag.FlagSet {
			return FlagsFromParams("pack", &params)
		},
		Run: func(_ context.Context, args []string) error {
			receivedArgs = args
			return nil
		},
	}

	args := []string{"-o", "out.vegh", "--exclude", "*.tmp", "--exclude", "build", "-v", "src"}
	if err := command.Execute(context.Background(), args, &bytes.Buffer{}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if params.Output != "out.vegh" {
		t.Errorf("Output = %q, want %q", params.Output, "out.vegh")
	}
	if len(params.Exclude) != 2 || params.Exclude[0] != "*.tmp" || params.Exclude[1] != "build" {
		t.Errorf("Exclude = %v, want [*.tmp build]", params.Exclude)
	}
	if !params.Verbose {
		t.Error("Verbose = false, want true")
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "src" {
		t.Errorf("args = %v, want [src]", receivedArgs)
	}
}

func TestCommand_Execute_UnknownCommandSuggests(t *testing.T) {
	root := &Command{
		Name: "vegh",
		Subcommands: []*Command{
			{Name: "verify", Run: func(context.Context, []string) error { return nil }},
			{Name: "list", Run: func(context.Context, []string) error { return nil }},
		},
	}

	err := root.Execute(context.Background(), []string{"verfy"}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
	if !strings.Contains(err.Error(), `did you mean "verify"`) {
		t.Errorf("error = %q, want a suggestion of verify", err)
	}
	var usage *UsageError
	if !errors.As(err, &usage) {
		t.Errorf("error type = %T, want *UsageError", err)
	}
}

func TestCommand_Execute_UnknownFlagSuggests(t *testing.T) {
	var params struct {
		Entries bool `flag:"entries"`
	}
	command := &Command{
		Name: "verify",
		Flags: func() *pflag.FlagSet {
			return FlagsFromParams("verify", &params)
		},
		Run: func(context.Context, []string) error { return nil },
	}

	err := command.Execute(context.Background(), []string{"--entires", "x.vegh"}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error for unknown flag")
	}
	if !strings.Contains(err.Error(), "did you mean --entries") {
		t.Errorf("error = %q, want a suggestion of --entries", err)
	}
}

func TestCommand_Execute_HelpFlag(t *testing.T) {
	var params struct {
		Long bool `flag:"long,l" desc:"show sizes"`
	}
	ran := false
	command := &Command{
		Name:        "list",
		Description: "List the entries of a snapshot.",
		Usage:       "vegh list <snapshot>",
		Examples:    []Example{{Description: "Plain list", Command: "vegh list a.vegh"}},
		Flags: func() *pflag.FlagSet {
			return FlagsFromParams("list", &params)
		},
		Run: func(context.Context, []string) error {
			ran = true
			return nil
		},
	}

	var help bytes.Buffer
	if err := command.Execute(context.Background(), []string{"--help"}, &help); err != nil {
		t.Fatalf("Execute(--help) error: %v", err)
	}
	if ran {
		t.Error("Run called for --help")
	}
	for _, want := range []string{"List the entries", "vegh list <snapshot>", "--long", "show sizes", "# Plain list"} {
		if !strings.Contains(help.String(), want) {
			t.Errorf("help output missing %q:\n%s", want, help.String())
		}
	}
}

func TestCommand_Execute_GroupWithoutSubcommand(t *testing.T) {
	root := &Command{
		Name: "cache",
		Subcommands: []*Command{
			{Name: "show", Summary: "List the cache records", Run: func(context.Context, []string) error { return nil }},
		},
	}

	var help bytes.Buffer
	err := root.Execute(context.Background(), nil, &help)
	var usage *UsageError
	if !errors.As(err, &usage) {
		t.Fatalf("error = %v, want a *UsageError", err)
	}
	if !strings.Contains(help.String(), "List the cache records") {
		t.Errorf("help output missing subcommand listing:\n%s", help.String())
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"verify", "verify", 0},
		{"verfy", "verify", 1},
		{"lsit", "list", 2},
		{"kitten", "sitting", 3},
	}
	for _, test := range tests {
		if got := levenshtein(test.a, test.b); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
		}
		if got := levenshtein(test.b, test.a); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.b, test.a, got, test.want)
		}
	}
}
