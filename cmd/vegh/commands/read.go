// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/codetease/vegh/cmd/vegh/cli"
	"github.com/codetease/vegh/lib/snapshot"
)

type listParams struct {
	cli.JSONOutput
	Long bool `flag:"long,l" desc:"show size, modification time, and digest"`
}

func listCommand(streams Streams) *cli.Command {
	var params listParams
	return &cli.Command{
		Name:    "list",
		Summary: "List the entries of a snapshot",
		Description: `List the entries of a snapshot in archive order.

With --long, each line also shows the entry size, its modification
time (format 2), and its content digest (format 2).`,
		Usage: "vegh list <snapshot> [--long] [--json]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("list", &params)
		},
		Run: func(_ context.Context, args []string) error {
			if err := exactArgs("list", args, 1, "<snapshot>"); err != nil {
				return err
			}
			opened, closeFile, err := openSnapshot(args[0])
			if err != nil {
				return err
			}
			defer closeFile()

			entries, err := opened.Entries()
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(streams.Stdout, entries); done {
				return err
			}
			return writeEntries(streams.Stdout, entries, params.Long)
		},
	}
}

func writeEntries(w io.Writer, entries []snapshot.Entry, long bool) error {
	if !long {
		for _, entry := range entries {
			fmt.Fprintln(w, entry.Path)
		}
		return nil
	}
	table := tabwriter.NewWriter(w, 2, 0, 2, ' ', tabwriter.AlignRight)
	for _, entry := range entries {
		sum := "-"
		if entry.Digest != nil {
			sum = entry.Digest.String()
		}
		fmt.Fprintf(table, "%s\t %s\t %s\t %s\n", formatSize(entry.Size), formatUnix(entry.ModifiedTime), sum, entry.Path)
	}
	return table.Flush()
}

type metaView struct {
	snapshot.Metadata
	Layout string `json:"layout"`
	Size   int64  `json:"size"`
}

func metaCommand(streams Streams) *cli.Command {
	var params cli.JSONOutput
	return &cli.Command{
		Name:    "meta",
		Summary: "Show snapshot metadata",
		Description: `Print the metadata recorded in a snapshot's header: format version,
author, comment, creation time, and the tool that wrote it.

Only the header is read, so this is cheap even for large snapshots.`,
		Usage: "vegh meta <snapshot> [--json]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("meta", &params)
		},
		Run: func(_ context.Context, args []string) error {
			if err := exactArgs("meta", args, 1, "<snapshot>"); err != nil {
				return err
			}
			opened, closeFile, err := openSnapshot(args[0])
			if err != nil {
				return err
			}
			defer closeFile()

			view := metaView{Metadata: opened.Metadata(), Layout: opened.Layout().String(), Size: opened.Size()}
			if done, err := params.EmitJSON(streams.Stdout, view); done {
				return err
			}

			styles := newPalette(streams.Stdout)
			fmt.Fprintln(streams.Stdout, styles.heading.Render(args[0]))
			table := tabwriter.NewWriter(streams.Stdout, 2, 0, 2, ' ', 0)
			fmt.Fprintf(table, "  format\t%d (%s, %s)\n", view.FormatVersion, view.Layout, opened.Format().HashAlgorithm())
			fmt.Fprintf(table, "  size\t%s\n", formatSize(uint64(view.Size)))
			fmt.Fprintf(table, "  created\t%s\n", formatUnix(view.Timestamp))
			if view.Author != "" {
				fmt.Fprintf(table, "  author\t%s\n", view.Author)
			}
			if view.Comment != "" {
				fmt.Fprintf(table, "  comment\t%s\n", view.Comment)
			}
			if view.ToolVersion != "" {
				fmt.Fprintf(table, "  tool\t%s\n", view.ToolVersion)
			}
			if view.CacheSchema != 0 {
				fmt.Fprintf(table, "  cache schema\t%d\n", view.CacheSchema)
			}
			return table.Flush()
		},
	}
}

func catCommand(streams Streams) *cli.Command {
	return &cli.Command{
		Name:    "cat",
		Summary: "Write one entry's content to stdout",
		Description: `Stream the content of one snapshot entry to stdout. The entry is
decompressed incrementally; nothing beyond the current chunk is held
in memory.`,
		Usage: "vegh cat <snapshot> <path>",
		Examples: []cli.Example{
			{
				Description: "Show a file from a snapshot",
				Command:     "vegh cat project.vegh src/main.go",
			},
		},
		Run: func(_ context.Context, args []string) error {
			if err := exactArgs("cat", args, 2, "<snapshot> <path>"); err != nil {
				return err
			}
			opened, closeFile, err := openSnapshot(args[0])
			if err != nil {
				return err
			}
			defer closeFile()

			reader, err := opened.OpenEntry(args[1])
			if err != nil {
				return err
			}
			defer reader.Close()
			if _, err := io.Copy(streams.Stdout, reader); err != nil {
				return fmt.Errorf("reading %s: %w", args[1], err)
			}
			return nil
		},
	}
}
