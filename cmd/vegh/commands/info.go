// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/codetease/vegh/cmd/vegh/cli"
	"github.com/codetease/vegh/lib/worker"
)

type infoParams struct {
	globalParams
	cli.JSONOutput
}

func infoCommand(streams Streams) *cli.Command {
	var params infoParams
	return &cli.Command{
		Name:    "info",
		Summary: "Describe the snapshot core and its features",
		Usage:   "vegh info [--json]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("info", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if err := exactArgs("info", args, 0, ""); err != nil {
				return err
			}
			response, err := offload(ctx, workerOptions(0, params.logger(streams)), worker.GetLibraryInfo{ID: 1}, nil)
			if err != nil {
				return err
			}
			result, ok := response.(worker.ResultLibraryInfo)
			if !ok {
				return unexpected(response)
			}
			info := result.Info
			if done, err := params.EmitJSON(streams.Stdout, info); done {
				return err
			}

			styles := newPalette(streams.Stdout)
			fmt.Fprintln(streams.Stdout, styles.heading.Render("vegh "+info.Version))
			table := tabwriter.NewWriter(streams.Stdout, 2, 0, 2, ' ', 0)
			fmt.Fprintf(table, "  core\t%s\n", info.CoreVersion)
			fmt.Fprintf(table, "  format\t%s\n", info.SupportedFormat)
			fmt.Fprintf(table, "  engine\t%s\n", info.Engine)
			fmt.Fprintf(table, "  features\t%s\n", strings.Join(info.Features, ", "))
			return table.Flush()
		},
	}
}
