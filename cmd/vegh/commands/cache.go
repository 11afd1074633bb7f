// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/codetease/vegh/cmd/vegh/cli"
	"github.com/codetease/vegh/lib/cache"
	"github.com/codetease/vegh/lib/worker"
)

func cacheCommand(streams Streams) *cli.Command {
	return &cli.Command{
		Name:    "cache",
		Summary: "Inspect the incremental cache",
		Description: `Inspect the incremental cache that "vegh pack" consults.

The cache records the size, modification time, and digest of every
file packed. A file counts as unchanged when its size and modification
time both match the record.`,
		Subcommands: []*cli.Command{
			cacheCheckCommand(streams),
			cacheShowCommand(streams),
		},
	}
}

type cacheCheckParams struct {
	globalParams
	cli.JSONOutput
	Root string `flag:"root" desc:"directory the cached paths are relative to" default:"."`
}

type cacheCheckReport struct {
	Path string `json:"path"`
	Hit  bool   `json:"hit"`
}

func cacheCheckCommand(streams Streams) *cli.Command {
	var params cacheCheckParams
	return &cli.Command{
		Name:    "check",
		Summary: "Report whether a file would be a cache hit",
		Description: `Compare a file on disk with its cache record. Prints "hit" and exits
0 when size and modification time match; prints "miss" and exits 1
otherwise, including when the file has no record.`,
		Usage: "vegh cache check <path> [--root <dir>] [--json]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("check", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if err := exactArgs("cache check", args, 1, "<path>"); err != nil {
				return err
			}
			snapshotCache, _, err := loadConfiguredCache(&params.globalParams)
			if err != nil {
				return err
			}
			relative, err := cacheKey(params.Root, args[0])
			if err != nil {
				return err
			}
			info, err := os.Stat(filepath.Join(params.Root, filepath.FromSlash(relative)))
			if err != nil {
				return err
			}

			response, err := offload(ctx, workerOptions(0, params.logger(streams)), worker.CheckCache{
				ID:       1,
				Cache:    snapshotCache,
				Path:     relative,
				Size:     uint64(info.Size()),
				Modified: info.ModTime().Unix(),
			}, nil)
			if err != nil {
				return err
			}
			result, ok := response.(worker.ResultCacheHit)
			if !ok {
				return unexpected(response)
			}

			report := cacheCheckReport{Path: relative, Hit: result.Hit}
			if done, err := params.EmitJSON(streams.Stdout, report); done {
				if err == nil && !report.Hit {
					return &cli.ExitError{Code: cli.ExitFailure}
				}
				return err
			}
			styles := newPalette(streams.Stdout)
			if !report.Hit {
				fmt.Fprintln(streams.Stdout, styles.bad.Render("miss"))
				return &cli.ExitError{Code: cli.ExitFailure}
			}
			fmt.Fprintln(streams.Stdout, styles.good.Render("hit"))
			return nil
		},
	}
}

type cacheShowParams struct {
	globalParams
	cli.JSONOutput
}

type cacheView struct {
	Path         string        `json:"path"`
	LastSnapshot int64         `json:"last_snapshot"`
	Entries      []cache.Entry `json:"entries"`
}

func cacheShowCommand(streams Streams) *cli.Command {
	var params cacheShowParams
	return &cli.Command{
		Name:    "show",
		Summary: "List the cache records",
		Usage:   "vegh cache show [--json]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("show", &params)
		},
		Run: func(_ context.Context, args []string) error {
			if err := exactArgs("cache show", args, 0, ""); err != nil {
				return err
			}
			snapshotCache, cachePath, err := loadConfiguredCache(&params.globalParams)
			if err != nil {
				return err
			}

			view := cacheView{Path: cachePath, LastSnapshot: snapshotCache.LastSnapshot(), Entries: snapshotCache.Entries()}
			if done, err := params.EmitJSON(streams.Stdout, view); done {
				return err
			}

			styles := newPalette(streams.Stdout)
			fmt.Fprintf(streams.Stdout, "%s %s\n", styles.heading.Render("cache"), view.Path)
			fmt.Fprintf(streams.Stdout, "  %s %s\n", styles.label.Render("last snapshot:"), formatUnix(view.LastSnapshot))
			fmt.Fprintf(streams.Stdout, "  %s %d\n", styles.label.Render("entries:      "), len(view.Entries))
			if len(view.Entries) == 0 {
				return nil
			}
			fmt.Fprintln(streams.Stdout)
			table := tabwriter.NewWriter(streams.Stdout, 2, 0, 2, ' ', 0)
			for _, entry := range view.Entries {
				sum := "-"
				if entry.Digest != nil {
					sum = entry.Digest.String()
				}
				fmt.Fprintf(table, "%s\t%s\t%s\t%s\n", formatSize(entry.Size), formatUnix(entry.ModifiedTime), sum, entry.Path)
			}
			return table.Flush()
		},
	}
}

// loadConfiguredCache loads the cache file named by the configuration.
func loadConfiguredCache(global *globalParams) (*cache.Cache, string, error) {
	cfg, err := global.config()
	if err != nil {
		return nil, "", err
	}
	if cfg.Cache.Path == "" {
		return nil, "", cli.Usagef("no cache configured (cache.path is empty)")
	}
	loaded, err := cache.Load(cfg.Cache.Path)
	if err != nil {
		return nil, "", err
	}
	return loaded, cfg.Cache.Path, nil
}

// cacheKey converts target into the slash-separated path relative to
// root under which the packer records it.
func cacheKey(root, target string) (string, error) {
	absoluteRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	absoluteTarget, err := filepath.Abs(target)
	if err != nil {
		return "", err
	}
	relative, err := filepath.Rel(absoluteRoot, absoluteTarget)
	if err != nil || relative == "." || relative == ".." || strings.HasPrefix(relative, ".."+string(filepath.Separator)) {
		return "", cli.Usagef("%s is not inside %s", target, root)
	}
	return filepath.ToSlash(relative), nil
}
