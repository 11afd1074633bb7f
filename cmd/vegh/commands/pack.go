// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/codetease/vegh/cmd/vegh/cli"
	"github.com/codetease/vegh/lib/cache"
	"github.com/codetease/vegh/lib/clock"
	"github.com/codetease/vegh/lib/pack"
	"github.com/codetease/vegh/lib/version"
)

type packParams struct {
	globalParams
	cli.JSONOutput
	Output         string   `flag:"output,o" desc:"snapshot file to write (required)"`
	Format         int      `flag:"format" desc:"format version, 1 or 2 (default from config)"`
	Compression    string   `flag:"compression" desc:"block compression: none, lz4, or zstd (default from config)"`
	Author         string   `flag:"author" desc:"author recorded in the metadata (default from config)"`
	Comment        string   `flag:"comment,m" desc:"comment recorded in the metadata"`
	Exclude        []string `flag:"exclude,x" desc:"additional exclude pattern (repeatable)"`
	FollowSymlinks bool     `flag:"follow-symlinks" desc:"pack the targets of symlinks to regular files"`
	NoCache        bool     `flag:"no-cache" desc:"neither read nor update the incremental cache"`
}

type packSummary struct {
	Output      string `json:"output"`
	Digest      string `json:"digest"`
	Files       int    `json:"files"`
	Bytes       uint64 `json:"bytes"`
	Container   int64  `json:"container_bytes"`
	CacheHits   int    `json:"cache_hits"`
	CacheMisses int    `json:"cache_misses"`
	Skipped     int    `json:"skipped"`
}

func packCommand(streams Streams) *cli.Command {
	var params packParams
	return &cli.Command{
		Name:    "pack",
		Summary: "Pack a directory into a snapshot",
		Description: `Walk a directory and write every regular file into a new snapshot.

Files whose size and modification time match the incremental cache
reuse their recorded digest instead of being hashed again. The cache
is updated and saved after a successful pack. The snapshot is written
to a temporary file and renamed into place, so a failed pack never
leaves a partial snapshot at the output path.`,
		Usage: "vegh pack <directory> -o <snapshot> [flags]",
		Examples: []cli.Example{
			{
				Description: "Snapshot the current directory",
				Command:     "vegh pack . -o ../project.vegh",
			},
			{
				Description: "Write a format 1 snapshot for older readers",
				Command:     "vegh pack src -o src.vegh --format 1 --compression lz4",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("pack", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if err := exactArgs("pack", args, 1, "<directory> -o <snapshot>"); err != nil {
				return err
			}
			if params.Output == "" {
				return cli.Usagef("pack: --output is required")
			}
			return runPack(ctx, streams, &params, args[0])
		},
	}
}

func runPack(ctx context.Context, streams Streams, params *packParams, root string) error {
	cfg, err := params.config()
	if err != nil {
		return err
	}
	if params.Format != 0 {
		cfg.Snapshot.FormatVersion = params.Format
	}
	if params.Compression != "" {
		cfg.Snapshot.Compression = params.Compression
	}
	format, err := cfg.SnapshotFormat()
	if err != nil {
		return cli.Usagef("pack: --format: %v", err)
	}
	compression, err := cfg.SnapshotCompression()
	if err != nil {
		return cli.Usagef("pack: --compression: %v", err)
	}
	logger := params.logger(streams).With("command", "pack")

	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return cli.Usagef("pack: %s is not a directory", root)
	}

	exclude := append(append([]string(nil), cfg.Pack.Exclude...), params.Exclude...)
	inside, err := outputExcludes(root, params.Output)
	if err != nil {
		return err
	}
	exclude = append(exclude, inside...)

	var snapshotCache *cache.Cache
	cachePath := cfg.Cache.Path
	if params.NoCache {
		cachePath = ""
	}
	if cachePath != "" {
		snapshotCache, err = cache.Load(cachePath)
		if err != nil {
			return err
		}
		logger.Debug("loaded cache", "path", cachePath, "entries", snapshotCache.Len())
	}

	author := params.Author
	if author == "" {
		author = cfg.Author
	}

	outputDirectory := filepath.Dir(params.Output)
	temporary, err := os.CreateTemp(outputDirectory, filepath.Base(params.Output)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temporary output: %w", err)
	}
	temporaryPath := temporary.Name()
	committed := false
	defer func() {
		if !committed {
			temporary.Close()
			os.Remove(temporaryPath)
		}
	}()

	result, err := pack.Directory(ctx, root, temporary, pack.Options{
		Format:         format,
		Compression:    compression,
		Author:         author,
		Comment:        params.Comment,
		ToolVersion:    "vegh " + version.Info(),
		Exclude:        exclude,
		FollowSymlinks: cfg.Pack.FollowSymlinks || params.FollowSymlinks,
		Cache:          snapshotCache,
		Clock:          clock.Real(),
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	if err := temporary.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", temporaryPath, err)
	}
	if err := temporary.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", temporaryPath, err)
	}
	if err := os.Rename(temporaryPath, params.Output); err != nil {
		return fmt.Errorf("renaming snapshot into place: %w", err)
	}
	committed = true

	if snapshotCache != nil {
		if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err != nil {
			return fmt.Errorf("creating cache directory: %w", err)
		}
		if err := snapshotCache.Save(cachePath); err != nil {
			return err
		}
	}

	summary := packSummary{
		Output:      params.Output,
		Digest:      result.Snapshot.Digest.String(),
		Files:       result.Files,
		Bytes:       result.Bytes,
		Container:   result.Snapshot.Bytes,
		CacheHits:   result.CacheHits,
		CacheMisses: result.CacheMisses,
		Skipped:     result.Skipped,
	}
	if done, err := params.EmitJSON(streams.Stdout, summary); done {
		return err
	}

	styles := newPalette(streams.Stdout)
	fmt.Fprintf(streams.Stdout, "%s %d files (%s) into %s\n",
		styles.heading.Render("packed"), summary.Files, formatSize(summary.Bytes), summary.Output)
	fmt.Fprintf(streams.Stdout, "  %s %s\n", styles.label.Render("digest:"), summary.Digest)
	fmt.Fprintf(streams.Stdout, "  %s %s\n", styles.label.Render("size:  "), formatSize(uint64(summary.Container)))
	if snapshotCache != nil {
		fmt.Fprintf(streams.Stdout, "  %s %d hits, %d misses\n", styles.label.Render("cache: "), summary.CacheHits, summary.CacheMisses)
	}
	return nil
}

// outputExcludes returns the patterns that keep the output file and
// its temporary sibling out of the walk when they lie inside root.
func outputExcludes(root, output string) ([]string, error) {
	absoluteRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	absoluteOutput, err := filepath.Abs(output)
	if err != nil {
		return nil, err
	}
	relative, err := filepath.Rel(absoluteRoot, absoluteOutput)
	if err != nil || relative == ".." || strings.HasPrefix(relative, ".."+string(filepath.Separator)) {
		return nil, nil
	}
	relative = escapePattern(filepath.ToSlash(relative))
	return []string{relative, path.Join(path.Dir(relative), escapePattern(filepath.Base(output))) + ".tmp-*"}, nil
}

// escapePattern quotes the path.Match metacharacters in name.
func escapePattern(name string) string {
	var builder strings.Builder
	for _, r := range name {
		switch r {
		case '*', '?', '[', ']', '\\':
			builder.WriteByte('\\')
		}
		builder.WriteRune(r)
	}
	return builder.String()
}
