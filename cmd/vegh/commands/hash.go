// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/codetease/vegh/cmd/vegh/cli"
	"github.com/codetease/vegh/lib/worker"
)

type hashParams struct {
	globalParams
	cli.JSONOutput
	ChunkSize int `flag:"chunk-size" desc:"read size in bytes (default from config)"`
}

type hashReport struct {
	File   string `json:"file"`
	Digest string `json:"digest"`
	Hex    string `json:"hex"`
	Base64 string `json:"base64"`
}

func hashCommand(streams Streams) *cli.Command {
	var params hashParams
	return &cli.Command{
		Name:    "hash",
		Summary: "Compute the integrity digest of a file",
		Description: `Stream a file through the integrity hasher and print its digest.

A snapshot is hashed with its format's algorithm, giving the same
value as "vegh verify"; any other file is hashed with BLAKE3. Progress
is drawn on stderr when it is a terminal.`,
		Usage: "vegh hash <file> [--chunk-size N] [--json]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("hash", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if err := exactArgs("hash", args, 1, "<file>"); err != nil {
				return err
			}
			cfg, err := params.config()
			if err != nil {
				return err
			}
			chunkSize := cfg.Hash.ChunkSize
			if params.ChunkSize < 0 {
				return cli.Usagef("hash: --chunk-size must be positive")
			}
			if params.ChunkSize > 0 {
				chunkSize = params.ChunkSize
			}

			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()
			info, err := file.Stat()
			if err != nil {
				return err
			}

			var onProgress func(worker.Progress)
			if streams.Interactive {
				onProgress = func(progress worker.Progress) {
					fmt.Fprintf(streams.Stderr, "\r%s %3d%%", args[0], progress.Percent)
				}
			}
			response, err := offload(ctx, workerOptions(chunkSize, params.logger(streams)), worker.CheckIntegrityStream{
				ID:   1,
				File: worker.File{Name: args[0], Reader: file, Size: info.Size()},
			}, onProgress)
			if onProgress != nil {
				fmt.Fprintln(streams.Stderr)
			}
			if err != nil {
				return err
			}
			result, ok := response.(worker.ResultIntegrity)
			if !ok {
				return unexpected(response)
			}

			report := hashReport{File: args[0], Digest: result.Digest.String(), Hex: result.Hex, Base64: result.Base64}
			if done, err := params.EmitJSON(streams.Stdout, report); done {
				return err
			}
			fmt.Fprintf(streams.Stdout, "%s  %s\n", report.Digest, report.File)
			return nil
		},
	}
}
