// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/codetease/vegh/cmd/vegh/cli"
	"github.com/codetease/vegh/lib/digest"
	"github.com/codetease/vegh/lib/fault"
)

type verifyParams struct {
	cli.JSONOutput
	Expect  string `flag:"expect,e" desc:"expected container digest, as hex or <algorithm>:<hex>"`
	Entries bool   `flag:"entries" desc:"also check every entry digest and block checksum"`
}

type verifyReport struct {
	Snapshot string   `json:"snapshot"`
	Digest   string   `json:"digest"`
	Expected string   `json:"expected,omitempty"`
	OK       bool     `json:"ok"`
	Failures []string `json:"failures"`
}

func verifyCommand(streams Streams) *cli.Command {
	var params verifyParams
	return &cli.Command{
		Name:    "verify",
		Summary: "Check a snapshot's integrity",
		Description: `Compute a snapshot's container digest and compare it with an expected
value. The digest algorithm follows the format: SHA-256 for format 1,
BLAKE3 for format 2.

With --entries, every entry is also decompressed and checked against
its recorded digest, and every block's frame checksum is verified.

Exits 3 on a digest mismatch and 4 on a corrupt container.`,
		Usage: "vegh verify <snapshot> [--expect <digest>] [--entries] [--json]",
		Examples: []cli.Example{
			{
				Description: "Check a downloaded snapshot against a published digest",
				Command:     "vegh verify release.vegh --expect blake3:2f1c...",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("verify", &params)
		},
		Run: func(_ context.Context, args []string) error {
			if err := exactArgs("verify", args, 1, "<snapshot>"); err != nil {
				return err
			}
			opened, closeFile, err := openSnapshot(args[0])
			if err != nil {
				return err
			}
			defer closeFile()

			report := verifyReport{Snapshot: args[0], OK: true, Failures: []string{}}
			var expected digest.Digest
			if params.Expect != "" {
				expected, err = digest.Parse(params.Expect, opened.Format().HashAlgorithm())
				if err != nil {
					return cli.Usagef("verify: --expect: %v", err)
				}
				report.Expected = expected.String()
			}

			actual, err := opened.Digest()
			if err != nil {
				return err
			}
			report.Digest = actual.String()
			if params.Expect != "" {
				if err := digest.Verify(expected, actual); err != nil {
					if !errors.Is(err, fault.HashMismatch) {
						return err
					}
					report.OK = false
					report.Failures = append(report.Failures, "container: "+err.Error())
				}
			}

			if params.Entries {
				failures, err := opened.VerifyEntries()
				if err != nil {
					return err
				}
				for _, failure := range failures {
					report.OK = false
					report.Failures = append(report.Failures, failure.Err.Error())
				}
			}

			if done, err := params.EmitJSON(streams.Stdout, report); done {
				if err == nil && !report.OK {
					return &cli.ExitError{Code: cli.ExitMismatch}
				}
				return err
			}

			styles := newPalette(streams.Stdout)
			fmt.Fprintf(streams.Stdout, "%s %s\n", styles.label.Render("digest:"), report.Digest)
			for _, failure := range report.Failures {
				fmt.Fprintf(streams.Stdout, "  %s\n", failure)
			}
			if !report.OK {
				fmt.Fprintln(streams.Stdout, styles.bad.Render("FAILED"))
				return &cli.ExitError{Code: cli.ExitMismatch}
			}
			if params.Expect != "" || params.Entries {
				fmt.Fprintln(streams.Stdout, styles.good.Render("OK"))
			}
			return nil
		},
	}
}
