// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/pflag"

	"github.com/codetease/vegh/cmd/vegh/cli"
	"github.com/codetease/vegh/lib/digest"
	"github.com/codetease/vegh/lib/fault"
	"github.com/codetease/vegh/lib/snapshot"
)

type diffParams struct {
	cli.JSONOutput
	Context int `flag:"context,U" desc:"lines of context in a content diff" default:"3"`
}

type diffReport struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	Changed []string `json:"changed"`
}

func diffCommand(streams Streams) *cli.Command {
	var params diffParams
	return &cli.Command{
		Name:    "diff",
		Summary: "Compare two snapshots",
		Description: `Compare two snapshots entry by entry.

Without a path, list the entries added (A), removed (D), and changed
(M) between <old> and <new>. Entries are compared by digest when both
sides record one, and by content otherwise.

With a path, print a unified diff of that entry's content. An entry
missing on one side diffs against empty content.`,
		Usage: "vegh diff <old> <new> [path] [flags]",
		Examples: []cli.Example{
			{
				Description: "What changed between two releases",
				Command:     "vegh diff v1.vegh v2.vegh",
			},
			{
				Description: "Show the change to one file",
				Command:     "vegh diff v1.vegh v2.vegh src/main.go",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("diff", &params)
		},
		Run: func(_ context.Context, args []string) error {
			if len(args) != 2 && len(args) != 3 {
				return cli.Usagef("usage: vegh diff <old> <new> [path]")
			}
			if params.Context < 0 {
				return cli.Usagef("diff: --context must not be negative")
			}
			older, closeOlder, err := openSnapshot(args[0])
			if err != nil {
				return err
			}
			defer closeOlder()
			newer, closeNewer, err := openSnapshot(args[1])
			if err != nil {
				return err
			}
			defer closeNewer()

			if len(args) == 3 {
				patch, err := diffEntry(older, newer, args[2], params.Context)
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(streams.Stdout, patch)
				return err
			}

			report, err := diffSnapshots(older, newer)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(streams.Stdout, report); done {
				return err
			}
			styles := newPalette(streams.Stdout)
			for _, line := range report.lines() {
				marker := styles.faint.Render(line.marker)
				switch line.marker {
				case "A":
					marker = styles.good.Render(line.marker)
				case "D":
					marker = styles.bad.Render(line.marker)
				}
				fmt.Fprintf(streams.Stdout, "%s %s\n", marker, line.path)
			}
			return nil
		},
	}
}

type diffLine struct {
	marker string
	path   string
}

// lines merges the report into one path-ordered listing.
func (r diffReport) lines() []diffLine {
	var lines []diffLine
	for _, path := range r.Added {
		lines = append(lines, diffLine{"A", path})
	}
	for _, path := range r.Removed {
		lines = append(lines, diffLine{"D", path})
	}
	for _, path := range r.Changed {
		lines = append(lines, diffLine{"M", path})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].path < lines[j].path })
	return lines
}

func diffSnapshots(older, newer *snapshot.Snapshot) (diffReport, error) {
	olderEntries, err := older.Entries()
	if err != nil {
		return diffReport{}, err
	}
	newerEntries, err := newer.Entries()
	if err != nil {
		return diffReport{}, err
	}

	before := make(map[string]snapshot.Entry, len(olderEntries))
	for _, entry := range olderEntries {
		before[entry.Path] = entry
	}

	report := diffReport{Added: []string{}, Removed: []string{}, Changed: []string{}}
	// Same-size entries without comparable digests are settled by
	// content, hashed in one pass over each snapshot.
	undecided := make(map[string]bool)
	seen := make(map[string]bool, len(newerEntries))
	for _, entry := range newerEntries {
		seen[entry.Path] = true
		previous, ok := before[entry.Path]
		switch {
		case !ok:
			report.Added = append(report.Added, entry.Path)
		case previous.Size != entry.Size:
			report.Changed = append(report.Changed, entry.Path)
		case comparableDigests(previous, entry):
			if *previous.Digest != *entry.Digest {
				report.Changed = append(report.Changed, entry.Path)
			}
		default:
			undecided[entry.Path] = true
		}
	}
	for _, entry := range olderEntries {
		if !seen[entry.Path] {
			report.Removed = append(report.Removed, entry.Path)
		}
	}

	if len(undecided) > 0 {
		beforeSums, err := contentDigests(older, undecided)
		if err != nil {
			return diffReport{}, err
		}
		afterSums, err := contentDigests(newer, undecided)
		if err != nil {
			return diffReport{}, err
		}
		for path := range undecided {
			if beforeSums[path] != afterSums[path] {
				report.Changed = append(report.Changed, path)
			}
		}
	}

	sort.Strings(report.Added)
	sort.Strings(report.Removed)
	sort.Strings(report.Changed)
	return report, nil
}

func comparableDigests(previous, current snapshot.Entry) bool {
	return previous.Digest != nil && current.Digest != nil && previous.Digest.Algorithm == current.Digest.Algorithm
}

// contentDigests BLAKE3-hashes the payloads of the entries in paths,
// walking the snapshot once.
func contentDigests(opened *snapshot.Snapshot, paths map[string]bool) (map[string]digest.Digest, error) {
	sums := make(map[string]digest.Digest, len(paths))
	err := opened.Walk(func(entry snapshot.Entry, payload io.Reader) error {
		if !paths[entry.Path] {
			return nil
		}
		hasher, err := digest.New(digest.BLAKE3)
		if err != nil {
			return err
		}
		if _, err := io.Copy(hasher, payload); err != nil {
			return fmt.Errorf("reading entry %q: %w", entry.Path, err)
		}
		sum, err := hasher.Finalize()
		if err != nil {
			return err
		}
		sums[entry.Path] = sum
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sums, nil
}

// diffEntry returns a unified diff of path between the two snapshots.
// The result is empty when the content is identical.
func diffEntry(older, newer *snapshot.Snapshot, path string, contextLines int) (string, error) {
	before, beforeFound, err := readOptional(older, path)
	if err != nil {
		return "", err
	}
	after, afterFound, err := readOptional(newer, path)
	if err != nil {
		return "", err
	}
	if !beforeFound && !afterFound {
		return "", fault.New(fault.EntryNotFound, "%q is in neither snapshot", path)
	}

	fromFile, toFile := "a/"+path, "b/"+path
	if !beforeFound {
		fromFile = "/dev/null"
	}
	if !afterFound {
		toFile = "/dev/null"
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(before),
		B:        splitLines(after),
		FromFile: fromFile,
		ToFile:   toFile,
		Context:  contextLines,
	})
}

func readOptional(opened *snapshot.Snapshot, path string) ([]byte, bool, error) {
	content, err := opened.ReadEntry(path)
	if errors.Is(err, fault.EntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return content, true, nil
}

// splitLines splits content after each newline. Empty content has no
// lines, and a final line without a newline is kept as is.
func splitLines(content []byte) []string {
	if len(content) == 0 {
		return []string{}
	}
	lines := strings.SplitAfter(string(content), "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
