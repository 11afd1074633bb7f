// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// palette styles text output for one writer. The renderer inspects
// the writer, so output to a pipe or buffer carries no escapes.
type palette struct {
	heading lipgloss.Style
	label   lipgloss.Style
	good    lipgloss.Style
	bad     lipgloss.Style
	faint   lipgloss.Style
}

func newPalette(w io.Writer) palette {
	renderer := lipgloss.NewRenderer(w)
	return palette{
		heading: renderer.NewStyle().Bold(true),
		label:   renderer.NewStyle().Foreground(lipgloss.Color("6")),
		good:    renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("2")),
		bad:     renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("1")),
		faint:   renderer.NewStyle().Faint(true),
	}
}

func formatSize(size uint64) string {
	return humanize.IBytes(size)
}

// formatUnix renders a Unix-seconds timestamp in UTC, or "-" for zero.
func formatUnix(seconds int64) string {
	if seconds == 0 {
		return "-"
	}
	return time.Unix(seconds, 0).UTC().Format(time.RFC3339)
}
