// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"

	"github.com/codetease/vegh/lib/fault"
)

// Exit codes. Scripts branch on these, so they are stable.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitUsage    = 2
	ExitMismatch = 3
	ExitCorrupt  = 4
	ExitNotFound = 5
)

// ExitError signals a non-zero exit without printing anything more.
// The command has already written its own output.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// UsageError is a malformed command line.
type UsageError struct {
	message string
}

func (e *UsageError) Error() string { return e.message }

// Usagef returns a [UsageError].
func Usagef(format string, args ...any) error {
	return &UsageError{message: fmt.Sprintf(format, args...)}
}

// ExitCodeFor maps an error returned by a command to the process exit
// code: an [ExitError] keeps its own code, a [UsageError] or an
// InvalidUsage fault is ExitUsage, and the container fault kinds map
// to their dedicated codes.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitError *ExitError
	if errors.As(err, &exitError) {
		return exitError.Code
	}
	var usageError *UsageError
	if errors.As(err, &usageError) {
		return ExitUsage
	}
	switch fault.KindOf(err) {
	case fault.InvalidUsage:
		return ExitUsage
	case fault.HashMismatch:
		return ExitMismatch
	case fault.CorruptContainer, fault.UnsupportedFormatVersion, fault.UnsupportedCompression:
		return ExitCorrupt
	case fault.EntryNotFound:
		return ExitNotFound
	default:
		return ExitFailure
	}
}
