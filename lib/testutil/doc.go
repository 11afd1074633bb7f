// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for vegh packages.
//
// [RequireReceive] and [RequireSend] wrap channel operations in a
// timeout so that a hung worker fails the test instead of stalling
// the suite. They are the only place tests use real wall-clock
// timeouts.
//
// [WriteTree] creates a directory tree with fixed modified times, so
// that cache decisions in tests do not depend on when the test ran.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
