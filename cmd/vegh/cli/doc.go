// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework behind the vegh binary:
// a [Command] tree dispatched by name, flags bound from tagged params
// structs via pflag, --json output through [JSONOutput], and exit
// codes derived from the fault kind of a returned error.
//
// Commands write to the io.Writer they are constructed with rather
// than to os.Stdout, so tests can run the full tree in-process.
package cli
