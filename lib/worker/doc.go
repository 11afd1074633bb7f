// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

// Package worker runs snapshot operations off the caller's goroutine
// and reports back over a channel.
//
// The caller starts [Worker.Serve] on its own goroutine, sends
// [Request] values, and receives [Response] values. The first
// response is always [Ready]. Each request then produces zero or more
// [Progress] messages followed by exactly one terminal response: a
// result type or [Error]. Requests are handled one at a time in the
// order received.
//
// Cancelling the context stops the worker. A hash interrupted this
// way produces no result at all, not a partial one.
//
// Request and Response are closed sets; a type switch over them can
// be exhaustive:
//
//	switch response := response.(type) {
//	case worker.Progress:
//	    bar.Set(response.Percent)
//	case worker.ResultIntegrity:
//	    fmt.Println(response.Hex)
//	case worker.Error:
//	    return fmt.Errorf("%s: %s", response.Kind, response.Message)
//	}
package worker
