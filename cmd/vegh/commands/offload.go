// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/codetease/vegh/lib/fault"
	"github.com/codetease/vegh/lib/worker"
)

// offload runs one request on a worker serving on its own goroutine
// and returns the terminal response. Progress responses go to
// onProgress when it is non-nil. An Error response is returned as a
// Go error carrying the worker's fault kind.
func offload(ctx context.Context, options worker.Options, request worker.Request, onProgress func(worker.Progress)) (worker.Response, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	requests := make(chan worker.Request)
	responses := make(chan worker.Response, 16)
	served := make(chan error, 1)
	go func() {
		served <- worker.New(options).Serve(ctx, requests, responses)
	}()
	defer func() {
		close(requests)
		<-served
	}()

	sent := false
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case err := <-served:
			// Serve only returns early on cancellation; put the
			// result back for the deferred wait.
			served <- err
			if err == nil {
				err = errors.New("worker stopped before answering")
			}
			return nil, err
		case response := <-responses:
			switch response := response.(type) {
			case worker.Ready:
				if sent {
					return nil, errors.New("worker sent a second ready message")
				}
				select {
				case requests <- request:
					sent = true
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			case worker.Progress:
				if onProgress != nil {
					onProgress(response)
				}
			case worker.Error:
				return nil, workerError(response)
			default:
				return response, nil
			}
		}
	}
}

// workerError turns an Error response back into a Go error with the
// same kind.
func workerError(response worker.Error) error {
	if response.Kind == "" {
		return errors.New(response.Message)
	}
	message := strings.TrimPrefix(response.Message, string(response.Kind)+": ")
	return fault.Wrap(response.Kind, errors.New(message))
}

func workerOptions(chunkSize int, logger *slog.Logger) worker.Options {
	return worker.Options{ChunkSize: chunkSize, Logger: logger.With("component", "worker")}
}

func unexpected(response worker.Response) error {
	return fmt.Errorf("worker answered with unexpected %T", response)
}
