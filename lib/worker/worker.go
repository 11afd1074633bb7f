// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/codetease/vegh/lib/digest"
	"github.com/codetease/vegh/lib/fault"
	"github.com/codetease/vegh/lib/snapshot"
	"github.com/codetease/vegh/lib/version"
)

// DefaultChunkSize is the read size for integrity hashing when neither
// the request nor the worker options set one.
const DefaultChunkSize = 1 << 20

// Task names carried in Progress.
const (
	TaskIntegrity = "integrity"
)

// features lists the capabilities reported by GetLibraryInfo.
var features = []string{
	"streaming_hashing",
	"caching_schema_v2",
	"worker_offloading",
	"content_extraction",
	"pyvegh_compat",
}

// Options configures a Worker.
type Options struct {
	// ChunkSize is the default integrity read size in bytes. Zero
	// means DefaultChunkSize.
	ChunkSize int

	// Logger receives a debug record per request. Nil discards.
	Logger *slog.Logger
}

// Worker executes requests sequentially.
type Worker struct {
	chunkSize int
	logger    *slog.Logger
}

// New creates a Worker.
func New(options Options) *Worker {
	worker := &Worker{chunkSize: options.ChunkSize, logger: options.Logger}
	if worker.chunkSize <= 0 {
		worker.chunkSize = DefaultChunkSize
	}
	if worker.logger == nil {
		worker.logger = slog.New(slog.DiscardHandler)
	}
	return worker
}

// Serve sends Ready, then handles requests until the channel is
// closed or ctx is cancelled. It returns nil when requests is closed
// and ctx.Err() on cancellation. Serve never closes responses.
func (w *Worker) Serve(ctx context.Context, requests <-chan Request, responses chan<- Response) error {
	if err := send(ctx, responses, Ready{}); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case request, ok := <-requests:
			if !ok {
				return nil
			}
			if err := w.Handle(ctx, request, func(response Response) error {
				return send(ctx, responses, response)
			}); err != nil {
				return err
			}
		}
	}
}

// Handle runs one request, passing every response to emit. The last
// response emitted is terminal. Handle returns an error only when
// emit fails or ctx is cancelled; request failures become [Error]
// responses.
func (w *Worker) Handle(ctx context.Context, request Request, emit func(Response) error) error {
	if request == nil {
		return emit(Error{Kind: fault.InvalidUsage, Message: "nil request"})
	}

	// Pointers to the request types also satisfy Request. They are
	// rejected here, before anything dereferences them.
	var id uint64
	var response Response
	var err error
	switch request := request.(type) {
	case CheckIntegrityStream:
		id = request.ID
		w.logRequest(id, request)
		response, err = w.checkIntegrity(ctx, request, emit)
	case GetMetadata:
		id = request.ID
		w.logRequest(id, request)
		response, err = getMetadata(request)
	case ListFiles:
		id = request.ID
		w.logRequest(id, request)
		response, err = listFiles(request)
	case CheckCache:
		id = request.ID
		w.logRequest(id, request)
		response, err = checkCache(request)
	case GetFileContent:
		id = request.ID
		w.logRequest(id, request)
		response, err = getFileContent(request)
	case GetLibraryInfo:
		id = request.ID
		w.logRequest(id, request)
		response = ResultLibraryInfo{RequestID: id, Info: Info()}
	default:
		err = fault.New(fault.InvalidUsage, "unsupported request type %T", request)
	}

	if err != nil {
		// Cancellation and a failed emit end the worker; everything
		// else is the request's failure.
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return ctxErr
		}
		var emitErr *emitError
		if errors.As(err, &emitErr) {
			return emitErr.err
		}
		w.logger.Debug("request failed", "id", id, "error", err)
		response = Error{RequestID: id, Kind: fault.KindOf(err), Message: err.Error()}
	}
	return emit(response)
}

func (w *Worker) logRequest(id uint64, request Request) {
	w.logger.Debug("handling request", "id", id, "type", fmt.Sprintf("%T", request))
}

// Info returns the library description reported by GetLibraryInfo.
func Info() LibraryInfo {
	return LibraryInfo{
		Version:         version.Version,
		CoreVersion:     version.CoreVersion,
		SupportedFormat: strconv.Itoa(int(snapshot.CurrentVersion)),
		Engine:          version.Engine(),
		Features:        append([]string(nil), features...),
	}
}

// emitError marks a failure of the emit callback so Handle can tell
// it apart from a request failure.
type emitError struct{ err error }

func (e *emitError) Error() string { return e.err.Error() }
func (e *emitError) Unwrap() error { return e.err }

func (w *Worker) checkIntegrity(ctx context.Context, request CheckIntegrityStream, emit func(Response) error) (Response, error) {
	file := request.File
	if file.Reader == nil || file.Size < 0 {
		return nil, fault.New(fault.InvalidUsage, "integrity request %d has no readable file", request.ID)
	}

	chunkSize := request.ChunkSize
	if chunkSize <= 0 {
		chunkSize = w.chunkSize
	}

	hasher, err := digest.New(integrityAlgorithm(file))
	if err != nil {
		return nil, err
	}

	chunk := make([]byte, chunkSize)
	lastPercent := -1
	var consumed int64
	for consumed < file.Size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		want := int64(chunkSize)
		if remaining := file.Size - consumed; remaining < want {
			want = remaining
		}
		n, err := file.Reader.ReadAt(chunk[:want], consumed)
		if int64(n) < want {
			if err == nil || errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("reading %s at offset %d: %w", file.Name, consumed+int64(n), err)
		}
		if err := hasher.Update(chunk[:n]); err != nil {
			return nil, err
		}
		consumed += int64(n)

		percent := int(consumed * 100 / file.Size)
		if percent != lastPercent {
			lastPercent = percent
			if err := emit(Progress{RequestID: request.ID, Task: TaskIntegrity, Percent: percent}); err != nil {
				return nil, &emitError{err: err}
			}
		}
	}

	sum, err := hasher.Finalize()
	if err != nil {
		return nil, err
	}
	return ResultIntegrity{RequestID: request.ID, Digest: sum, Hex: sum.Hex(), Base64: sum.Base64()}, nil
}

// integrityAlgorithm picks the algorithm from the file's header. A
// file whose header cannot be read is hashed with BLAKE3.
func integrityAlgorithm(file File) digest.Algorithm {
	opened, err := snapshot.Open(file.Reader, file.Size)
	if err != nil {
		return digest.BLAKE3
	}
	return opened.Format().HashAlgorithm()
}

func openFile(file File) (*snapshot.Snapshot, error) {
	if file.Reader == nil {
		return nil, fault.New(fault.InvalidUsage, "request has no file")
	}
	return snapshot.Open(file.Reader, file.Size)
}

func getMetadata(request GetMetadata) (Response, error) {
	if request.File.Reader == nil {
		return nil, fault.New(fault.InvalidUsage, "request has no file")
	}
	metadata, err := snapshot.ReadMetadataFrom(io.NewSectionReader(request.File.Reader, 0, request.File.Size))
	if err != nil {
		return nil, err
	}
	return ResultMetadata{RequestID: request.ID, Metadata: metadata}, nil
}

func listFiles(request ListFiles) (Response, error) {
	opened, err := openFile(request.File)
	if err != nil {
		return nil, err
	}
	entries, err := opened.Entries()
	if err != nil {
		return nil, err
	}
	files := make([]FileInfo, len(entries))
	for i, entry := range entries {
		files[i] = FileInfo{Path: entry.Path, Size: entry.Size}
	}
	return ResultFiles{RequestID: request.ID, Files: files}, nil
}

func checkCache(request CheckCache) (Response, error) {
	hit, err := request.Cache.CheckHit(request.Path, request.Size, request.Modified)
	if err != nil {
		return nil, err
	}
	return ResultCacheHit{RequestID: request.ID, Hit: hit}, nil
}

func getFileContent(request GetFileContent) (Response, error) {
	opened, err := openFile(request.File)
	if err != nil {
		return nil, err
	}
	content, err := opened.ReadEntry(request.Path)
	if err != nil {
		return nil, err
	}
	return ResultFileContent{RequestID: request.ID, Path: request.Path, Content: content}, nil
}

// send delivers one response unless ctx is cancelled first.
func send(ctx context.Context, responses chan<- Response, response Response) error {
	select {
	case responses <- response:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
