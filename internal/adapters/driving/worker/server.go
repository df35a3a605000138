// Package worker is the embedding worker process body.
//
// It reads newline-delimited requests from the parent on stdin, runs them
// against the configured backends one at a time and writes each reply to
// stdout. Logs go to stderr; stdout is reserved for the protocol.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	client "github.com/custodia-labs/quill/internal/adapters/driven/embedding/worker"
	"github.com/custodia-labs/quill/internal/core/domain"
	"github.com/custodia-labs/quill/internal/core/ports/driven"
)

// Server dispatches requests to embedding backends by provider.
type Server struct {
	backends map[domain.AIProvider]driven.EmbeddingBackend
	log      *zap.Logger
}

// NewServer creates a server. A provider absent from backends answers MODEL_NOT_READY.
func NewServer(backends map[domain.AIProvider]driven.EmbeddingBackend, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{backends: backends, log: log}
}

// Serve processes requests until r reaches EOF or ctx is cancelled.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	dec := json.NewDecoder(r)
	enc := json.NewEncoder(w)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		var req client.Request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return fmt.Errorf("decoding request: %w", err)
		}

		resp := s.Handle(ctx, req)
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("writing response %d: %w", req.ID, err)
		}
	}
}

// Handle runs one request.
func (s *Server) Handle(ctx context.Context, req client.Request) client.Response {
	var (
		data *client.EncodeResult
		err  error
	)
	switch req.Op {
	case client.OpEncode:
		data, err = s.encode(ctx, req.Model, req.Texts)
	case client.OpPing:
		err = s.ping(ctx, req.Model)
	default:
		err = domain.NewError(domain.CodeInvalidArgument, "dispatch",
			fmt.Errorf("%w: unknown op %q", domain.ErrInvalidArgument, req.Op))
	}

	if err != nil {
		s.log.Warn("request failed", zap.Uint64("id", req.ID), zap.String("op", req.Op), zap.Error(err))
		return client.Response{ID: req.ID, Error: client.NewWireError(err)}
	}
	return client.Response{ID: req.ID, OK: true, Data: data}
}

func (s *Server) backend(modelID string) (domain.EmbeddingModel, driven.EmbeddingBackend, error) {
	model, ok := domain.LookupEmbeddingModel(modelID)
	if !ok {
		return model, nil, domain.NewError(domain.CodeInvalidArgument, "resolve model",
			fmt.Errorf("%w: unsupported model %q", domain.ErrInvalidArgument, modelID))
	}
	b, ok := s.backends[model.Provider]
	if !ok || b == nil {
		return model, nil, domain.NewError(domain.CodeModelNotReady, "resolve model",
			fmt.Errorf("%w: %s backend is not configured", domain.ErrModelNotReady, model.Provider))
	}
	return model, b, nil
}

func (s *Server) encode(ctx context.Context, modelID string, texts []string) (*client.EncodeResult, error) {
	if len(texts) > domain.MaxEmbedBatch {
		return nil, domain.NewError(domain.CodeInvalidArgument, "encode",
			fmt.Errorf("%w: batch of %d exceeds %d", domain.ErrInvalidArgument, len(texts), domain.MaxEmbedBatch))
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, domain.NewError(domain.CodeInvalidArgument, "encode",
				fmt.Errorf("%w: text %d is empty", domain.ErrInvalidArgument, i))
		}
	}

	model, b, err := s.backend(modelID)
	if err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return &client.EncodeResult{Vectors: [][]float32{}}, nil
	}

	vectors, err := b.Embed(ctx, model.ID, texts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", model.ID, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%s returned %d vectors for %d texts", model.ID, len(vectors), len(texts))
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim || dim == 0 {
			return nil, fmt.Errorf("%s returned inconsistent dimension at %d", model.ID, i)
		}
	}
	return &client.EncodeResult{Dimension: dim, Vectors: vectors}, nil
}

func (s *Server) ping(ctx context.Context, modelID string) error {
	_, b, err := s.backend(modelID)
	if err != nil {
		return err
	}
	if err := b.Ping(ctx); err != nil {
		return domain.NewError(domain.CodeModelNotReady, "ping", fmt.Errorf("%w: %v", domain.ErrModelNotReady, err))
	}
	return nil
}
