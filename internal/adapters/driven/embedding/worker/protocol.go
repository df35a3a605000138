// Package worker is the client side of the embedding worker.
//
// Model inference runs in a separate execution unit, normally a child
// process started as `quill embed-worker`. The client and the worker
// exchange newline-delimited JSON over the child's stdin and stdout: the
// client sends Request values tagged with a monotonically increasing ID and
// the worker answers each with a Response carrying the same ID.
package worker

import (
	"errors"

	"github.com/custodia-labs/quill/internal/core/domain"
)

// Request operations.
const (
	OpEncode = "encode"
	OpPing   = "ping"
)

// Request is one client-to-worker message.
type Request struct {
	ID    uint64   `json:"id"`
	Op    string   `json:"op"`
	Model string   `json:"model,omitempty"`
	Texts []string `json:"texts,omitempty"`
}

// Response is the worker's answer to a Request.
type Response struct {
	ID    uint64        `json:"id"`
	OK    bool          `json:"ok"`
	Data  *EncodeResult `json:"data,omitempty"`
	Error *WireError    `json:"error,omitempty"`
}

// EncodeResult is the payload of a successful encode.
type EncodeResult struct {
	Dimension int         `json:"dimension"`
	Vectors   [][]float32 `json:"vectors"`
}

// WireError is an error as it crosses the process boundary.
type WireError struct {
	Code    domain.Code `json:"code"`
	Message string      `json:"message"`
}

// NewWireError classifies err for transport.
func NewWireError(err error) *WireError {
	return &WireError{Code: domain.CodeOf(err), Message: err.Error()}
}

// Err rebuilds a classified error on the client side.
func (e *WireError) Err(op string) error {
	sentinel := errors.New(e.Message)
	switch e.Code {
	case domain.CodeInvalidArgument:
		sentinel = errors.Join(domain.ErrInvalidArgument, sentinel)
	case domain.CodeModelNotReady:
		sentinel = errors.Join(domain.ErrModelNotReady, sentinel)
	case domain.CodeTimeout:
		sentinel = errors.Join(domain.ErrTimeout, sentinel)
	}
	code := e.Code
	if code == "" {
		code = domain.CodeInternal
	}
	return domain.NewError(code, op, sentinel)
}
