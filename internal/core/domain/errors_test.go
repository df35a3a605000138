package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestErrors_Existence tests that all error variables exist and are not nil
func TestErrors_Existence(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrNotFound", ErrNotFound},
		{"ErrInvalidArgument", ErrInvalidArgument},
		{"ErrConflict", ErrConflict},
		{"ErrTimeout", ErrTimeout},
		{"ErrModelNotReady", ErrModelNotReady},
		{"ErrWorkerExited", ErrWorkerExited},
		{"ErrQuerySyntax", ErrQuerySyntax},
		{"ErrClosed", ErrClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, tt.err)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, ""},
		{"invalid argument", fmt.Errorf("encode: %w", ErrInvalidArgument), CodeInvalidArgument},
		{"conflict sentinel", ErrConflict, CodeConflict},
		{"conflict error", &ConflictError{Collection: CollectionChunks, Have: 384, Want: 768}, CodeConflict},
		{"timeout", fmt.Errorf("request 7: %w", ErrTimeout), CodeTimeout},
		{"model not ready", ErrModelNotReady, CodeModelNotReady},
		{"worker exited", ErrWorkerExited, CodeModelNotReady},
		{"not found", ErrNotFound, CodeNotFound},
		{"explicit code wins", NewError(CodeTimeout, "encode", errors.New("boom")), CodeTimeout},
		{"unknown", errors.New("disk on fire"), CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	err := NewError(CodeInvalidArgument, "encode", ErrInvalidArgument)

	assert.True(t, errors.Is(err, ErrInvalidArgument))
	assert.Equal(t, "encode: INVALID_ARGUMENT: invalid argument", err.Error())
}

func TestConflictError_NamesRecovery(t *testing.T) {
	err := &ConflictError{Collection: CollectionEntities, Have: 384, Want: 1536}

	assert.True(t, errors.Is(err, ErrConflict))
	assert.Contains(t, err.Error(), "rebuild")
	assert.Contains(t, err.Error(), "--collection entities")
	assert.Contains(t, err.Error(), "384")
	assert.Contains(t, err.Error(), "1536")
}
