package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/quill/internal/core/domain"
)

func TestBackend_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)

		out := embedResponse{}
		for i := range req.Input {
			out.Embeddings = append(out.Embeddings, []float32{float32(i), 1})
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	b := New(Config{BaseURL: srv.URL})
	vecs, err := b.Embed(context.Background(), "nomic-embed-text", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {1, 1}}, vecs)
}

func TestBackend_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"model not pulled", http.StatusNotFound, domain.ErrModelNotReady},
		{"server error", http.StatusInternalServerError, domain.ErrModelNotReady},
		{"bad request", http.StatusBadRequest, domain.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			_, err := New(Config{BaseURL: srv.URL}).Embed(context.Background(), "all-minilm", []string{"x"})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBackend_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	b := New(Config{BaseURL: url})
	_, err := b.Embed(context.Background(), "all-minilm", []string{"x"})
	assert.ErrorIs(t, err, domain.ErrModelNotReady)
	assert.ErrorIs(t, b.Ping(context.Background()), domain.ErrModelNotReady)
}

func TestBackend_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	assert.NoError(t, New(Config{BaseURL: srv.URL}).Ping(context.Background()))
}

func TestCheckShape(t *testing.T) {
	tests := []struct {
		name    string
		vectors [][]float32
		want    int
		wantErr string
	}{
		{"ok", [][]float32{{1, 2}, {3, 4}}, 2, ""},
		{"empty batch", nil, 0, ""},
		{"count mismatch", [][]float32{{1}}, 2, "1 embeddings for 2 inputs"},
		{"empty vector", [][]float32{{}}, 1, "empty embedding"},
		{"mixed widths", [][]float32{{1, 2}, {3}}, 2, "mixed widths: 2 at 0, 1 at 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkShape(tt.vectors, tt.want)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
