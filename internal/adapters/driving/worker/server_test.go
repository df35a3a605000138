package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	client "github.com/custodia-labs/quill/internal/adapters/driven/embedding/worker"
	"github.com/custodia-labs/quill/internal/core/domain"
	"github.com/custodia-labs/quill/internal/core/ports/driven"
)

type stubBackend struct {
	vectors [][]float32
	err     error
	pingErr error
}

func (s *stubBackend) Embed(_ context.Context, _ string, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.vectors != nil {
		return s.vectors, nil
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 2}
	}
	return out, nil
}

func (s *stubBackend) Ping(context.Context) error { return s.pingErr }

func newServer(b driven.EmbeddingBackend) *Server {
	return NewServer(map[domain.AIProvider]driven.EmbeddingBackend{domain.AIProviderLocal: b}, nil)
}

func TestServer_Handle(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		backend  *stubBackend
		req      client.Request
		wantOK   bool
		wantCode domain.Code
	}{
		{"encode", &stubBackend{}, client.Request{ID: 1, Op: client.OpEncode, Model: "hash-384", Texts: []string{"a", "b"}}, true, ""},
		{"unknown model", &stubBackend{}, client.Request{ID: 2, Op: client.OpEncode, Model: "gpt-9", Texts: []string{"a"}}, false, domain.CodeInvalidArgument},
		{"backend missing", &stubBackend{}, client.Request{ID: 3, Op: client.OpEncode, Model: "all-minilm", Texts: []string{"a"}}, false, domain.CodeModelNotReady},
		{"empty text", &stubBackend{}, client.Request{ID: 4, Op: client.OpEncode, Model: "hash-384", Texts: []string{""}}, false, domain.CodeInvalidArgument},
		{"backend down", &stubBackend{err: domain.ErrModelNotReady}, client.Request{ID: 5, Op: client.OpEncode, Model: "hash-384", Texts: []string{"a"}}, false, domain.CodeModelNotReady},
		{"ragged vectors", &stubBackend{vectors: [][]float32{{1}, {1, 2}}}, client.Request{ID: 6, Op: client.OpEncode, Model: "hash-384", Texts: []string{"a", "b"}}, false, domain.CodeInternal},
		{"ping", &stubBackend{}, client.Request{ID: 7, Op: client.OpPing, Model: "hash-384"}, true, ""},
		{"ping down", &stubBackend{pingErr: errors.New("refused")}, client.Request{ID: 8, Op: client.OpPing, Model: "hash-384"}, false, domain.CodeModelNotReady},
		{"unknown op", &stubBackend{}, client.Request{ID: 9, Op: "train"}, false, domain.CodeInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := newServer(tt.backend).Handle(ctx, tt.req)
			assert.Equal(t, tt.req.ID, resp.ID)
			assert.Equal(t, tt.wantOK, resp.OK)
			if tt.wantOK {
				assert.Nil(t, resp.Error)
				return
			}
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestServer_EncodeDimension(t *testing.T) {
	resp := newServer(&stubBackend{}).Handle(context.Background(),
		client.Request{ID: 1, Op: client.OpEncode, Model: "hash-384", Texts: []string{"a", "b"}})
	require.True(t, resp.OK)
	require.NotNil(t, resp.Data)
	assert.Equal(t, 2, resp.Data.Dimension)
	assert.Len(t, resp.Data.Vectors, 2)
}

func TestServer_ServeLoop(t *testing.T) {
	var in bytes.Buffer
	enc := json.NewEncoder(&in)
	require.NoError(t, enc.Encode(client.Request{ID: 1, Op: client.OpEncode, Model: "hash-384", Texts: []string{"x"}}))
	require.NoError(t, enc.Encode(client.Request{ID: 2, Op: client.OpPing, Model: "hash-384"}))

	var out bytes.Buffer
	require.NoError(t, newServer(&stubBackend{}).Serve(context.Background(), &in, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)

	var first, second client.Response
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, uint64(1), first.ID)
	assert.True(t, first.OK)
	assert.Equal(t, uint64(2), second.ID)
}

func TestServer_MalformedInput(t *testing.T) {
	err := newServer(&stubBackend{}).Serve(context.Background(), strings.NewReader("{not json\n"), &bytes.Buffer{})
	assert.Error(t, err)
}

// The real client and server speak the same protocol end to end.
func TestServer_WithClient(t *testing.T) {
	srv := NewServer(NewBackends(BackendConfig{}), nil)
	c, err := client.NewClient(client.Config{
		Spawner: &client.FuncSpawner{Serve: srv.Serve},
		Timeout: 10 * time.Second,
	})
	require.NoError(t, err)
	defer c.Close()

	out, err := c.Encode(context.Background(), []string{"harbour light", "harbour light"}, "hash-384")
	require.NoError(t, err)
	assert.Equal(t, 384, out.Dimension)
	assert.Equal(t, out.Vectors[0], out.Vectors[1])

	_, err = c.Encode(context.Background(), []string{"x"}, "text-embedding-3-small")
	assert.Equal(t, domain.CodeModelNotReady, domain.CodeOf(err))
}

func TestNewBackends(t *testing.T) {
	b := NewBackends(BackendConfig{})
	assert.Contains(t, b, domain.AIProviderLocal)
	assert.Contains(t, b, domain.AIProviderOllama)
	assert.NotContains(t, b, domain.AIProviderOpenAI)

	b = NewBackends(BackendConfig{OpenAIAPIKey: "sk-test"})
	assert.Contains(t, b, domain.AIProviderOpenAI)
}
