package cli

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/quill/internal/core/domain"
)

func TestArticleCmds_Use(t *testing.T) {
	assert.Equal(t, "put <id> [file]", putCmd.Use)
	assert.Equal(t, "delete <id>", deleteCmd.Use)
	assert.Equal(t, "show <id>", showCmd.Use)
	assert.Equal(t, "list", listCmd.Use)
}

func TestPutCmd_FromFile(t *testing.T) {
	ts := setupTestServices(t)

	file := filepath.Join(t.TempDir(), "ch1.md")
	require.NoError(t, os.WriteFile(file, []byte("# One\n\nThe harbor at dusk."), 0600))

	out, err := execute(t, "put", "chapters/01.md", file)

	require.NoError(t, err)
	content, ok := ts.articles.content("chapters/01.md")
	require.True(t, ok)
	assert.Equal(t, "# One\n\nThe harbor at dusk.", content)
	assert.Contains(t, out, "Stored chapters/01.md")
	assert.Contains(t, out, "Indexed 1")
	assert.Equal(t, 1, ts.index.waits)
}

func TestPutCmd_FromStdin(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"file omitted", []string{"put", "notes.md"}},
		{"dash", []string{"put", "notes.md", "-"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := setupTestServices(t)
			rootCmd.SetIn(strings.NewReader("from stdin"))

			_, err := execute(t, tt.args...)

			require.NoError(t, err)
			content, ok := ts.articles.content("notes.md")
			require.True(t, ok)
			assert.Equal(t, "from stdin", content)
		})
	}
}

func TestPutCmd_NoWait(t *testing.T) {
	ts := setupTestServices(t)
	rootCmd.SetIn(strings.NewReader("text"))

	out, err := execute(t, "put", "a.md", "--no-wait")

	require.NoError(t, err)
	assert.Zero(t, ts.index.waits)
	assert.NotContains(t, out, "Indexed")
}

func TestPutCmd_ReportsFailures(t *testing.T) {
	ts := setupTestServices(t)
	ts.index.failWith = "embedding: worker exited"
	rootCmd.SetIn(strings.NewReader("text"))

	out, err := execute(t, "put", "a.md")

	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 0, failed 1 (last error: embedding: worker exited)")
}

func TestPutCmd_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		putErr  error
		wantErr string
	}{
		{"no args", []string{"put"}, nil, "accepts between 1 and 2 arg(s)"},
		{"missing file", []string{"put", "a.md", "/does/not/exist.md"}, nil, "reading /does/not/exist.md"},
		{"service error", []string{"put", "a.md", "-"}, domain.NewError(domain.CodeInvalidArgument, "put", errors.New("empty id")), "put failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := setupTestServices(t)
			ts.articles.err = tt.putErr
			rootCmd.SetIn(strings.NewReader("text"))

			_, err := execute(t, tt.args...)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDeleteCmd(t *testing.T) {
	ts := setupTestServices(t)
	ts.articles.articles["a.md"] = "text"

	out, err := execute(t, "delete", "a.md")

	require.NoError(t, err)
	assert.Equal(t, []string{"a.md"}, ts.articles.deleted)
	assert.Contains(t, out, "Deleted a.md")
}

func TestShowCmd(t *testing.T) {
	ts := setupTestServices(t)
	ts.articles.articles["a.md"] = "First paragraph.\n\nSecond paragraph."
	ts.articles.chunks["a.md"] = []domain.Chunk{
		{ID: "c0", ArticleID: "a.md", Index: 0, Content: "First paragraph."},
		{ID: "c1", ArticleID: "a.md", Index: 1, Content: "Second paragraph."},
	}

	out, err := execute(t, "show", "a.md")

	require.NoError(t, err)
	assert.Contains(t, out, "Second paragraph.")
	assert.Contains(t, out, "Chunks (2)")
	assert.Contains(t, out, "[1] c1")
}

func TestShowCmd_NotFound(t *testing.T) {
	setupTestServices(t)

	_, err := execute(t, "show", "missing.md")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListCmd(t *testing.T) {
	tests := []struct {
		name     string
		articles map[string]string
		want     []string
	}{
		{"empty", nil, []string{"No articles."}},
		{"sorted ids", map[string]string{"b.md": "b", "a.md": "a"}, []string{"a.md\nb.md"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := setupTestServices(t)
			for id, c := range tt.articles {
				ts.articles.articles[id] = c
			}

			out, err := execute(t, "list")

			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
		})
	}
}
