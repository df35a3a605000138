package chunker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/quill/internal/core/domain"
)

func TestNew(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		p := New()
		assert.False(t, p.keepHeadings)
		assert.Equal(t, 0, p.minLength)
	})

	t.Run("custom options", func(t *testing.T) {
		p := New(WithKeepHeadings(true), WithMinLength(5))
		assert.True(t, p.keepHeadings)
		assert.Equal(t, 5, p.minLength)
	})

	t.Run("negative min length ignored", func(t *testing.T) {
		p := New(WithMinLength(-1))
		assert.Equal(t, 0, p.minLength)
	})
}

func TestProcessor_Name(t *testing.T) {
	assert.Equal(t, "chunker", New().Name())
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			name:    "empty content",
			content: "",
			want:    []string{},
		},
		{
			name:    "heading and two paragraphs",
			content: "# Title\n\nPara one.\n\nPara two.",
			want:    []string{"Para one.", "Para two."},
		},
		{
			name:    "front matter stripped",
			content: "---\ntype: character\nname: Ada\n---\nFirst.\n\nSecond.",
			want:    []string{"First.", "Second."},
		},
		{
			name:    "several blank lines and whitespace-only lines",
			content: "One.\n\n\n   \n\nTwo.",
			want:    []string{"One.", "Two."},
		},
		{
			name:    "trailing whitespace before newline collapsed",
			content: "Line a.   \nLine b.\t\n\nNext.",
			want:    []string{"Line a.\nLine b.", "Next."},
		},
		{
			name:    "crlf input",
			content: "One.\r\n\r\nTwo.\r\n",
			want:    []string{"One.", "Two."},
		},
		{
			name:    "heading inside a paragraph is kept",
			content: "## Scene\nThe rain fell.",
			want:    []string{"## Scene\nThe rain fell."},
		},
		{
			name:    "hashtag is not a heading",
			content: "#hashtag",
			want:    []string{"#hashtag"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, New().Split(tt.content))
		})
	}
}

func TestSplit_KeepHeadings(t *testing.T) {
	p := New(WithKeepHeadings(true))
	assert.Equal(t, []string{"# Title", "Body."}, p.Split("# Title\n\nBody."))
}

func TestSplit_MinLength(t *testing.T) {
	p := New(WithMinLength(4))
	assert.Equal(t, []string{"Long enough."}, p.Split("ok\n\nLong enough."))
}

func TestSplit_Deterministic(t *testing.T) {
	content := "A.\n\nB.\n\nC."
	assert.Equal(t, New().Split(content), New().Split(content))
}

func TestProcessor_Process_StableIDs(t *testing.T) {
	p := New()
	ctx := context.Background()

	first := &domain.Derived{}
	require.NoError(t, p.Process(ctx, &domain.Article{
		ID:      "a.md",
		Content: "# Title\n\nPara one.\n\nPara two.",
	}, first))
	require.Len(t, first.Chunks, 2)
	assert.Equal(t, "Para one.", first.Chunks[0].Content)
	assert.Equal(t, "Para two.", first.Chunks[1].Content)
	assert.Equal(t, 0, first.Chunks[0].Index)
	assert.Equal(t, 1, first.Chunks[1].Index)
	assert.Equal(t, "a.md", first.Chunks[1].ArticleID)

	second := &domain.Derived{}
	require.NoError(t, p.Process(ctx, &domain.Article{
		ID:      "a.md",
		Content: "Para one.\n\nPara two.\n\nPara three.",
	}, second))
	require.Len(t, second.Chunks, 3)
	assert.Equal(t, first.Chunks[0].ID, second.Chunks[0].ID)
	assert.Equal(t, first.Chunks[1].ID, second.Chunks[1].ID)
	assert.NotEqual(t, first.Chunks[1].ID, second.Chunks[2].ID)
}

func TestChunkID(t *testing.T) {
	id := ChunkID("a.md", 0, "text")

	assert.Equal(t, id, ChunkID("a.md", 0, "text"))
	assert.NotEqual(t, id, ChunkID("b.md", 0, "text"))
	assert.NotEqual(t, id, ChunkID("a.md", 1, "text"))
	assert.NotEqual(t, id, ChunkID("a.md", 0, "other"))
	assert.Len(t, id, 36)
}

func TestProcessor_Process_EmptyContent(t *testing.T) {
	derived := &domain.Derived{Chunks: []domain.Chunk{{ID: "stale"}}}

	err := New().Process(context.Background(), &domain.Article{ID: "x"}, derived)
	require.NoError(t, err)
	assert.Empty(t, derived.Chunks)
}
