package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/quill/internal/core/domain"
)

func TestServer_handleRetrieve(t *testing.T) {
	ctx := context.Background()

	t.Run("returns cards and passages", func(t *testing.T) {
		mockRetrieval := &mockRetrievalService{
			result: &domain.RetrievalResult{
				Characters: []domain.CardHit{{
					ID: "character:Ada", Type: domain.EntityCharacter, Name: "Ada",
					Aliases: []string{"Countess"}, Content: "Ada\n\nA mathematician.",
					ArticleID: "ada.md", Score: 1, MatchedBy: domain.MatchExact,
				}},
				Settings: []domain.CardHit{},
				Passages: []domain.Passage{{
					ChunkID: "c1", ArticleID: "notes.md", Index: 2,
					Content: "She kept notes.", Score: 0.8, Source: domain.SourceSemantic,
				}},
				Budget: domain.BudgetReport{UsedChars: 36, NextCursor: "1"},
			},
		}

		server, err := NewServer(&Ports{Retrieval: mockRetrieval})
		require.NoError(t, err)

		input := RetrieveInput{Query: "@ada", MaxChars: 500, MaxChunks: 2, Cursor: "0", Threshold: 0.5}
		_, output, err := server.handleRetrieve(ctx, nil, input)

		require.NoError(t, err)
		assert.Equal(t, "@ada", mockRetrieval.lastQuery)
		assert.Equal(t, domain.Budget{MaxChars: 500, MaxChunks: 2, Cursor: "0", Threshold: 0.5}, mockRetrieval.lastBudget)

		require.Len(t, output.Characters, 1)
		assert.Equal(t, "Ada", output.Characters[0].Name)
		assert.Equal(t, []string{"Countess"}, output.Characters[0].Aliases)
		assert.Equal(t, "exact", output.Characters[0].MatchedBy)
		assert.Empty(t, output.Settings)
		require.Len(t, output.Passages, 1)
		assert.Equal(t, "notes.md", output.Passages[0].ArticleID)
		assert.Equal(t, 2, output.Passages[0].Index)
		assert.Equal(t, "semantic", output.Passages[0].Source)
		assert.Equal(t, 36, output.UsedChars)
		assert.Equal(t, "1", output.NextCursor)
	})

	t.Run("empty result has non-nil lists", func(t *testing.T) {
		server, err := NewServer(&Ports{Retrieval: &mockRetrievalService{}})
		require.NoError(t, err)

		_, output, err := server.handleRetrieve(ctx, nil, RetrieveInput{Query: "q"})
		require.NoError(t, err)
		assert.NotNil(t, output.Characters)
		assert.NotNil(t, output.Settings)
		assert.NotNil(t, output.Passages)
	})

	t.Run("returns error on retrieval failure", func(t *testing.T) {
		mockRetrieval := &mockRetrievalService{
			err: errors.New("retrieval failed"),
		}
		server, err := NewServer(&Ports{Retrieval: mockRetrieval})
		require.NoError(t, err)

		_, _, err = server.handleRetrieve(ctx, nil, RetrieveInput{Query: "q"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "retrieval failed")
	})
}

func TestServer_handleStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("reports indexer status", func(t *testing.T) {
		index := &mockIndexService{status: domain.IndexStatus{State: domain.IndexerDraining, Pending: 3}}
		server, err := NewServer(&Ports{Retrieval: &mockRetrievalService{}, Index: index})
		require.NoError(t, err)

		_, status, err := server.handleStatus(ctx, nil, StatusInput{})
		require.NoError(t, err)
		assert.Equal(t, domain.IndexerDraining, status.State)
		assert.Equal(t, 3, status.Pending)
	})

	t.Run("errors without index service", func(t *testing.T) {
		server, err := NewServer(&Ports{Retrieval: &mockRetrievalService{}})
		require.NoError(t, err)

		_, _, err = server.handleStatus(ctx, nil, StatusInput{})
		assert.Error(t, err)
	})
}
