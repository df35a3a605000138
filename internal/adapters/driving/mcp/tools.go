package mcp

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/quill/internal/core/domain"
)

// RetrieveInput is the input schema for the retrieve tool.
type RetrieveInput struct {
	Query         string  `json:"query" jsonschema:"the text to gather story context for; @name mentions select entity cards"`
	MaxChars      int     `json:"max_chars,omitempty" jsonschema:"total character budget across cards and passages (default 4000)"`
	MaxChunks     int     `json:"max_chunks,omitempty" jsonschema:"maximum number of passages (default 8)"`
	MaxCharacters int     `json:"max_characters,omitempty" jsonschema:"maximum number of character cards (default 5)"`
	MaxSettings   int     `json:"max_settings,omitempty" jsonschema:"maximum number of setting cards (default 5)"`
	Cursor        string  `json:"cursor,omitempty" jsonschema:"next_cursor from a previous call to fetch more passages"`
	Threshold     float64 `json:"threshold,omitempty" jsonschema:"similarity floor in (0,1]"`
}

// RetrieveOutput is the output schema for the retrieve tool.
type RetrieveOutput struct {
	Characters []CardOutput    `json:"characters"`
	Settings   []CardOutput    `json:"settings"`
	Passages   []PassageOutput `json:"passages"`
	UsedChars  int             `json:"used_chars"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// CardOutput represents a single entity card.
type CardOutput struct {
	Name      string   `json:"name"`
	Aliases   []string `json:"aliases,omitempty"`
	Content   string   `json:"content"`
	ArticleID string   `json:"article_id"`
	Score     float64  `json:"score"`
	MatchedBy string   `json:"matched_by"`
}

// PassageOutput represents a single passage.
type PassageOutput struct {
	ArticleID string  `json:"article_id"`
	Index     int     `json:"index"`
	Content   string  `json:"content"`
	Score     float64 `json:"score"`
	Source    string  `json:"source"`
}

// StatusInput is the (empty) input schema for the index_status tool.
type StatusInput struct{}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "retrieve",
		Description: "Gather character cards, setting cards and passages relevant to a query within a character budget",
	}, s.handleRetrieve)

	if s.ports.Index != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "index_status",
			Description: "Report whether the indexer is idle and how many articles are pending",
		}, s.handleStatus)
	}
}

// handleRetrieve handles the retrieve tool invocation.
func (s *Server) handleRetrieve(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RetrieveInput,
) (*mcp.CallToolResult, RetrieveOutput, error) {
	budget := domain.Budget{
		MaxChars:      input.MaxChars,
		MaxChunks:     input.MaxChunks,
		MaxCharacters: input.MaxCharacters,
		MaxSettings:   input.MaxSettings,
		Cursor:        input.Cursor,
		Threshold:     input.Threshold,
	}

	result, err := s.ports.Retrieval.Retrieve(ctx, input.Query, budget)
	if err != nil {
		return nil, RetrieveOutput{}, err
	}

	output := RetrieveOutput{
		Characters: cardOutputs(result.Characters),
		Settings:   cardOutputs(result.Settings),
		Passages:   make([]PassageOutput, len(result.Passages)),
		UsedChars:  result.Budget.UsedChars,
		NextCursor: result.Budget.NextCursor,
	}
	for i, p := range result.Passages {
		output.Passages[i] = PassageOutput{
			ArticleID: p.ArticleID,
			Index:     p.Index,
			Content:   p.Content,
			Score:     p.Score,
			Source:    string(p.Source),
		}
	}

	return nil, output, nil
}

func cardOutputs(cards []domain.CardHit) []CardOutput {
	out := make([]CardOutput, len(cards))
	for i, c := range cards {
		out[i] = CardOutput{
			Name:      c.Name,
			Aliases:   c.Aliases,
			Content:   c.Content,
			ArticleID: c.ArticleID,
			Score:     c.Score,
			MatchedBy: string(c.MatchedBy),
		}
	}
	return out
}

// handleStatus handles the index_status tool invocation.
func (s *Server) handleStatus(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ StatusInput,
) (*mcp.CallToolResult, domain.IndexStatus, error) {
	if s.ports.Index == nil {
		return nil, domain.IndexStatus{}, errors.New("index service not configured")
	}
	return nil, s.ports.Index.Status(), nil
}
