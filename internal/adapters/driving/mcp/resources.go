package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/quill/internal/core/domain"
)

const (
	uriScheme = "quill://"

	articlesURI   = uriScheme + "articles"
	articlePrefix = uriScheme + "articles/"
	chunksPrefix  = uriScheme + "chunks/"
	mimeJSON      = "application/json"
	mimeMarkdown  = "text/markdown"
)

// ChunkOutput is one entry of the quill://chunks/{id} resource.
type ChunkOutput struct {
	ID      string `json:"id"`
	Index   int    `json:"index"`
	Content string `json:"content"`
}

// registerResources exposes the article store. Nothing is registered
// without an article service.
func (s *Server) registerResources() {
	if s.ports.Articles == nil {
		return
	}

	s.server.AddResource(&mcp.Resource{
		URI:         articlesURI,
		Name:        "articles",
		Description: "IDs of every stored article",
		MIMEType:    mimeJSON,
	}, s.handleArticlesResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: articlePrefix + "{articleId}",
		Name:        "article-content",
		Description: "Markdown content of one article",
		MIMEType:    mimeMarkdown,
	}, s.handleArticleResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: chunksPrefix + "{articleId}",
		Name:        "article-chunks",
		Description: "Indexed paragraph chunks of one article, in order",
		MIMEType:    mimeJSON,
	}, s.handleChunksResource)
}

func (s *Server) handleArticlesResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Articles == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	ids, err := s.ports.Articles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing articles: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return jsonResult(req.Params.URI, ids)
}

func (s *Server) handleArticleResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	id := resourceID(uri, articlePrefix)
	if s.ports.Articles == nil || id == "" {
		return nil, mcp.ResourceNotFoundError(uri)
	}

	article, err := s.ports.Articles.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(uri)
	}
	if err != nil {
		return nil, fmt.Errorf("getting article %s: %w", id, err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{URI: uri, MIMEType: mimeMarkdown, Text: article.Content}},
	}, nil
}

func (s *Server) handleChunksResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	id := resourceID(uri, chunksPrefix)
	if s.ports.Articles == nil || id == "" {
		return nil, mcp.ResourceNotFoundError(uri)
	}

	chunks, err := s.ports.Articles.Chunks(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("listing chunks of %s: %w", id, err)
	}
	out := make([]ChunkOutput, len(chunks))
	for i, c := range chunks {
		out[i] = ChunkOutput{ID: c.ID, Index: c.Index, Content: c.Content}
	}
	return jsonResult(uri, out)
}

func jsonResult(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{URI: uri, MIMEType: mimeJSON, Text: string(data)}},
	}, nil
}

// resourceID returns the article id after prefix. Ids may contain slashes
// and may arrive percent-encoded from template expansion.
func resourceID(uri, prefix string) string {
	raw, ok := strings.CutPrefix(uri, prefix)
	if !ok || raw == "" {
		return ""
	}
	id, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return id
}
