package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/custodia-labs/quill/internal/core/domain"
)

const maxArticleBytes = 8 << 20

// retrieveRequest is the body of POST /v1/retrieve.
type retrieveRequest struct {
	Query string `json:"query"`
	domain.Budget
}

// articleRequest is the JSON body of PUT /v1/articles/{id}.
type articleRequest struct {
	Content string `json:"content"`
}

type articleResponse struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type acceptedResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type rebuildRequest struct {
	Collection string `json:"collection"`
}

type rebuildResponse struct {
	Collections []domain.Collection `json:"collections"`
	Enqueued    int                 `json:"enqueued"`
}

type healthResponse struct {
	Status string              `json:"status"`
	Index  domain.IndexerState `json:"index,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.ports.Index != nil {
		resp.Index = s.ports.Index.Status().State
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := s.ports.Retrieval.Retrieve(r.Context(), req.Query, req.Budget)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	if s.ports.Index == nil {
		writeError(w, http.StatusNotImplemented, codeNotImplemented, "indexer not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.ports.Index.Status())
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if s.ports.Index == nil {
		writeError(w, http.StatusNotImplemented, codeNotImplemented, "indexer not configured")
		return
	}

	var req rebuildRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	targets := domain.Collections
	if req.Collection != "" {
		targets = []domain.Collection{domain.Collection(req.Collection)}
	}

	resp := rebuildResponse{Collections: targets}
	for _, c := range targets {
		n, err := s.ports.Index.Rebuild(r.Context(), c)
		if err != nil {
			s.handleDomainError(w, err)
			return
		}
		resp.Enqueued = n
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) handleListArticles(w http.ResponseWriter, r *http.Request) {
	if s.ports.Articles == nil {
		writeError(w, http.StatusNotImplemented, codeNotImplemented, "article store not configured")
		return
	}
	ids, err := s.ports.Articles.List(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"ids": ids})
}

func (s *Server) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	if s.ports.Articles == nil {
		writeError(w, http.StatusNotImplemented, codeNotImplemented, "article store not configured")
		return
	}
	id, ok := articleID(w, r)
	if !ok {
		return
	}
	article, err := s.ports.Articles.Get(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, articleResponse{
		ID:        article.ID,
		Content:   article.Content,
		UpdatedAt: article.UpdatedAt,
	})
}

// handlePutArticle accepts either {"content": "..."} or the raw text as body.
func (s *Server) handlePutArticle(w http.ResponseWriter, r *http.Request) {
	if s.ports.Articles == nil {
		writeError(w, http.StatusNotImplemented, codeNotImplemented, "article store not configured")
		return
	}
	id, ok := articleID(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxArticleBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, codeBadRequest, err.Error())
		return
	}

	content := string(body)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req articleRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
			return
		}
		content = req.Content
	}

	if err := s.ports.Articles.Put(r.Context(), id, content); err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{ID: id, Status: "queued"})
}

func (s *Server) handleDeleteArticle(w http.ResponseWriter, r *http.Request) {
	if s.ports.Articles == nil {
		writeError(w, http.StatusNotImplemented, codeNotImplemented, "article store not configured")
		return
	}
	id, ok := articleID(w, r)
	if !ok {
		return
	}
	if err := s.ports.Articles.Delete(r.Context(), id); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleIndexArticle serves POST /v1/articles/{id}/index.
func (s *Server) handleIndexArticle(w http.ResponseWriter, r *http.Request) {
	if s.ports.Index == nil {
		writeError(w, http.StatusNotImplemented, codeNotImplemented, "indexer not configured")
		return
	}
	id, ok := articleID(w, r)
	if !ok {
		return
	}
	id, found := strings.CutSuffix(id, "/index")
	if !found || id == "" {
		writeError(w, http.StatusNotFound, string(domain.CodeNotFound), "unknown route")
		return
	}
	s.ports.Index.EnqueueArticleForIndexing(id)
	writeJSON(w, http.StatusAccepted, acceptedResponse{ID: id, Status: "queued"})
}

// articleID decodes the wildcard tail of an article route.
func articleID(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "*")
	id, err := url.PathUnescape(raw)
	if err != nil || id == "" {
		writeError(w, http.StatusBadRequest, string(domain.CodeInvalidArgument), "article id is required")
		return "", false
	}
	return id, true
}
