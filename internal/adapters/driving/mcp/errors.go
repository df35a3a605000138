// Package mcp provides an MCP (Model Context Protocol) server adapter for quill.
// It lets AI assistants pull bounded story context through the retrieve tool.
package mcp

import "errors"

// ErrMissingRetrievalService is returned when the retrieval service is not provided.
var ErrMissingRetrievalService = errors.New("mcp: retrieval service is required")
