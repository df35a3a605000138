package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/custodia-labs/quill/internal/core/domain"
)

const (
	codeBadRequest     = "BAD_REQUEST"
	codeUnauthorized   = "UNAUTHORIZED"
	codeNotImplemented = "NOT_IMPLEMENTED"
)

// errorResponse is the body of every non-2xx answer.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(code domain.Code) int {
	switch code {
	case domain.CodeInvalidArgument:
		return http.StatusBadRequest
	case domain.CodeConflict:
		return http.StatusConflict
	case domain.CodeTimeout:
		return http.StatusGatewayTimeout
	case domain.CodeModelNotReady:
		return http.StatusServiceUnavailable
	case domain.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	code := domain.CodeOf(err)
	status := statusFor(code)
	if status == http.StatusInternalServerError {
		s.logger.Error("internal error", zap.Error(err))
		writeError(w, status, string(domain.CodeInternal), "internal error")
		return
	}
	s.logger.Warn("domain error", zap.Error(err))
	writeError(w, status, string(code), err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
