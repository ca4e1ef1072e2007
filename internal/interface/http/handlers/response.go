package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Blackbeard96/summer-games/internal/domain/shared"
	"github.com/Blackbeard96/summer-games/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

// Response is the JSON envelope of every API response.
type Response struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *Meta     `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Meta contains response metadata.
type Meta struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
	Page      int       `json:"page,omitempty"`
	PageSize  int       `json:"page_size,omitempty"`
	Count     *int      `json:"count,omitempty"`
}

// WriteJSON writes data in a success envelope. meta may be nil.
func WriteJSON(w http.ResponseWriter, r *http.Request, status int, data any, meta *Meta) {
	if meta == nil {
		meta = &Meta{}
	}
	meta.Timestamp = time.Now().UTC()
	meta.RequestID = RequestIDFrom(r.Context())

	write(w, status, Response{
		Success: status >= 200 && status < 300,
		Data:    data,
		Meta:    meta,
	})
}

// WriteError writes an error envelope.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	write(w, status, Response{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
		Meta: &Meta{
			Timestamp: time.Now().UTC(),
			RequestID: RequestIDFrom(r.Context()),
		},
	})
}

// WriteDomainError maps err to a status code and writes it. Server-side
// failures are logged and hidden from the client.
func WriteDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := StatusFor(err)
	message := http.StatusText(status)

	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", logger.Err(err))
	} else {
		var de *shared.DomainError
		if errors.As(err, &de) {
			message = de.Message
		} else {
			message = err.Error()
		}
	}
	WriteError(w, r, status, code, message)
}

func write(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// StatusFor maps an error kind to an HTTP status and an error code.
func StatusFor(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case shared.IsValidation(err):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, shared.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case shared.IsAlreadyExists(err):
		return http.StatusConflict, "already_exists"
	case shared.IsStateConflict(err):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, shared.ErrConcurrentModification):
		return http.StatusConflict, "conflict"
	case errors.Is(err, shared.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "service_unavailable"
	case errors.Is(err, shared.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
