package services

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by the stores when a lookup matches nothing.
var ErrNotFound = errors.New("record not found")

// ErrorKind classifies failures surfaced to API clients.
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindNotFound
	KindConflict
	KindUpstream
	KindUnauthorized
	KindForbidden
	KindTooManyRequests
)

// AppError is a client-facing failure. Extra is merged into the JSON body.
type AppError struct {
	Kind    ErrorKind
	Message string
	Extra   map[string]any
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// Status maps the error kind to an HTTP status code.
func (e *AppError) Status() int {
	switch e.Kind {
	case KindValidation, KindConflict:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// With attaches an extra response field.
func (e *AppError) With(key string, value any) *AppError {
	if e.Extra == nil {
		e.Extra = make(map[string]any)
	}
	e.Extra[key] = value
	return e
}

func Validation(message string) *AppError {
	return &AppError{Kind: KindValidation, Message: message}
}

func NotFound(message string) *AppError {
	return &AppError{Kind: KindNotFound, Message: message}
}

func Conflict(message string) *AppError {
	return &AppError{Kind: KindConflict, Message: message}
}

func Upstream(message string, err error) *AppError {
	return &AppError{Kind: KindUpstream, Message: message, Err: err}
}

func Unauthorized(message string) *AppError {
	return &AppError{Kind: KindUnauthorized, Message: message}
}

func Forbidden(message string) *AppError {
	return &AppError{Kind: KindForbidden, Message: message}
}

func TooManyRequests(message string) *AppError {
	return &AppError{Kind: KindTooManyRequests, Message: message}
}

// WriteError renders err as JSON. Anything that is not an AppError is
// logged and reported as a generic server error.
func WriteError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		log.Printf("[ERROR] Unhandled error: %v", err)
		WriteJSON(w, http.StatusInternalServerError, map[string]any{"message": "Server error"})
		return
	}

	if appErr.Kind == KindUpstream && appErr.Err != nil {
		log.Printf("[ERROR] Upstream failure: %v", appErr.Err)
	}

	body := make(map[string]any, len(appErr.Extra)+1)
	for k, v := range appErr.Extra {
		body[k] = v
	}
	body["message"] = appErr.Message
	WriteJSON(w, appErr.Status(), body)
}

// WriteJSON writes v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
