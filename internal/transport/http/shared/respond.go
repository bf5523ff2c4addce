// Package shared holds response helpers used by every feature handler so
// the JSON envelopes stay consistent across the API.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	"diocese/pkg/apperrors"
)

// WriteJSON writes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError translates a domain error into the standard error envelope.
// Unknown errors become an opaque 500 so internals do not leak.
func WriteError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	message := "internal error"
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	WriteJSON(w, apperrors.ToHTTPStatus(code), map[string]string{
		"error":   string(code),
		"message": message,
	})
}
