package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/haowjy/luminote-go"
	"github.com/haowjy/luminote-go/internal/requestid"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the API error body shared by every endpoint.
func writeError(w http.ResponseWriter, r *http.Request, status int, code luminote.ErrorCode, message string, details map[string]any) {
	writeJSON(w, status, luminote.APIError{
		Error:     http.StatusText(status),
		Code:      string(code),
		Message:   message,
		Details:   details,
		RequestID: requestid.FromContext(r.Context()),
	})
}

// writeErr maps err onto a status and error code.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var ve *luminote.ValidationError
	var te *luminote.TranslationError
	switch {
	case errors.As(err, &ve):
		writeError(w, r, http.StatusBadRequest, luminote.ErrorCodeValidation, ve.Reason,
			map[string]any{"field": ve.Field})
	case errors.As(err, &te):
		status := te.StatusCode
		if status == 0 {
			status = http.StatusInternalServerError
		}
		writeError(w, r, status, te.Code, te.Message, te.Details)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, r, http.StatusGatewayTimeout, luminote.ErrorCodeTimeout, "The provider did not respond in time", nil)
	default:
		writeError(w, r, http.StatusInternalServerError, luminote.ErrorCodeInternal, "An unexpected error occurred", nil)
	}
}
