package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/JonMunkholm/courseimport/internal/core"
	"github.com/JonMunkholm/courseimport/internal/logging"
	"github.com/JonMunkholm/courseimport/internal/store"
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor picks the HTTP status for an error returned by the pipeline.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrImportInProgress):
		return http.StatusTooManyRequests
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case core.IsInputError(err):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err with the request ID and writes a mapped message.
// Unknown errors are not echoed to the client.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := core.MapError(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	)

	detail := msg.Message
	if core.IsInputError(err) || errors.Is(err, store.ErrNotFound) || errors.Is(err, core.ErrImportInProgress) {
		detail = err.Error()
	}
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "5")
	}
	message := msg.Message
	if core.IsUserFacing(err) {
		message = core.FormatUserError(err)
	}
	writeJSON(w, status, ErrorResponse{
		Error:   detail,
		Message: message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// writeJSON encodes v as the response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.OrDefault(nil).Error("json encode error", "error", err)
	}
}
