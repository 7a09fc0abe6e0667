// Package respond renders the API's success/error JSON envelope
// (spec §6): {success, data, meta} on success, {success: false, error}
// on failure.
package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/altus4/core/internal/apperrors"
	"github.com/altus4/core/internal/logging"
	"github.com/altus4/core/internal/version"
)

// Meta accompanies every successful response.
type Meta struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
	Version   string    `json:"version"`
}

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
	Error   *errorBody  `json:"error,omitempty"`
}

type errorBody struct {
	Code        apperrors.Code `json:"code"`
	Message     string         `json:"message"`
	Suggestions []string       `json:"suggestions,omitempty"`
}

// JSON writes data as a successful envelope with status.
func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{
		Success: true,
		Data:    data,
		Meta: &Meta{
			Timestamp: time.Now(),
			RequestID: requestID(r),
			Version:   version.Get().Short(),
		},
	})
}

// Error writes err as a failure envelope, mapping apperrors taxonomy
// errors to their declared HTTP status and falling back to 500 for
// anything else.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.Internal(err)
	}
	logging.LogError(slog.Default(), r.Context(), appErr)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Status)
	_ = json.NewEncoder(w).Encode(envelope{
		Success: false,
		Error: &errorBody{
			Code:        appErr.Code,
			Message:     appErr.Message,
			Suggestions: appErr.Suggestions,
		},
	})
}

func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return ""
}
