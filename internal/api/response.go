package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sungwon/newsletter-dispatch/internal/logger"
	"github.com/sungwon/newsletter-dispatch/internal/newsletter"
)

// errorBody is the shape of every non-2xx JSON response.
type errorBody struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// clientErrors are service errors whose message is safe to show verbatim.
var clientErrors = []struct {
	target error
	status int
}{
	{newsletter.ErrAlreadySent, http.StatusBadRequest},
	{newsletter.ErrNotFound, http.StatusNotFound},
	{newsletter.ErrConflict, http.StatusConflict},
}

// respondJSON with nil data writes only the status line and Content-Type.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorBody{Error: message})
}

func respondValidationErrors(w http.ResponseWriter, details []string) {
	respondJSON(w, http.StatusBadRequest, errorBody{Error: "validation_failed", Details: details})
}

// respondServiceError translates a newsletter.Service error. Anything not
// recognised is logged and hidden behind a 500.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, newsletter.ErrValidation) {
		respondValidationErrors(w, []string{validationDetail(err)})
		return
	}
	for _, ce := range clientErrors {
		if errors.Is(err, ce.target) {
			respondError(w, ce.status, err.Error())
			return
		}
	}

	log := logger.FromContext(r.Context())
	if errors.Is(err, newsletter.ErrQueueUnavailable) {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("dispatch queue unavailable")
		w.Header().Set("Retry-After", "30")
		respondError(w, http.StatusServiceUnavailable, "dispatch queue unavailable")
		return
	}
	log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	respondError(w, http.StatusInternalServerError, "internal server error")
}
