package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/sungwon/newsletter-dispatch/internal/logger"
	"github.com/sungwon/newsletter-dispatch/internal/queue"
)

const (
	defaultDLQLimit = 50
	maxDLQLimit     = 500
)

// dlqReprocessRequest is the JSON body for POST /api/v1/dlq/reprocess.
type dlqReprocessRequest struct {
	MessageIDs []string `json:"message_ids" validate:"required,min=1,dive,required"`
}

// dlqReprocessResponse is the JSON response for a DLQ reprocess operation.
type dlqReprocessResponse struct {
	Reprocessed int `json:"reprocessed"`
	Total       int `json:"total"`
}

type dlqEntryResponse struct {
	EntryID       string    `json:"entry_id"`
	JobID         string    `json:"job_id"`
	ContentID     int64     `json:"content_id"`
	TopicID       int64     `json:"topic_id"`
	RetryCount    int       `json:"retry_count"`
	FailureReason string    `json:"failure_reason"`
	MovedAt       time.Time `json:"moved_at"`
}

// DLQListHandler handles GET /api/v1/dlq?limit=.
func DLQListHandler(dlq queue.DeadLetterQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultDLQLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > maxDLQLimit {
				respondError(w, http.StatusBadRequest, "limit must be between 1 and 500")
				return
			}
			limit = n
		}

		entries, err := dlq.List(r.Context(), limit)
		if err != nil {
			log := logger.FromContext(r.Context())
			log.Error().Err(err).Msg("dlq list failed")
			respondError(w, http.StatusInternalServerError, "list failed")
			return
		}

		resp := make([]dlqEntryResponse, 0, len(entries))
		for _, e := range entries {
			item := dlqEntryResponse{
				EntryID:       e.EntryID,
				FailureReason: e.FailureReason,
				MovedAt:       e.MovedAt,
			}
			if m := e.OriginalMessage; m != nil {
				item.JobID = m.ID
				item.ContentID = m.Payload.ContentID
				item.TopicID = m.Payload.TopicID
				item.RetryCount = m.RetryCount
			}
			resp = append(resp, item)
		}
		respondJSON(w, http.StatusOK, resp)
	}
}

// DLQReprocessHandler handles POST /api/v1/dlq/reprocess.
// It re-enqueues dead-lettered jobs with their retry count reset.
func DLQReprocessHandler(dlq queue.DeadLetterQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var req dlqReprocessRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		reprocessed, err := dlq.Reprocess(r.Context(), req.MessageIDs)
		if err != nil {
			log.Error().Err(err).
				Int("requested", len(req.MessageIDs)).
				Int("reprocessed", reprocessed).
				Msg("dlq reprocess failed")
			respondError(w, http.StatusInternalServerError, "reprocess failed")
			return
		}

		log.Info().
			Int("reprocessed", reprocessed).
			Int("total", len(req.MessageIDs)).
			Msg("dlq reprocess completed")

		respondJSON(w, http.StatusOK, dlqReprocessResponse{
			Reprocessed: reprocessed,
			Total:       len(req.MessageIDs),
		})
	}
}
