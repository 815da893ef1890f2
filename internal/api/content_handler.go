package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/sungwon/newsletter-dispatch/internal/newsletter"
	"github.com/sungwon/newsletter-dispatch/internal/storage"
)

type createContentRequest struct {
	TopicID     int64     `json:"topicId" validate:"required,gt=0"`
	Title       string    `json:"title" validate:"required,max=255"`
	Body        string    `json:"body" validate:"required"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

func (r *createContentRequest) normalize() {
	r.Title = strings.TrimSpace(r.Title)
}

type updateContentRequest struct {
	TopicID     *int64     `json:"topicId" validate:"omitempty,gt=0"`
	Title       *string    `json:"title" validate:"omitempty,min=1,max=255"`
	Body        *string    `json:"body" validate:"omitempty,min=1"`
	ScheduledAt *time.Time `json:"scheduledAt"`
}

type emailCountsResponse struct {
	Total  int64 `json:"total"`
	Sent   int64 `json:"sent"`
	Failed int64 `json:"failed"`
}

type contentResponse struct {
	ID            int64      `json:"id"`
	TopicID       int64      `json:"topicId"`
	TopicName     string     `json:"topicName,omitempty"`
	Title         string     `json:"title"`
	Body          string     `json:"body"`
	ScheduledAt   time.Time  `json:"scheduledAt"`
	Status        string     `json:"status"`
	SentAt        *time.Time `json:"sentAt"`
	EmailLogCount *int64     `json:"emailLogCount,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

type contentDetailResponse struct {
	contentResponse
	Counts     emailCountsResponse `json:"counts"`
	RecentLogs []emailLogResponse  `json:"recentLogs"`
}

type emailLogResponse struct {
	ID                int64     `json:"id"`
	ContentID         int64     `json:"contentId"`
	SubscriberID      int64     `json:"subscriberId"`
	SubscriberEmail   string    `json:"subscriberEmail"`
	Status            string    `json:"status"`
	ErrorMessage      *string   `json:"errorMessage"`
	ProviderMessageID *string   `json:"providerMessageId"`
	SentAt            time.Time `json:"sentAt"`
}

func toContentResponse(c storage.Content) contentResponse {
	return contentResponse{
		ID:          c.ID,
		TopicID:     c.TopicID,
		Title:       c.Title,
		Body:        c.Body,
		ScheduledAt: c.ScheduledAt,
		Status:      string(c.Status),
		SentAt:      timestampPtr(c.SentAt),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func toContentListResponse(c storage.ContentWithCounts) contentResponse {
	resp := toContentResponse(c.Content)
	resp.TopicName = c.TopicName
	resp.EmailLogCount = &c.EmailLogCount
	return resp
}

func toEmailLogResponses(logs []storage.EmailLogWithSubscriber) []emailLogResponse {
	resp := make([]emailLogResponse, 0, len(logs))
	for _, l := range logs {
		resp = append(resp, emailLogResponse{
			ID:                l.ID,
			ContentID:         l.ContentID,
			SubscriberID:      l.SubscriberID,
			SubscriberEmail:   l.SubscriberEmail,
			Status:            string(l.Status),
			ErrorMessage:      textPtr(l.ErrorMessage),
			ProviderMessageID: textPtr(l.ProviderMessageID),
			SentAt:            l.SentAt,
		})
	}
	return resp
}

// CreateContentHandler handles POST /api/v1/content.
func CreateContentHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createContentRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		if req.ScheduledAt.IsZero() {
			respondValidationErrors(w, []string{"scheduledAt is required"})
			return
		}

		content, err := svc.CreateContent(r.Context(), newsletter.CreateContentInput{
			TopicID:     req.TopicID,
			Title:       req.Title,
			Body:        req.Body,
			ScheduledAt: req.ScheduledAt,
		})
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, toContentResponse(content))
	}
}

func respondContentList(w http.ResponseWriter, r *http.Request, svc Service, topicID *int64) {
	items, err := svc.ListContent(r.Context(), topicID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	resp := make([]contentResponse, 0, len(items))
	for _, c := range items {
		resp = append(resp, toContentListResponse(c))
	}
	respondJSON(w, http.StatusOK, resp)
}

// ListContentHandler handles GET /api/v1/content.
func ListContentHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondContentList(w, r, svc, nil)
	}
}

// ListTopicContentHandler handles GET /api/v1/content/topic/{topicId}.
func ListTopicContentHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		topicID, err := parseID(r, "topicId")
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid topic ID")
			return
		}
		respondContentList(w, r, svc, &topicID)
	}
}

// GetContentHandler handles GET /api/v1/content/{id}.
func GetContentHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid content ID")
			return
		}

		detail, err := svc.GetContent(r.Context(), id)
		if err != nil {
			respondServiceError(w, r, err)
			return
		}

		cr := toContentResponse(detail.Content)
		cr.TopicName = detail.TopicName
		respondJSON(w, http.StatusOK, contentDetailResponse{
			contentResponse: cr,
			Counts: emailCountsResponse{
				Total:  detail.Counts.Total(),
				Sent:   detail.Counts.Sent,
				Failed: detail.Counts.Failed,
			},
			RecentLogs: toEmailLogResponses(detail.RecentLogs),
		})
	}
}

// ListContentLogsHandler handles GET /api/v1/content/{id}/logs?status=.
func ListContentLogsHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid content ID")
			return
		}

		status := storage.EmailLogStatus(r.URL.Query().Get("status"))
		logs, err := svc.ListContentLogs(r.Context(), id, status)
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, toEmailLogResponses(logs))
	}
}

// UpdateContentHandler handles PATCH /api/v1/content/{id}.
func UpdateContentHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid content ID")
			return
		}

		var req updateContentRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		content, err := svc.UpdateContent(r.Context(), id, newsletter.UpdateContentInput{
			TopicID:     req.TopicID,
			Title:       req.Title,
			Body:        req.Body,
			ScheduledAt: req.ScheduledAt,
		})
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, toContentResponse(content))
	}
}

// DeleteContentHandler handles DELETE /api/v1/content/{id}.
func DeleteContentHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid content ID")
			return
		}

		if err := svc.DeleteContent(r.Context(), id); err != nil {
			respondServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// RetryContentHandler handles POST /api/v1/content/{id}/retry.
func RetryContentHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid content ID")
			return
		}

		content, err := svc.RetryContent(r.Context(), id)
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		respondJSON(w, http.StatusAccepted, toContentResponse(content))
	}
}

// GetArchivedIssueHandler handles GET /api/v1/content/{id}/archive.
func GetArchivedIssueHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid content ID")
			return
		}

		html, err := svc.GetArchivedIssue(r.Context(), id)
		if err != nil {
			respondServiceError(w, r, err)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(html)
	}
}
