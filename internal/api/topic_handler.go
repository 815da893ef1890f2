package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/sungwon/newsletter-dispatch/internal/newsletter"
	"github.com/sungwon/newsletter-dispatch/internal/storage"
)

type createTopicRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description" validate:"max=2000"`
}

type updateTopicRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

func (r *createTopicRequest) normalize() {
	r.Name = strings.TrimSpace(r.Name)
}

func (r *updateTopicRequest) normalize() {
	if r.Name != nil {
		name := strings.TrimSpace(*r.Name)
		r.Name = &name
	}
}

type topicResponse struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	Description       *string   `json:"description"`
	SubscriptionCount *int64    `json:"subscriptionCount,omitempty"`
	ContentCount      *int64    `json:"contentCount,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

type topicDetailResponse struct {
	topicResponse
	Subscribers []subscriberResponse `json:"subscribers"`
	Content     []contentResponse    `json:"content"`
}

func toTopicResponse(t storage.Topic) topicResponse {
	return topicResponse{
		ID:          t.ID,
		Name:        t.Name,
		Description: textPtr(t.Description),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// CreateTopicHandler handles POST /api/v1/topics.
func CreateTopicHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createTopicRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		topic, err := svc.CreateTopic(r.Context(), req.Name, req.Description)
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, toTopicResponse(topic))
	}
}

// ListTopicsHandler handles GET /api/v1/topics.
func ListTopicsHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		topics, err := svc.ListTopics(r.Context())
		if err != nil {
			respondServiceError(w, r, err)
			return
		}

		resp := make([]topicResponse, 0, len(topics))
		for _, t := range topics {
			tr := toTopicResponse(t.Topic)
			tr.SubscriptionCount = &t.SubscriptionCount
			tr.ContentCount = &t.ContentCount
			resp = append(resp, tr)
		}
		respondJSON(w, http.StatusOK, resp)
	}
}

// GetTopicHandler handles GET /api/v1/topics/{id}.
func GetTopicHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid topic ID")
			return
		}

		detail, err := svc.GetTopic(r.Context(), id)
		if err != nil {
			respondServiceError(w, r, err)
			return
		}

		resp := topicDetailResponse{
			topicResponse: toTopicResponse(detail.Topic),
			Subscribers:   toSubscriberResponses(detail.Subscribers),
			Content:       make([]contentResponse, 0, len(detail.Content)),
		}
		for _, c := range detail.Content {
			resp.Content = append(resp.Content, toContentListResponse(c))
		}
		respondJSON(w, http.StatusOK, resp)
	}
}

// UpdateTopicHandler handles PATCH /api/v1/topics/{id}.
func UpdateTopicHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid topic ID")
			return
		}

		var req updateTopicRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		topic, err := svc.UpdateTopic(r.Context(), id, newsletter.UpdateTopicInput{
			Name:        req.Name,
			Description: req.Description,
		})
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, toTopicResponse(topic))
	}
}

// DeleteTopicHandler handles DELETE /api/v1/topics/{id}.
func DeleteTopicHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid topic ID")
			return
		}

		if err := svc.DeleteTopic(r.Context(), id); err != nil {
			respondServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ListTopicSubscribersHandler handles GET /api/v1/topics/{id}/subscribers.
func ListTopicSubscribersHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid topic ID")
			return
		}

		subs, err := svc.ListTopicSubscribers(r.Context(), id)
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, toSubscriberResponses(subs))
	}
}
