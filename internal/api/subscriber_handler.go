package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/sungwon/newsletter-dispatch/internal/newsletter"
	"github.com/sungwon/newsletter-dispatch/internal/storage"
)

type createSubscriberRequest struct {
	Email string `json:"email" validate:"required,email,max=320"`
}

type updateSubscriberRequest struct {
	Email    *string `json:"email" validate:"omitempty,email,max=320"`
	IsActive *bool   `json:"isActive"`
}

func (r *createSubscriberRequest) normalize() {
	r.Email = strings.TrimSpace(r.Email)
}

func (r *updateSubscriberRequest) normalize() {
	if r.Email != nil {
		email := strings.TrimSpace(*r.Email)
		r.Email = &email
	}
}

type subscriberResponse struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type subscriberDetailResponse struct {
	subscriberResponse
	Topics []topicResponse `json:"topics"`
}

type subscriptionResponse struct {
	ID           int64     `json:"id"`
	SubscriberID int64     `json:"subscriberId"`
	TopicID      int64     `json:"topicId"`
	CreatedAt    time.Time `json:"createdAt"`
}

func toSubscriberResponse(s storage.Subscriber) subscriberResponse {
	return subscriberResponse{
		ID:        s.ID,
		Email:     s.Email,
		IsActive:  s.IsActive,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func toSubscriberResponses(subs []storage.Subscriber) []subscriberResponse {
	resp := make([]subscriberResponse, 0, len(subs))
	for _, s := range subs {
		resp = append(resp, toSubscriberResponse(s))
	}
	return resp
}

// CreateSubscriberHandler handles POST /api/v1/subscribers.
func CreateSubscriberHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSubscriberRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		sub, err := svc.CreateSubscriber(r.Context(), req.Email)
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, toSubscriberResponse(sub))
	}
}

// ListSubscribersHandler handles GET /api/v1/subscribers.
func ListSubscribersHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subs, err := svc.ListSubscribers(r.Context())
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, toSubscriberResponses(subs))
	}
}

// GetSubscriberHandler handles GET /api/v1/subscribers/{id}.
func GetSubscriberHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid subscriber ID")
			return
		}

		detail, err := svc.GetSubscriber(r.Context(), id)
		if err != nil {
			respondServiceError(w, r, err)
			return
		}

		resp := subscriberDetailResponse{
			subscriberResponse: toSubscriberResponse(detail.Subscriber),
			Topics:             make([]topicResponse, 0, len(detail.Topics)),
		}
		for _, t := range detail.Topics {
			resp.Topics = append(resp.Topics, toTopicResponse(t))
		}
		respondJSON(w, http.StatusOK, resp)
	}
}

// UpdateSubscriberHandler handles PATCH /api/v1/subscribers/{id}.
func UpdateSubscriberHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid subscriber ID")
			return
		}

		var req updateSubscriberRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		sub, err := svc.UpdateSubscriber(r.Context(), id, newsletter.UpdateSubscriberInput{
			Email:    req.Email,
			IsActive: req.IsActive,
		})
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, toSubscriberResponse(sub))
	}
}

// DeleteSubscriberHandler handles DELETE /api/v1/subscribers/{id}.
func DeleteSubscriberHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid subscriber ID")
			return
		}

		if err := svc.DeleteSubscriber(r.Context(), id); err != nil {
			respondServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
