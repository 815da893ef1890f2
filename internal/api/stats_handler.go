package api

import "net/http"

type statsResponse struct {
	Subscribers struct {
		Total    int64 `json:"total"`
		Active   int64 `json:"active"`
		Inactive int64 `json:"inactive"`
	} `json:"subscribers"`
	Topics struct {
		Total int64 `json:"total"`
	} `json:"topics"`
	Subscriptions struct {
		Total int64 `json:"total"`
	} `json:"subscriptions"`
	Content struct {
		Total   int64 `json:"total"`
		Pending int64 `json:"pending"`
		Sent    int64 `json:"sent"`
		Failed  int64 `json:"failed"`
	} `json:"content"`
	Emails emailCountsResponse `json:"emails"`
}

// StatsHandler handles GET /api/v1/stats.
func StatsHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := svc.GetStats(r.Context())
		if err != nil {
			respondServiceError(w, r, err)
			return
		}

		var resp statsResponse
		resp.Subscribers.Total = s.SubscribersTotal
		resp.Subscribers.Active = s.SubscribersActive
		resp.Subscribers.Inactive = s.SubscribersTotal - s.SubscribersActive
		resp.Topics.Total = s.TopicsTotal
		resp.Subscriptions.Total = s.SubscriptionsTotal
		resp.Content.Total = s.ContentTotal
		resp.Content.Pending = s.ContentPending
		resp.Content.Sent = s.ContentSent
		resp.Content.Failed = s.ContentFailed
		resp.Emails = emailCountsResponse{
			Total:  s.EmailsTotal,
			Sent:   s.EmailsSent,
			Failed: s.EmailsFailed,
		}
		respondJSON(w, http.StatusOK, resp)
	}
}
