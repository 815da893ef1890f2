package api

import (
	"bytes"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
)

var (
	unsubscribeConfirmPage = template.Must(template.New("confirm").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Unsubscribe</title></head>
<body style="font-family: sans-serif; max-width: 480px; margin: 40px auto;">
<h1>Unsubscribe from this topic?</h1>
<p>You will no longer receive emails for this topic.</p>
<form method="post" action="{{.}}">
<button type="submit">Unsubscribe</button>
</form>
</body></html>
`))

	unsubscribedPage = []byte(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Unsubscribed</title></head>
<body style="font-family: sans-serif; max-width: 480px; margin: 40px auto;">
<h1>You have been unsubscribed</h1>
<p>You will no longer receive emails for this topic.</p>
</body></html>
`)
)

// SubscribeHandler handles POST /api/v1/subscribers/{id}/subscribe/{topicId}.
func SubscribeHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subscriberID, err := parseID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid subscriber ID")
			return
		}
		topicID, err := parseID(r, "topicId")
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid topic ID")
			return
		}

		sub, err := svc.Subscribe(r.Context(), subscriberID, topicID)
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, subscriptionResponse{
			ID:           sub.ID,
			SubscriberID: sub.SubscriberID,
			TopicID:      sub.TopicID,
			CreatedAt:    sub.CreatedAt,
		})
	}
}

// UnsubscribeHandler handles DELETE /api/v1/subscribers/{id}/subscribe/{topicId}.
func UnsubscribeHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subscriberID, err := parseID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid subscriber ID")
			return
		}
		topicID, err := parseID(r, "topicId")
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid topic ID")
			return
		}

		if err := svc.Unsubscribe(r.Context(), subscriberID, topicID); err != nil {
			respondServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// UnsubscribeConfirmHandler handles GET /unsubscribe?subscriber=&topic=,
// the link embedded in every email. It only renders a form that posts back
// to the same URL; link scanners that fetch it change nothing.
func UnsubscribeConfirmHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subscriberID, topicID, ok := unsubscribeTarget(w, r)
		if !ok {
			return
		}

		var buf bytes.Buffer
		if err := unsubscribeConfirmPage.Execute(&buf, unsubscribePath(subscriberID, topicID)); err != nil {
			respondServiceError(w, r, err)
			return
		}
		writeHTML(w, buf.Bytes())
	}
}

// UnsubscribeLinkHandler handles POST /unsubscribe?subscriber=&topic=. It
// serves both the confirm form and RFC 8058 one-click requests from mail
// clients, whose body is List-Unsubscribe=One-Click.
func UnsubscribeLinkHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subscriberID, topicID, ok := unsubscribeTarget(w, r)
		if !ok {
			return
		}

		if err := svc.UnsubscribeLink(r.Context(), subscriberID, topicID); err != nil {
			respondServiceError(w, r, err)
			return
		}
		writeHTML(w, unsubscribedPage)
	}
}

func unsubscribeTarget(w http.ResponseWriter, r *http.Request) (subscriberID, topicID int64, ok bool) {
	subscriberID, err := parseQueryID(r, "subscriber")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid subscriber")
		return 0, 0, false
	}
	topicID, err = parseQueryID(r, "topic")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid topic")
		return 0, 0, false
	}
	return subscriberID, topicID, true
}

func unsubscribePath(subscriberID, topicID int64) string {
	q := url.Values{}
	q.Set("subscriber", strconv.FormatInt(subscriberID, 10))
	q.Set("topic", strconv.FormatInt(topicID, 10))
	return "/unsubscribe?" + q.Encode()
}

func writeHTML(w http.ResponseWriter, page []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(page)
}
