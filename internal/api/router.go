package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sungwon/newsletter-dispatch/internal/queue"
)

// NewRouter creates a chi.Mux with all routes, middleware, and handlers configured.
// The dlq parameter is optional; when nil, the DLQ endpoints are not registered.
func NewRouter(svc Service, dlq queue.DeadLetterQueue, log zerolog.Logger, checks ...ReadinessCheck) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CorrelationIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(MetricsMiddleware)
	r.Use(RecoverMiddleware(log))

	r.Get("/healthz", HealthzHandler())
	r.Get("/readyz", ReadyzHandler(checks...))
	r.Handle("/metrics", promhttp.Handler())

	// Target of the link in every email.
	r.Get("/unsubscribe", UnsubscribeConfirmHandler())
	r.Post("/unsubscribe", UnsubscribeLinkHandler(svc))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/topics", CreateTopicHandler(svc))
		r.Get("/topics", ListTopicsHandler(svc))
		r.Get("/topics/{id}", GetTopicHandler(svc))
		r.Patch("/topics/{id}", UpdateTopicHandler(svc))
		r.Delete("/topics/{id}", DeleteTopicHandler(svc))
		r.Get("/topics/{id}/subscribers", ListTopicSubscribersHandler(svc))

		r.Post("/subscribers", CreateSubscriberHandler(svc))
		r.Get("/subscribers", ListSubscribersHandler(svc))
		r.Get("/subscribers/{id}", GetSubscriberHandler(svc))
		r.Patch("/subscribers/{id}", UpdateSubscriberHandler(svc))
		r.Delete("/subscribers/{id}", DeleteSubscriberHandler(svc))
		r.Post("/subscribers/{id}/subscribe/{topicId}", SubscribeHandler(svc))
		r.Delete("/subscribers/{id}/subscribe/{topicId}", UnsubscribeHandler(svc))

		r.Post("/content", CreateContentHandler(svc))
		r.Get("/content", ListContentHandler(svc))
		r.Get("/content/topic/{topicId}", ListTopicContentHandler(svc))
		r.Get("/content/{id}", GetContentHandler(svc))
		r.Get("/content/{id}/logs", ListContentLogsHandler(svc))
		r.Get("/content/{id}/archive", GetArchivedIssueHandler(svc))
		r.Patch("/content/{id}", UpdateContentHandler(svc))
		r.Delete("/content/{id}", DeleteContentHandler(svc))
		r.Post("/content/{id}/retry", RetryContentHandler(svc))

		r.Get("/stats", StatsHandler(svc))

		if dlq != nil {
			r.Get("/dlq", DLQListHandler(dlq))
			r.Post("/dlq/reprocess", DLQReprocessHandler(dlq))
		}
	})

	return r
}

// NewOpsRouter serves only the probe and metrics endpoints. The dispatch
// worker exposes it on its metrics address.
func NewOpsRouter(log zerolog.Logger, checks ...ReadinessCheck) *chi.Mux {
	r := chi.NewRouter()
	r.Use(RecoverMiddleware(log))

	r.Get("/healthz", HealthzHandler())
	r.Get("/readyz", ReadyzHandler(checks...))
	r.Handle("/metrics", promhttp.Handler())

	return r
}
