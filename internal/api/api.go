// Package api exposes the HTTP surface: one webhook endpoint per payment
// provider, health and metrics endpoints, and a JWT-guarded admin group.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/amalafoods/payhook/internal/gateway"
	"github.com/amalafoods/payhook/internal/httpkit"
	"github.com/amalafoods/payhook/internal/models"
	"github.com/amalafoods/payhook/internal/pipeline"
)

// Processor is the pipeline surface the handlers need.
type Processor interface {
	Process(ctx context.Context, ev gateway.Event) (pipeline.Result, error)
	Resend(ctx context.Context, orderID string) (*pipeline.Report, error)
}

// AdvisoryLister serves the admin advisory listing. *store.Store satisfies it.
type AdvisoryLister interface {
	ListAdvisories(ctx context.Context) ([]models.AmountAdvisory, error)
}

// webhookRatePerMinute bounds per-IP webhook deliveries. Providers retry on
// 429, so a throttled burst is redelivered rather than lost.
const webhookRatePerMinute = 300

// API holds the handler dependencies.
type API struct {
	processor  Processor
	advisories AdvisoryLister
	adapters   []gateway.Adapter
	jwtSecret  string
	logger     *slog.Logger
}

// New creates an API. jwtSecret may be empty, which disables the admin group.
func New(processor Processor, advisories AdvisoryLister, adapters []gateway.Adapter, jwtSecret string, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		processor:  processor,
		advisories: advisories,
		adapters:   adapters,
		jwtSecret:  jwtSecret,
		logger:     logger,
	}
}

// Mount attaches all routes to the router.
func (a *API) Mount(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpkit.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/webhooks", func(r chi.Router) {
		r.Use(httpkit.RateLimit(webhookRatePerMinute))
		for _, adapter := range a.adapters {
			r.Post("/"+adapter.Name(), a.handleWebhook(adapter))
		}
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(a.requireAdmin)
		r.Post("/orders/{id}/resend", a.handleResend)
		r.Get("/advisories", a.handleListAdvisories)
	})
}
