package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/amalafoods/payhook/internal/gateway"
	"github.com/amalafoods/payhook/internal/httpkit"
	"github.com/amalafoods/payhook/internal/metrics"
	"github.com/amalafoods/payhook/internal/models"
)

// maxWebhookBody caps the request body. Provider payloads are a few KB;
// anything near the cap is not a webhook.
const maxWebhookBody = 1 << 20

// handleWebhook builds the POST handler for one provider. The signature is
// verified over the exact bytes received, before any JSON decoding.
func (a *API) handleWebhook(adapter gateway.Adapter) http.HandlerFunc {
	provider := adapter.Name()
	return func(w http.ResponseWriter, r *http.Request) {
		metrics.WebhooksReceived.WithLabelValues(provider).Inc()

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			metrics.WebhooksRejected.WithLabelValues(provider, "body_read").Inc()
			httpkit.Error(w, http.StatusBadRequest, "could not read request body")
			return
		}

		switch adapter.VerifySignature(body, r.Header.Get(adapter.SignatureHeader())) {
		case gateway.Invalid:
			metrics.WebhooksRejected.WithLabelValues(provider, "bad_signature").Inc()
			a.logger.Warn("webhook signature rejected", "provider", provider)
			httpkit.Error(w, http.StatusBadRequest, "invalid signature")
			return
		case gateway.Unconfigured:
			a.logger.Warn("webhook accepted without verification, no secret configured",
				"provider", provider)
		}

		ev, err := adapter.ParseEvent(body)
		if errors.Is(err, gateway.ErrIgnoredEvent) {
			httpkit.JSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}
		if err != nil {
			metrics.WebhooksRejected.WithLabelValues(provider, "malformed").Inc()
			a.logger.Warn("webhook body rejected", "provider", provider, "error", err)
			httpkit.Error(w, http.StatusBadRequest, "malformed event payload")
			return
		}

		result, err := a.processor.Process(r.Context(), ev)
		if errors.Is(err, models.ErrOrderNotFound) {
			metrics.WebhooksRejected.WithLabelValues(provider, "unmatched").Inc()
			a.logger.Warn("webhook matched no order",
				"provider", provider, "transaction_id", ev.TransactionID)
			httpkit.Error(w, http.StatusNotFound, "no matching order")
			return
		}
		if err != nil {
			// Transient store failure. 5xx so the provider redelivers.
			a.logger.Error("webhook processing failed",
				"provider", provider, "transaction_id", ev.TransactionID, "error", err)
			httpkit.Error(w, http.StatusInternalServerError, "processing failed")
			return
		}

		httpkit.JSON(w, http.StatusOK, map[string]string{"status": result.Code.String()})
	}
}
