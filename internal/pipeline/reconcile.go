package pipeline

import (
	"context"
	"fmt"

	"github.com/amalafoods/payhook/internal/gateway"
	"github.com/amalafoods/payhook/internal/metrics"
	"github.com/amalafoods/payhook/internal/models"
)

// reconcileAmount compares the reported amount with the order total. A
// mismatch beyond the configured absolute tolerance records exactly one
// advisory and alerts the admin inbox; it never blocks fulfillment, because
// the money has already moved on the provider's side and rejecting the
// event would not return it.
func (p *Pipeline) reconcileAmount(ctx context.Context, ev gateway.Event, order models.Order) {
	if !ev.AmountReported {
		// Provider did not report an amount; nothing to reconcile. A
		// reported zero is a real mismatch and falls through.
		return
	}

	diff := ev.AmountKobo - order.TotalKobo
	if diff < 0 {
		diff = -diff
	}
	if diff <= p.policy.ToleranceKobo {
		return
	}

	recorded, err := p.store.RecordAmountAdvisory(ctx, models.AmountAdvisory{
		OrderID:      order.ID,
		Provider:     ev.Provider,
		ExpectedKobo: order.TotalKobo,
		ReportedKobo: ev.AmountKobo,
	})
	if err != nil {
		p.logger.Error("record amount advisory failed",
			"order_id", order.ID, "error", err)
		return
	}
	if !recorded {
		return
	}

	metrics.AmountAdvisories.WithLabelValues(ev.Provider).Inc()
	p.logger.Warn("amount mismatch beyond tolerance",
		"order_id", order.ID,
		"provider", ev.Provider,
		"expected_kobo", order.TotalKobo,
		"reported_kobo", ev.AmountKobo)

	if p.notifier != nil {
		subject := fmt.Sprintf("Amount mismatch on order %s", order.Number)
		html := fmt.Sprintf(
			"<p>Order <strong>%s</strong> expected ₦%d.%02d but %s reported ₦%d.%02d. Payment was confirmed; please reconcile manually.</p>",
			order.Number,
			order.TotalKobo/100, order.TotalKobo%100,
			ev.Provider,
			ev.AmountKobo/100, ev.AmountKobo%100)
		p.notifier.AdminAlert(ctx, subject, html)
	}
}
