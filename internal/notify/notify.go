// Package notify is the best-effort multi-channel notification dispatcher.
// Channels are independent: a failure on one never prevents attempting the
// others, and none of them can fail fulfillment.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/amalafoods/payhook/internal/metrics"
	"github.com/amalafoods/payhook/internal/models"
)

// EmailSender and SMSSender are satisfied by the concrete clients and by
// test fakes.
type EmailSender interface {
	Send(ctx context.Context, to, subject, html string) error
}

type SMSSender interface {
	Send(ctx context.Context, to, body string) error
}

// ChannelResult records one channel attempt for the fulfillment report.
type ChannelResult struct {
	Channel string `json:"channel"`
	Sent    bool   `json:"sent"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Dispatcher fans a fulfilled order out to customer email, customer SMS,
// and an admin email. Nil clients disable their channel.
type Dispatcher struct {
	email      EmailSender
	sms        SMSSender
	adminEmail string
	logger     *slog.Logger
}

// NewDispatcher creates a Dispatcher. email or sms may be nil.
func NewDispatcher(email EmailSender, sms SMSSender, adminEmail string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{email: email, sms: sms, adminEmail: adminEmail, logger: logger}
}

// OrderConfirmed attempts all channels concurrently and reports per-channel
// outcomes. It never returns an error: notification failure is an
// operational concern, not a fulfillment one.
func (d *Dispatcher) OrderConfirmed(ctx context.Context, order models.Order) []ChannelResult {
	results := make([]ChannelResult, 3)
	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		results[0] = d.attempt("customer_email", func() (bool, error) {
			if d.email == nil || order.CustomerEmail == "" {
				return true, nil
			}
			subject := fmt.Sprintf("Order %s confirmed", order.Number)
			return false, d.email.Send(ctx, order.CustomerEmail, subject, orderConfirmedHTML(order))
		})
	}()
	go func() {
		defer wg.Done()
		results[1] = d.attempt("customer_sms", func() (bool, error) {
			if d.sms == nil || order.CustomerPhone == "" {
				return true, nil
			}
			body := fmt.Sprintf("Your order %s is confirmed and the kitchen is on it. Thank you!", order.Number)
			return false, d.sms.Send(ctx, order.CustomerPhone, body)
		})
	}()
	go func() {
		defer wg.Done()
		results[2] = d.attempt("admin_email", func() (bool, error) {
			if d.email == nil || d.adminEmail == "" {
				return true, nil
			}
			subject := fmt.Sprintf("Paid: order %s (₦%d.%02d)", order.Number, order.TotalKobo/100, order.TotalKobo%100)
			return false, d.email.Send(ctx, d.adminEmail, subject, adminOrderHTML(order))
		})
	}()
	wg.Wait()

	return results
}

// AdminAlert emails the admin inbox, e.g. for amount advisories. Best-effort.
func (d *Dispatcher) AdminAlert(ctx context.Context, subject, html string) {
	if d.email == nil || d.adminEmail == "" {
		return
	}
	if err := d.email.Send(ctx, d.adminEmail, subject, html); err != nil {
		metrics.NotificationsSent.WithLabelValues("admin_email", "failed").Inc()
		d.logger.Error("admin alert failed", "subject", subject, "error", err)
		return
	}
	metrics.NotificationsSent.WithLabelValues("admin_email", "sent").Inc()
}

func (d *Dispatcher) attempt(channel string, fn func() (skipped bool, err error)) ChannelResult {
	skipped, err := fn()
	switch {
	case skipped:
		metrics.NotificationsSent.WithLabelValues(channel, "skipped").Inc()
		return ChannelResult{Channel: channel, Skipped: true}
	case err != nil:
		metrics.NotificationsSent.WithLabelValues(channel, "failed").Inc()
		d.logger.Error("notification failed", "channel", channel, "error", err)
		return ChannelResult{Channel: channel, Error: err.Error()}
	default:
		metrics.NotificationsSent.WithLabelValues(channel, "sent").Inc()
		return ChannelResult{Channel: channel, Sent: true}
	}
}

func orderConfirmedHTML(order models.Order) string {
	return fmt.Sprintf(
		"<p>Hi %s,</p><p>We've received your payment for order <strong>%s</strong>. The kitchen is on it!</p>",
		order.CustomerName, order.Number)
}

func adminOrderHTML(order models.Order) string {
	return fmt.Sprintf(
		"<p>Order <strong>%s</strong> from %s (%s) is paid and confirmed.</p>",
		order.Number, order.CustomerName, order.CustomerEmail)
}
