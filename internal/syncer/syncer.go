// Package syncer pushes paid orders to external systems: a CRM over HTTP
// and an orders.paid event stream over NATS. Both are best-effort with
// bounded timeouts; failures are logged and never retried inside the
// webhook pipeline.
package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/amalafoods/payhook/internal/models"
)

// Publisher is the slice of the NATS connection the syncer needs.
// *nats.Conn satisfies it.
type Publisher interface {
	Publish(subj string, data []byte) error
}

// SubjectOrderPaid is the stream subject ERP/CRM consumers subscribe to.
const SubjectOrderPaid = "orders.paid"

// Syncer holds the external collaborators.
type Syncer struct {
	crmBaseURL string
	crmAPIKey  string
	client     *http.Client
	publisher  Publisher
	logger     *slog.Logger
}

// New creates a Syncer. crmBaseURL may be empty and publisher may be nil;
// each disables its half of the sync.
func New(crmBaseURL, crmAPIKey string, timeout time.Duration, publisher Publisher, logger *slog.Logger) *Syncer {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		crmBaseURL: crmBaseURL,
		crmAPIKey:  crmAPIKey,
		client:     &http.Client{Timeout: timeout},
		publisher:  publisher,
		logger:     logger,
	}
}

// OrderPaidEvent is the published wire format.
type OrderPaidEvent struct {
	EventID     uuid.UUID `json:"event_id"`
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	ProfileID   string    `json:"profile_id"`
	Email       string    `json:"email"`
	TotalKobo   int64     `json:"total_kobo"`
	PaidAt      time.Time `json:"paid_at"`
}

// SyncOrderPaid publishes the paid event and upserts the customer in the
// CRM. Returns the CRM contact ID when the CRM acknowledged the upsert, so
// the caller can persist it on the profile. Partial failure is fine: a
// non-nil error may accompany a successful publish or vice versa.
func (s *Syncer) SyncOrderPaid(ctx context.Context, order models.Order, profile models.Profile) (string, error) {
	s.publishPaid(order, profile)

	if s.crmBaseURL == "" {
		return "", nil
	}
	return s.upsertCRMContact(ctx, order, profile)
}

func (s *Syncer) publishPaid(order models.Order, profile models.Profile) {
	if s.publisher == nil {
		return
	}

	paidAt := time.Now().UTC()
	if order.PaidAt != nil {
		paidAt = *order.PaidAt
	}
	data, err := json.Marshal(OrderPaidEvent{
		EventID:     uuid.New(),
		OrderID:     order.ID,
		OrderNumber: order.Number,
		ProfileID:   profile.ID,
		Email:       profile.Email,
		TotalKobo:   order.TotalKobo,
		PaidAt:      paidAt,
	})
	if err != nil {
		s.logger.Error("marshal order paid event", "order_id", order.ID, "error", err)
		return
	}
	if err := s.publisher.Publish(SubjectOrderPaid, data); err != nil {
		s.logger.Error("publish order paid event", "order_id", order.ID, "error", err)
	}
}

func (s *Syncer) upsertCRMContact(ctx context.Context, order models.Order, profile models.Profile) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"email":         profile.Email,
		"name":          order.CustomerName,
		"phone":         order.CustomerPhone,
		"last_order":    order.Number,
		"lifetime_kobo": order.TotalKobo,
	})
	if err != nil {
		return "", fmt.Errorf("marshal crm contact: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.crmBaseURL+"/contacts", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create crm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.crmAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.crmAPIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("crm upsert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("crm upsert: status %d", resp.StatusCode)
	}

	var out struct {
		ID string `json:"id"`
	}
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode crm response: %w", err)
	}
	return out.ID, nil
}
