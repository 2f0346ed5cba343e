package gateway

import (
	"crypto/sha512"
	"encoding/json"
	"fmt"
)

// Paystack delivers webhooks signed with HMAC-SHA512 of the raw body in the
// X-Paystack-Signature header. Amounts are reported in kobo and orders are
// correlated by the transaction reference.
type Paystack struct {
	secret string
}

// NewPaystack creates the Paystack adapter. An empty secret puts the
// adapter in permissive (unconfigured) mode.
func NewPaystack(secret string) *Paystack {
	return &Paystack{secret: secret}
}

func (p *Paystack) Name() string { return "paystack" }

func (p *Paystack) SignatureHeader() string { return "X-Paystack-Signature" }

func (p *Paystack) VerifySignature(body []byte, signature string) VerifyResult {
	return verifyHMAC(sha512.New, p.secret, body, signature)
}

type paystackPayload struct {
	Event string `json:"event"`
	Data  struct {
		ID        int64  `json:"id"`
		Reference string `json:"reference"`
		Amount    *int64 `json:"amount"` // kobo; pointer to detect omission
		Status    string `json:"status"`
	} `json:"data"`
}

func (p *Paystack) ParseEvent(body []byte) (Event, error) {
	var payload paystackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Event{}, fmt.Errorf("paystack: decode body: %w", err)
	}

	switch payload.Event {
	case "charge.success", "charge.failed":
	default:
		return Event{}, ErrIgnoredEvent
	}
	if payload.Data.Reference == "" {
		return Event{}, fmt.Errorf("paystack: event %s has no reference", payload.Event)
	}

	ev := Event{
		Provider:      p.Name(),
		Type:          payload.Event,
		TransactionID: fmt.Sprintf("%d", payload.Data.ID),
		Keys:          CorrelationKeys{PaymentReference: payload.Data.Reference},
		Succeeded:     payload.Event == "charge.success",
	}
	if payload.Data.Amount != nil {
		ev.AmountKobo = *payload.Data.Amount
		ev.AmountReported = true
	}
	return ev, nil
}
