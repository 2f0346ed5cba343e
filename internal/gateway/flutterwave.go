package gateway

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Flutterwave delivers webhooks with a verif-hash header, HMAC-SHA256 of
// the raw body. Amounts are reported in naira (major units) and orders are
// correlated by tx_ref.
type Flutterwave struct {
	secret string
}

// NewFlutterwave creates the Flutterwave adapter.
func NewFlutterwave(secret string) *Flutterwave {
	return &Flutterwave{secret: secret}
}

func (f *Flutterwave) Name() string { return "flutterwave" }

func (f *Flutterwave) SignatureHeader() string { return "verif-hash" }

func (f *Flutterwave) VerifySignature(body []byte, signature string) VerifyResult {
	return verifyHMAC(sha256.New, f.secret, body, signature)
}

type flutterwavePayload struct {
	Event string `json:"event"`
	Data  struct {
		ID     int64       `json:"id"`
		TxRef  string      `json:"tx_ref"`
		Amount json.Number `json:"amount"` // naira, may carry decimals
		Status string      `json:"status"`
	} `json:"data"`
}

func (f *Flutterwave) ParseEvent(body []byte) (Event, error) {
	var payload flutterwavePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Event{}, fmt.Errorf("flutterwave: decode body: %w", err)
	}

	if payload.Event != "charge.completed" {
		return Event{}, ErrIgnoredEvent
	}
	if payload.Data.TxRef == "" {
		return Event{}, fmt.Errorf("flutterwave: charge.completed has no tx_ref")
	}

	ev := Event{
		Provider:      f.Name(),
		Type:          payload.Event,
		TransactionID: fmt.Sprintf("%d", payload.Data.ID),
		Keys:          CorrelationKeys{PaymentReference: payload.Data.TxRef},
		Succeeded:     payload.Data.Status == "successful",
	}
	if payload.Data.Amount != "" {
		amount, err := decimal.NewFromString(payload.Data.Amount.String())
		if err != nil {
			return Event{}, fmt.Errorf("flutterwave: bad amount %q: %w", payload.Data.Amount, err)
		}
		ev.AmountKobo = majorToKobo(amount)
		ev.AmountReported = true
	}
	return ev, nil
}
