package gateway

import (
	"crypto/sha512"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Monnify delivers webhooks signed with HMAC-SHA512 of the raw body in the
// monnify-signature header. Amounts are in naira. Orders funded through a
// reserved account correlate by account reference (the customer wallet);
// invoice payments correlate by invoice reference.
type Monnify struct {
	secret string
}

// NewMonnify creates the Monnify adapter.
func NewMonnify(secret string) *Monnify {
	return &Monnify{secret: secret}
}

func (m *Monnify) Name() string { return "monnify" }

func (m *Monnify) SignatureHeader() string { return "monnify-signature" }

func (m *Monnify) VerifySignature(body []byte, signature string) VerifyResult {
	return verifyHMAC(sha512.New, m.secret, body, signature)
}

type monnifyPayload struct {
	EventType string `json:"eventType"`
	EventData struct {
		TransactionReference string      `json:"transactionReference"`
		PaymentReference     string      `json:"paymentReference"`
		AmountPaid           json.Number `json:"amountPaid"` // naira
		PaymentStatus        string      `json:"paymentStatus"`
		InvoiceReference     string      `json:"invoiceReference"`
		AccountReference     string      `json:"accountReference"`
	} `json:"eventData"`
}

func (m *Monnify) ParseEvent(body []byte) (Event, error) {
	var payload monnifyPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Event{}, fmt.Errorf("monnify: decode body: %w", err)
	}

	switch payload.EventType {
	case "SUCCESSFUL_TRANSACTION", "FAILED_TRANSACTION":
	default:
		return Event{}, ErrIgnoredEvent
	}

	keys := CorrelationKeys{
		PaymentReference: payload.EventData.PaymentReference,
		WalletID:         payload.EventData.AccountReference,
		InvoiceReference: payload.EventData.InvoiceReference,
	}
	if keys.PaymentReference == "" && keys.WalletID == "" && keys.InvoiceReference == "" {
		return Event{}, fmt.Errorf("monnify: event %s has no correlation key", payload.EventType)
	}

	ev := Event{
		Provider:      m.Name(),
		Type:          payload.EventType,
		TransactionID: payload.EventData.TransactionReference,
		Keys:          keys,
		Succeeded:     payload.EventType == "SUCCESSFUL_TRANSACTION" && payload.EventData.PaymentStatus == "PAID",
	}
	if payload.EventData.AmountPaid != "" {
		amount, err := decimal.NewFromString(payload.EventData.AmountPaid.String())
		if err != nil {
			return Event{}, fmt.Errorf("monnify: bad amountPaid %q: %w", payload.EventData.AmountPaid, err)
		}
		ev.AmountKobo = majorToKobo(amount)
		ev.AmountReported = true
	}
	return ev, nil
}
