// Package gateway normalizes inbound payment-provider webhooks. Each
// provider gets one Adapter that verifies the provider's signature scheme
// and parses the raw body into a provider-agnostic Event; everything
// downstream of this package is gateway-agnostic.
package gateway

import (
	"crypto/hmac"
	"encoding/hex"
	"errors"
	"hash"

	"github.com/shopspring/decimal"
)

// VerifyResult is the outcome of signature verification.
type VerifyResult int

const (
	// Valid means the signature matched.
	Valid VerifyResult = iota
	// Invalid means a signature was expected and did not match.
	Invalid
	// Unconfigured means no secret is set for this provider. Policy is to
	// log and proceed so a misconfigured secret cannot block payment
	// confirmation; the permissive state is surfaced at startup.
	Unconfigured
)

func (v VerifyResult) String() string {
	switch v {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return "unconfigured"
	}
}

// Event is one normalized payment notification. Amounts are in kobo
// regardless of the unit the provider reports in. AmountReported
// distinguishes a payload that omitted the amount from one that reported
// zero; only reported amounts are reconciled.
type Event struct {
	Provider       string
	Type           string
	TransactionID  string
	Keys           CorrelationKeys
	AmountKobo     int64
	AmountReported bool
	Succeeded      bool
}

// CorrelationKeys mirrors models.CorrelationKeys without importing it, so
// adapters stay a leaf package. The pipeline converts between the two.
type CorrelationKeys struct {
	PaymentReference string
	WalletID         string
	InvoiceReference string
}

// ErrIgnoredEvent is returned by ParseEvent for event types the pipeline
// does not act on (transfers, disputes, subscription notices, ...).
var ErrIgnoredEvent = errors.New("event type not handled")

// Adapter is implemented once per payment provider.
type Adapter interface {
	// Name identifies the provider in logs, metrics, and advisories.
	Name() string
	// SignatureHeader is the HTTP header carrying the provider's signature.
	SignatureHeader() string
	// VerifySignature checks the raw body against the supplied signature
	// header value. The body must be the exact bytes received on the wire.
	VerifySignature(body []byte, signature string) VerifyResult
	// ParseEvent decodes the raw body into a normalized Event.
	ParseEvent(body []byte) (Event, error)
}

// verifyHMAC computes hex(HMAC(secret, body)) with the given hash and
// compares it to the supplied signature in constant time.
func verifyHMAC(newHash func() hash.Hash, secret string, body []byte, signature string) VerifyResult {
	if secret == "" {
		return Unconfigured
	}
	if signature == "" {
		return Invalid
	}
	mac := hmac.New(newHash, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if hmac.Equal([]byte(expected), []byte(signature)) {
		return Valid
	}
	return Invalid
}

// majorToKobo converts a major-unit amount (naira, possibly fractional) to
// kobo. decimal keeps "17500.5" exact where float64 math would not.
func majorToKobo(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
