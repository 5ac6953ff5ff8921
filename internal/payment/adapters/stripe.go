package adapters

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/smartreceipt/smartreceipt/internal/clock"
	paymentdomain "github.com/smartreceipt/smartreceipt/internal/payment/domain"
)

const stripeSignatureHeader = "Stripe-Signature"

// StripeAdapter verifies Stripe deliveries: the Stripe-Signature header
// carries `t=<unix>,v1=<hex hmac>` where the MAC covers "<t>.<body>".
type StripeAdapter struct {
	secret []byte
	clock  clock.Clock
}

func NewStripeAdapter(secret string, clk clock.Clock) *StripeAdapter {
	return &StripeAdapter{secret: []byte(secret), clock: clk}
}

func (a *StripeAdapter) Provider() string { return "stripe" }

func (a *StripeAdapter) VerifySignature(payload []byte, header http.Header) error {
	if len(a.secret) == 0 {
		return paymentdomain.ErrInvalidSignature
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header.Get(stripeSignatureHeader), ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			timestamp = v
		case "v1":
			signatures = append(signatures, v)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return paymentdomain.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	want := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(want)) {
			return nil
		}
	}
	return paymentdomain.ErrInvalidSignature
}

type stripeEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"` // unix seconds
	Data    struct {
		Object struct {
			Subscription  string `json:"subscription"`
			AmountPaid    int64  `json:"amount_paid"` // minor units
			AmountDue     int64  `json:"amount_due"`
			Currency      string `json:"currency"`
			FailureReason string `json:"failure_message"`
		} `json:"object"`
	} `json:"data"`
}

func (a *StripeAdapter) Parse(payload []byte) (paymentdomain.Event, error) {
	var raw stripeEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return paymentdomain.Event{}, paymentdomain.ErrMalformedEvent
	}
	if raw.ID == "" || raw.Type == "" {
		return paymentdomain.Event{}, paymentdomain.ErrMalformedEvent
	}

	amount := raw.Data.Object.AmountPaid
	if amount == 0 {
		amount = raw.Data.Object.AmountDue
	}

	occurredAt := a.clock.Now().UTC()
	if raw.Created > 0 {
		occurredAt = time.Unix(raw.Created, 0).UTC()
	}

	return paymentdomain.Event{
		ProviderEventID:        raw.ID,
		Type:                   mapStripeEventType(raw.Type),
		ProviderSubscriptionID: raw.Data.Object.Subscription,
		Amount:                 float64(amount) / 100,
		Currency:               strings.ToUpper(raw.Data.Object.Currency),
		OccurredAt:             occurredAt,
		Reason:                 raw.Data.Object.FailureReason,
	}, nil
}

func mapStripeEventType(t string) string {
	switch t {
	case "invoice.payment_succeeded", "invoice.paid":
		return paymentdomain.EventPaymentSucceeded
	case "invoice.payment_failed":
		return paymentdomain.EventPaymentFailed
	default:
		return t
	}
}
