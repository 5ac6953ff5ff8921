// Package adapters implements per-provider webhook dialects: signature
// verification and payload normalization into provider-neutral events.
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

const iyzicoSignatureHeader = "X-Iyzico-Signature"

// IyzicoAdapter verifies iyzico deliveries: hex HMAC-SHA256 of the raw body.
type IyzicoAdapter struct {
	secret []byte
	clock  clock.Clock
}

func NewIyzicoAdapter(secret string, clk clock.Clock) *IyzicoAdapter {
	return &IyzicoAdapter{secret: []byte(secret), clock: clk}
}

func (a *IyzicoAdapter) Provider() string { return "iyzico" }

func (a *IyzicoAdapter) VerifySignature(payload []byte, header http.Header) error {
	if len(a.secret) == 0 {
		return paymentdomain.ErrInvalidSignature
	}
	got := strings.TrimSpace(header.Get(iyzicoSignatureHeader))
	if got == "" {
		return paymentdomain.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, a.secret)
	mac.Write(payload)
	want := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(strings.ToLower(got)), []byte(want)) {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

type iyzicoEvent struct {
	IyziEventID         string  `json:"iyziEventId"`
	IyziEventType       string  `json:"iyziEventType"`
	SubscriptionRefCode string  `json:"subscriptionReferenceCode"`
	Price               float64 `json:"price"`
	Currency            string  `json:"currency"`
	CreatedDate         int64   `json:"createdDate"` // unix millis
	ErrorMessage        string  `json:"errorMessage"`
}

func (a *IyzicoAdapter) Parse(payload []byte) (paymentdomain.Event, error) {
	var raw iyzicoEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return paymentdomain.Event{}, paymentdomain.ErrMalformedEvent
	}
	if raw.IyziEventID == "" || raw.IyziEventType == "" {
		return paymentdomain.Event{}, paymentdomain.ErrMalformedEvent
	}

	occurredAt := a.clock.Now().UTC()
	if raw.CreatedDate > 0 {
		occurredAt = time.UnixMilli(raw.CreatedDate).UTC()
	}

	return paymentdomain.Event{
		ProviderEventID:        raw.IyziEventID,
		Type:                   mapIyzicoEventType(raw.IyziEventType),
		ProviderSubscriptionID: raw.SubscriptionRefCode,
		Amount:                 raw.Price,
		Currency:               strings.ToUpper(raw.Currency),
		OccurredAt:             occurredAt,
		Reason:                 raw.ErrorMessage,
	}, nil
}

func mapIyzicoEventType(t string) string {
	switch t {
	case "subscription.order.success", "SUCCESS_PAYMENT":
		return paymentdomain.EventPaymentSucceeded
	case "subscription.order.failure", "FAILED_PAYMENT":
		return paymentdomain.EventPaymentFailed
	default:
		return t
	}
}
