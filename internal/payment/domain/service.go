package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
)

// EventType values the webhook pipeline acts on. Anything else is recorded
// and ignored.
const (
	EventPaymentSucceeded = "payment_succeeded"
	EventPaymentFailed    = "payment_failed"
)

// Event is a provider-neutral webhook notification.
type Event struct {
	ProviderEventID string
	Type            string

	// ProviderSubscriptionID identifies the subscription on the gateway's
	// side; it maps to Subscription.ProviderSubscriptionID.
	ProviderSubscriptionID string

	Amount     float64
	Currency   string
	OccurredAt time.Time
	Reason     string
}

// Adapter is one payment provider's webhook dialect.
type Adapter interface {
	Provider() string

	// VerifySignature authenticates a raw delivery before parsing.
	VerifySignature(payload []byte, header http.Header) error

	Parse(payload []byte) (Event, error)
}

type ChargeRequest struct {
	UserID         snowflake.ID
	SubscriptionID *snowflake.ID
	Amount         float64
	Currency       string
	Description    string
}

type ChargeResult struct {
	ProviderPaymentID string
	Status            PaymentStatus
	FailureReason     string
}

// Gateway performs charges against the external payment provider. Opaque:
// retry and idempotency policy live on the provider's side.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

// Service records charge outcomes as Payment rows.
type Service interface {
	Charge(ctx context.Context, req ChargeRequest) (Payment, error)
}

// WebhookService ingests provider deliveries and drives subscription state.
type WebhookService interface {
	// Handle verifies, records, and processes one delivery. Replays of an
	// already-recorded event return nil without side effects.
	Handle(ctx context.Context, provider string, payload []byte, header http.Header) error
}

var (
	ErrUnknownProvider  = errors.New("unknown_payment_provider")
	ErrInvalidSignature = errors.New("invalid_webhook_signature")
	ErrMalformedEvent   = errors.New("malformed_webhook_event")
)
