// Package webhook ingests payment provider deliveries and drives the
// subscription lifecycle transitions they imply.
package webhook

import (
	"context"
	"errors"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/smartreceipt/smartreceipt/internal/clock"
	"github.com/smartreceipt/smartreceipt/internal/metrics"
	"github.com/smartreceipt/smartreceipt/internal/payment/adapters"
	paymentdomain "github.com/smartreceipt/smartreceipt/internal/payment/domain"
	subscriptiondomain "github.com/smartreceipt/smartreceipt/internal/subscription/domain"
	"github.com/smartreceipt/smartreceipt/pkg/db"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock

	Registry *adapters.Registry
	Subs     subscriptiondomain.Service
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID *snowflake.Node
	clock clock.Clock

	registry *adapters.Registry
	subs     subscriptiondomain.Service
}

func NewService(p ServiceParam) paymentdomain.WebhookService {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("payment.webhook"),

		genID: p.GenID,
		clock: p.Clock,

		registry: p.Registry,
		subs:     p.Subs,
	}
}

func (s *Service) Handle(ctx context.Context, provider string, payload []byte, header http.Header) error {
	adapter, err := s.registry.Get(provider)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(provider, "error").Inc()
		return err
	}

	if err := adapter.VerifySignature(payload, header); err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(provider, "invalid_signature").Inc()
		s.log.Warn("webhook signature rejected", zap.String("provider", provider))
		return err
	}

	event, err := adapter.Parse(payload)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(provider, "error").Inc()
		return err
	}

	sub, err := s.findSubscription(ctx, event.ProviderSubscriptionID)
	if err != nil {
		return err
	}

	record := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		Payload:         datatypes.JSON(payload),
		CreatedAt:       s.clock.Now(),
	}
	if sub != nil {
		record.SubscriptionID = &sub.ID
	}

	// The unique index on (provider, provider_event_id) is the idempotency
	// barrier. The record is inserted unprocessed and marked processed only
	// after the side effects land, so a transient failure leaves the row
	// unprocessed and the provider's retry picks it up again.
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return s.handleReplay(ctx, provider, event, sub)
		}
		return err
	}

	return s.finishProcessing(ctx, provider, event, sub, record.ID)
}

// handleReplay decides what a redelivery means: a processed record is a
// no-op, an unprocessed one is a retry of a delivery that failed mid-flight.
func (s *Service) handleReplay(ctx context.Context, provider string, event paymentdomain.Event, sub *subscriptiondomain.Subscription) error {
	var existing paymentdomain.EventRecord
	err := s.db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", provider, event.ProviderEventID).
		First(&existing).Error
	if err != nil {
		return err
	}

	if existing.ProcessedAt != nil {
		metrics.WebhookEventsTotal.WithLabelValues(provider, "duplicate").Inc()
		s.log.Info("webhook replay ignored",
			zap.String("provider", provider),
			zap.String("provider_event_id", event.ProviderEventID),
		)
		return nil
	}

	s.log.Info("retrying unprocessed webhook delivery",
		zap.String("provider", provider),
		zap.String("provider_event_id", event.ProviderEventID),
	)
	return s.finishProcessing(ctx, provider, event, sub, existing.ID)
}

func (s *Service) finishProcessing(ctx context.Context, provider string, event paymentdomain.Event, sub *subscriptiondomain.Subscription, recordID snowflake.ID) error {
	if err := s.process(ctx, provider, event, sub); err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(provider, "error").Inc()
		return err
	}

	if err := s.db.WithContext(ctx).
		Model(&paymentdomain.EventRecord{}).
		Where("id = ?", recordID).
		Update("processed_at", s.clock.Now()).Error; err != nil {
		return err
	}

	metrics.WebhookEventsTotal.WithLabelValues(provider, "accepted").Inc()
	return nil
}

func (s *Service) process(ctx context.Context, provider string, event paymentdomain.Event, sub *subscriptiondomain.Subscription) error {
	switch event.Type {
	case paymentdomain.EventPaymentSucceeded, paymentdomain.EventPaymentFailed:
	default:
		s.log.Info("webhook event ignored",
			zap.String("provider", provider),
			zap.String("event_type", event.Type),
		)
		return nil
	}

	if sub == nil {
		s.log.Warn("webhook references unknown subscription",
			zap.String("provider", provider),
			zap.String("provider_subscription_id", event.ProviderSubscriptionID),
		)
		return nil
	}

	status := paymentdomain.PaymentStatusSucceeded
	if event.Type == paymentdomain.EventPaymentFailed {
		status = paymentdomain.PaymentStatusFailed
	}

	now := s.clock.Now()
	subID := sub.ID
	payment := paymentdomain.Payment{
		ID:             s.genID.Generate(),
		UserID:         sub.UserID,
		SubscriptionID: &subID,
		Amount:         event.Amount,
		Currency:       event.Currency,
		Status:         status,
		Provider:       provider,
		FailureReason:  event.Reason,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.db.WithContext(ctx).Create(&payment).Error; err != nil {
		return err
	}

	switch event.Type {
	case paymentdomain.EventPaymentSucceeded:
		return s.subs.ExtendBillingPeriod(ctx, sub.ID, event.OccurredAt)
	case paymentdomain.EventPaymentFailed:
		if err := s.subs.Suspend(ctx, sub.ID); err != nil {
			// The row may already be closed; the payment record is enough.
			if errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound) {
				return nil
			}
			return err
		}
	}
	return nil
}

func (s *Service) findSubscription(ctx context.Context, providerSubID string) (*subscriptiondomain.Subscription, error) {
	if providerSubID == "" {
		return nil, nil
	}
	var sub subscriptiondomain.Subscription
	err := s.db.WithContext(ctx).
		Where("provider_subscription_id = ?", providerSubID).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}
