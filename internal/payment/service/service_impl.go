package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smartreceipt/smartreceipt/internal/clock"
	"github.com/smartreceipt/smartreceipt/internal/config"
	paymentdomain "github.com/smartreceipt/smartreceipt/internal/payment/domain"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Cfg   config.Config

	Gateway paymentdomain.Gateway
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID    *snowflake.Node
	clock    clock.Clock
	provider string

	gateway paymentdomain.Gateway
}

func NewService(p ServiceParam) paymentdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("payment.service"),

		genID:    p.GenID,
		clock:    p.Clock,
		provider: p.Cfg.Payment.Provider,

		gateway: p.Gateway,
	}
}

// Charge runs one charge against the gateway and records the outcome. A
// declined charge is a recorded fact, not an error.
func (s *Service) Charge(ctx context.Context, req paymentdomain.ChargeRequest) (paymentdomain.Payment, error) {
	result, err := s.gateway.Charge(ctx, req)
	if err != nil {
		return paymentdomain.Payment{}, err
	}

	now := s.clock.Now()
	payment := paymentdomain.Payment{
		ID:                s.genID.Generate(),
		UserID:            req.UserID,
		SubscriptionID:    req.SubscriptionID,
		Amount:            req.Amount,
		Currency:          req.Currency,
		Status:            result.Status,
		Provider:          s.provider,
		ProviderPaymentID: result.ProviderPaymentID,
		FailureReason:     result.FailureReason,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.db.WithContext(ctx).Create(&payment).Error; err != nil {
		return paymentdomain.Payment{}, err
	}

	s.log.Info("charge recorded",
		zap.Int64("payment_id", int64(payment.ID)),
		zap.Int64("user_id", int64(req.UserID)),
		zap.String("status", string(payment.Status)),
	)
	return payment, nil
}
