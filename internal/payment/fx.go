package payment

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smartreceipt/smartreceipt/internal/config"
	"github.com/smartreceipt/smartreceipt/internal/payment/adapters"
	paymentdomain "github.com/smartreceipt/smartreceipt/internal/payment/domain"
	"github.com/smartreceipt/smartreceipt/internal/payment/gateway"
	"github.com/smartreceipt/smartreceipt/internal/payment/service"
	"github.com/smartreceipt/smartreceipt/internal/payment/webhook"
)

// NewGateway selects the charge adapter. An empty API key means dev mode:
// charges are mocked rather than sent to a live provider.
func NewGateway(cfg config.Config, log *zap.Logger) paymentdomain.Gateway {
	if cfg.Payment.APIKey == "" || cfg.Payment.Provider == "mock" {
		return gateway.NewMockGateway()
	}
	return gateway.NewHTTPGateway(cfg, log)
}

var Module = fx.Module("payment",
	fx.Provide(
		adapters.NewRegistry,
		NewGateway,
		service.NewService,
		webhook.NewService,
	),
)
