package subscription

import (
	"github.com/smartreceipt/smartreceipt/internal/subscription/repository"
	"github.com/smartreceipt/smartreceipt/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
