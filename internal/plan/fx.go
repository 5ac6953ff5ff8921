package plan

import (
	"github.com/smartreceipt/smartreceipt/internal/plan/service"
	"go.uber.org/fx"
)

var Module = fx.Module("plan.service",
	fx.Provide(NewCatalogHolder),
	fx.Provide(service.NewService),
)
