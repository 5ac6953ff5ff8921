package receipt

import (
	"go.uber.org/fx"

	"github.com/smartreceipt/smartreceipt/internal/receipt/service"
)

var Module = fx.Module("receipt",
	fx.Provide(service.NewService),
)
