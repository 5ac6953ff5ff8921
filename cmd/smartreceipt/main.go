package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/smartreceipt/smartreceipt/internal/clock"
	"github.com/smartreceipt/smartreceipt/internal/config"
	"github.com/smartreceipt/smartreceipt/internal/migration"
	"github.com/smartreceipt/smartreceipt/internal/observability"
	"github.com/smartreceipt/smartreceipt/internal/payment"
	"github.com/smartreceipt/smartreceipt/internal/plan"
	"github.com/smartreceipt/smartreceipt/internal/quota"
	"github.com/smartreceipt/smartreceipt/internal/ratelimit"
	"github.com/smartreceipt/smartreceipt/internal/receipt"
	"github.com/smartreceipt/smartreceipt/internal/scanner"
	"github.com/smartreceipt/smartreceipt/internal/seed"
	"github.com/smartreceipt/smartreceipt/internal/server"
	"github.com/smartreceipt/smartreceipt/internal/storage"
	"github.com/smartreceipt/smartreceipt/internal/subscription"
	"github.com/smartreceipt/smartreceipt/internal/usage"
	"github.com/smartreceipt/smartreceipt/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		migration.Module,

		plan.Module,
		seed.Module,
		subscription.Module,
		usage.Module,
		quota.Module,
		scanner.Module,
		storage.Module,
		receipt.Module,
		payment.Module,
		ratelimit.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
