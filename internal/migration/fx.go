package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/smartreceipt/smartreceipt/internal/config"
	paymentdomain "github.com/smartreceipt/smartreceipt/internal/payment/domain"
	plandomain "github.com/smartreceipt/smartreceipt/internal/plan/domain"
	receiptdomain "github.com/smartreceipt/smartreceipt/internal/receipt/domain"
	subscriptiondomain "github.com/smartreceipt/smartreceipt/internal/subscription/domain"
	usagedomain "github.com/smartreceipt/smartreceipt/internal/usage/domain"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}
		return autoMigrate(conn)
	}),
)

// autoMigrate covers sqlite and mysql development databases. AutoMigrate
// cannot express partial unique indexes, so the open-subscription guard is
// added with raw SQL afterwards (sqlite supports partial indexes; on mysql
// the transactional check in Subscribe is the only guard).
func autoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(
		&plandomain.SubscriptionPlan{},
		&subscriptiondomain.Subscription{},
		&usagedomain.UsageTracking{},
		&receiptdomain.Receipt{},
		&receiptdomain.ReceiptItem{},
		&paymentdomain.Payment{},
		&paymentdomain.EventRecord{},
	); err != nil {
		return err
	}

	if conn.Dialector.Name() == "sqlite" {
		return conn.Exec(
			`CREATE UNIQUE INDEX IF NOT EXISTS ux_subscriptions_user_open
			 ON subscriptions (user_id) WHERE status IN ('trial', 'active')`,
		).Error
	}
	return nil
}
