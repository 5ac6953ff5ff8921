// Package seed installs the built-in plan catalog at startup. Seeding is
// idempotent: tiers are matched by plan_type and updated in place.
package seed

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/smartreceipt/smartreceipt/internal/clock"
	"github.com/smartreceipt/smartreceipt/internal/plan"
	plandomain "github.com/smartreceipt/smartreceipt/internal/plan/domain"
)

func intPtr(v int) *int { return &v }

// defaultPlans is the built-in catalog. Prices are TRY per month/year.
func defaultPlans() []plandomain.SubscriptionPlan {
	return []plandomain.SubscriptionPlan{
		{
			Name:             "Free",
			Description:      "Personal use with a small monthly scan allowance",
			PlanType:         plandomain.PlanTypeFree,
			MonthlyPrice:     0,
			YearlyPrice:      0,
			MonthlyScanLimit: 10,
			StorageLimitMB:   100,
			IsActive:         true,
		},
		{
			Name:             "Basic",
			Description:      "For regular users who scan often",
			PlanType:         plandomain.PlanTypeBasic,
			MonthlyPrice:     99,
			YearlyPrice:      990,
			MonthlyScanLimit: 100,
			StorageLimitMB:   1024,
			TrialDays:        intPtr(14),
			IsActive:         true,
		},
		{
			Name:                 "Pro",
			Description:          "Power users and small businesses",
			PlanType:             plandomain.PlanTypePro,
			MonthlyPrice:         299,
			YearlyPrice:          2990,
			MonthlyScanLimit:     1000,
			StorageLimitMB:       10240,
			TrialDays:            intPtr(14),
			IsActive:             true,
			HasAPIAccess:         true,
			HasAdvancedAnalytics: true,
		},
		{
			Name:                 "Enterprise",
			Description:          "Unlimited scanning for teams",
			PlanType:             plandomain.PlanTypeEnterprise,
			MonthlyPrice:         999,
			YearlyPrice:          9990,
			MonthlyScanLimit:     plandomain.UnlimitedScanLimit,
			StorageLimitMB:       102400,
			TrialDays:            intPtr(30),
			IsActive:             true,
			HasAPIAccess:         true,
			HasAdvancedAnalytics: true,
			HasPrioritySupport:   true,
		},
	}
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Catalog *plan.CatalogHolder
}

// EnsurePlans upserts the built-in tiers, applying catalog config overrides.
func EnsurePlans(ctx context.Context, p Params) error {
	overrides := p.Catalog.Get().Overrides
	now := p.Clock.Now()

	for _, tier := range defaultPlans() {
		applyOverride(&tier, overrides)

		tier.ID = p.GenID.Generate()
		tier.CreatedAt = now
		tier.UpdatedAt = now

		err := p.DB.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "plan_type"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "description", "monthly_price", "yearly_price",
				"monthly_scan_limit", "storage_limit_mb", "trial_days",
				"is_active", "has_api_access", "has_advanced_analytics",
				"has_priority_support", "updated_at",
			}),
		}).Create(&tier).Error
		if err != nil {
			return err
		}
	}

	p.Log.Info("plan catalog seeded", zap.Int("tiers", len(defaultPlans())))
	return nil
}

func applyOverride(tier *plandomain.SubscriptionPlan, overrides []plan.PlanOverride) {
	for _, o := range overrides {
		if plandomain.PlanType(o.PlanType) != tier.PlanType {
			continue
		}
		if o.MonthlyScanLimit != nil {
			tier.MonthlyScanLimit = *o.MonthlyScanLimit
		}
		if o.StorageLimitMB != nil {
			tier.StorageLimitMB = *o.StorageLimitMB
		}
		if o.MonthlyPrice != nil {
			tier.MonthlyPrice = *o.MonthlyPrice
		}
		if o.YearlyPrice != nil {
			tier.YearlyPrice = *o.YearlyPrice
		}
		if o.TrialDays != nil {
			if *o.TrialDays > 0 {
				tier.TrialDays = intPtr(*o.TrialDays)
			} else {
				tier.TrialDays = nil
			}
		}
	}
}

var Module = fx.Module("seed",
	fx.Invoke(func(lc fx.Lifecycle, p Params) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return EnsurePlans(ctx, p)
			},
		})
	}),
)
