package seed

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smartreceipt/smartreceipt/internal/clock"
	"github.com/smartreceipt/smartreceipt/internal/config"
	"github.com/smartreceipt/smartreceipt/internal/plan"
	plandomain "github.com/smartreceipt/smartreceipt/internal/plan/domain"
)

func newParams(t *testing.T, holder *plan.CatalogHolder) Params {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&plandomain.SubscriptionPlan{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	if holder == nil {
		holder, err = plan.NewCatalogHolder(config.Config{PlanConfigPath: t.TempDir()}, zap.NewNop())
		require.NoError(t, err)
	}

	return Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clock.NewFakeClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)),
		Catalog: holder,
	}
}

func TestEnsurePlansSeedsFourTiers(t *testing.T) {
	p := newParams(t, nil)
	ctx := context.Background()

	require.NoError(t, EnsurePlans(ctx, p))

	var plans []plandomain.SubscriptionPlan
	require.NoError(t, p.DB.Order("monthly_price asc").Find(&plans).Error)
	require.Len(t, plans, 4)

	free := plans[0]
	assert.Equal(t, plandomain.PlanTypeFree, free.PlanType)
	assert.Equal(t, 10, free.MonthlyScanLimit)
	assert.False(t, free.HasTrial())

	enterprise := plans[3]
	assert.Equal(t, plandomain.PlanTypeEnterprise, enterprise.PlanType)
	assert.Equal(t, plandomain.UnlimitedScanLimit, enterprise.MonthlyScanLimit)
	require.NotNil(t, enterprise.TrialDays)
	assert.Equal(t, 30, *enterprise.TrialDays)
}

func TestEnsurePlansIsIdempotent(t *testing.T) {
	p := newParams(t, nil)
	ctx := context.Background()

	require.NoError(t, EnsurePlans(ctx, p))
	require.NoError(t, EnsurePlans(ctx, p))

	var count int64
	require.NoError(t, p.DB.Model(&plandomain.SubscriptionPlan{}).Count(&count).Error)
	assert.Equal(t, int64(4), count)
}

func TestApplyOverrideAdjustsSeededTier(t *testing.T) {
	tiers := defaultPlans()
	pro := &tiers[2]
	require.Equal(t, plandomain.PlanTypePro, pro.PlanType)

	newLimit := 2000
	newPrice := 349.0
	applyOverride(pro, []plan.PlanOverride{{
		PlanType:         "pro",
		MonthlyScanLimit: &newLimit,
		MonthlyPrice:     &newPrice,
	}})

	assert.Equal(t, 2000, pro.MonthlyScanLimit)
	assert.Equal(t, 349.0, pro.MonthlyPrice)
	// Untouched fields keep their defaults.
	assert.Equal(t, int64(10240), pro.StorageLimitMB)
}
