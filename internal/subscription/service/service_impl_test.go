package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smartreceipt/smartreceipt/internal/clock"
	plandomain "github.com/smartreceipt/smartreceipt/internal/plan/domain"
	planservice "github.com/smartreceipt/smartreceipt/internal/plan/service"
	subscriptiondomain "github.com/smartreceipt/smartreceipt/internal/subscription/domain"
	"github.com/smartreceipt/smartreceipt/internal/subscription/repository"
)

type fixture struct {
	svc   subscriptiondomain.Service
	db    *gorm.DB
	clk   *clock.FakeClock
	basic plandomain.SubscriptionPlan
	free  plandomain.SubscriptionPlan
}

func intPtr(v int) *int { return &v }

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&plandomain.SubscriptionPlan{},
		&subscriptiondomain.Subscription{},
	))
	require.NoError(t, db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_subscriptions_user_open
		 ON subscriptions (user_id) WHERE status IN ('trial', 'active')`,
	).Error)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	basic := plandomain.SubscriptionPlan{
		ID: node.Generate(), Name: "Basic", PlanType: plandomain.PlanTypeBasic,
		MonthlyScanLimit: 100, StorageLimitMB: 1024,
		TrialDays: intPtr(14), IsActive: true,
	}
	free := plandomain.SubscriptionPlan{
		ID: node.Generate(), Name: "Free", PlanType: plandomain.PlanTypeFree,
		MonthlyScanLimit: 10, StorageLimitMB: 100, IsActive: true,
	}
	require.NoError(t, db.Create(&basic).Error)
	require.NoError(t, db.Create(&free).Error)

	plansvc := planservice.NewService(planservice.ServiceParam{DB: db, Log: zap.NewNop()})
	svc := NewService(ServiceParam{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clk,
		Repo:    repository.Provide(),
		PlanSvc: plansvc,
	})

	return &fixture{svc: svc, db: db, clk: clk, basic: basic, free: free}
}

func TestSubscribeStartsTrialWhenPlanHasTrialDays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{
		UserID:        1,
		PlanID:        f.basic.ID,
		BillingPeriod: subscriptiondomain.BillingPeriodMonthly,
	})
	require.NoError(t, err)

	assert.Equal(t, subscriptiondomain.StatusTrial, sub.Status)
	assert.Equal(t, f.clk.Now().AddDate(0, 0, 14), sub.EndDate)
	assert.True(t, sub.AutoRenew)
}

func TestSubscribeWithoutTrialIsActiveForBillingPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{
		UserID:        2,
		PlanID:        f.free.ID,
		BillingPeriod: subscriptiondomain.BillingPeriodYearly,
	})
	require.NoError(t, err)

	assert.Equal(t, subscriptiondomain.StatusActive, sub.Status)
	assert.Equal(t, f.clk.Now().AddDate(1, 0, 0), sub.EndDate)
}

func TestSubscribeRejectsSecondOpenSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{
		UserID: 3, PlanID: f.basic.ID, BillingPeriod: subscriptiondomain.BillingPeriodMonthly,
	})
	require.NoError(t, err)

	_, err = f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{
		UserID: 3, PlanID: f.free.ID, BillingPeriod: subscriptiondomain.BillingPeriodMonthly,
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrAlreadySubscribed)
}

func TestSubscribeRejectsUnknownBillingPeriod(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Subscribe(context.Background(), subscriptiondomain.SubscribeRequest{
		UserID: 4, PlanID: f.basic.ID, BillingPeriod: "weekly",
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidBillingPeriod)
}

func TestConcurrentSubscribeAdmitsExactlyOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const attempts = 5
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{
				UserID: 5, PlanID: f.basic.ID, BillingPeriod: subscriptiondomain.BillingPeriodMonthly,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, subscriptiondomain.ErrAlreadySubscribed)
		}
	}
	assert.Equal(t, 1, succeeded)

	var open int64
	require.NoError(t, f.db.Model(&subscriptiondomain.Subscription{}).
		Where("user_id = ? AND status IN ('trial', 'active')", 5).
		Count(&open).Error)
	assert.Equal(t, int64(1), open)
}

func TestCancelClosesOpenSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{
		UserID: 6, PlanID: f.basic.ID, BillingPeriod: subscriptiondomain.BillingPeriodMonthly,
	})
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(ctx, subscriptiondomain.CancelRequest{
		UserID: 6, Reason: "too expensive",
	})
	require.NoError(t, err)

	assert.Equal(t, subscriptiondomain.StatusCancelled, cancelled.Status)
	assert.False(t, cancelled.AutoRenew)
	require.NotNil(t, cancelled.CancelledAt)
	require.NotNil(t, cancelled.CancellationReason)
	assert.Equal(t, "too expensive", *cancelled.CancellationReason)

	// Cancelled means free to enroll again.
	_, err = f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{
		UserID: 6, PlanID: f.free.ID, BillingPeriod: subscriptiondomain.BillingPeriodMonthly,
	})
	require.NoError(t, err)
}

func TestCancelWithoutOpenSubscription(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Cancel(context.Background(), subscriptiondomain.CancelRequest{UserID: 404})
	assert.ErrorIs(t, err, subscriptiondomain.ErrNoActiveSubscription)
}

func TestGetActiveExpiresPastDueRowLazily(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{
		UserID: 7, PlanID: f.basic.ID, BillingPeriod: subscriptiondomain.BillingPeriodMonthly,
	})
	require.NoError(t, err)

	got, err := f.svc.GetActiveByUserID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, got.ID)
	require.NotNil(t, got.Plan)
	assert.Equal(t, plandomain.PlanTypeBasic, got.Plan.PlanType)

	// Past the trial end the open row is expired on read.
	f.clk.Advance(15 * 24 * time.Hour)

	_, err = f.svc.GetActiveByUserID(ctx, 7)
	assert.ErrorIs(t, err, subscriptiondomain.ErrNoActiveSubscription)

	var stored subscriptiondomain.Subscription
	require.NoError(t, f.db.Where("id = ?", sub.ID).First(&stored).Error)
	assert.Equal(t, subscriptiondomain.StatusExpired, stored.Status)
}

func TestSubscribeReplacesStaleOpenRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{
		UserID: 8, PlanID: f.basic.ID, BillingPeriod: subscriptiondomain.BillingPeriodMonthly,
	})
	require.NoError(t, err)

	f.clk.Advance(20 * 24 * time.Hour)

	second, err := f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{
		UserID: 8, PlanID: f.free.ID, BillingPeriod: subscriptiondomain.BillingPeriodMonthly,
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	var stale subscriptiondomain.Subscription
	require.NoError(t, f.db.Where("id = ?", first.ID).First(&stale).Error)
	assert.Equal(t, subscriptiondomain.StatusExpired, stale.Status)
}

func TestExtendBillingPeriodReactivatesSuspended(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{
		UserID: 9, PlanID: f.free.ID, BillingPeriod: subscriptiondomain.BillingPeriodMonthly,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.Suspend(ctx, sub.ID))

	var suspended subscriptiondomain.Subscription
	require.NoError(t, f.db.Where("id = ?", sub.ID).First(&suspended).Error)
	assert.Equal(t, subscriptiondomain.StatusSuspended, suspended.Status)

	paidAt := f.clk.Now().Add(24 * time.Hour)
	require.NoError(t, f.svc.ExtendBillingPeriod(ctx, sub.ID, paidAt))

	var extended subscriptiondomain.Subscription
	require.NoError(t, f.db.Where("id = ?", sub.ID).First(&extended).Error)
	assert.Equal(t, subscriptiondomain.StatusActive, extended.Status)
	assert.Equal(t, sub.EndDate.AddDate(0, 1, 0).Unix(), extended.EndDate.Unix())
}

func TestExtendBillingPeriodLeavesClosedRowsAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{
		UserID: 10, PlanID: f.free.ID, BillingPeriod: subscriptiondomain.BillingPeriodMonthly,
	})
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, subscriptiondomain.CancelRequest{UserID: 10})
	require.NoError(t, err)

	require.NoError(t, f.svc.ExtendBillingPeriod(ctx, sub.ID, f.clk.Now()))

	var stored subscriptiondomain.Subscription
	require.NoError(t, f.db.Where("id = ?", sub.ID).First(&stored).Error)
	assert.Equal(t, subscriptiondomain.StatusCancelled, stored.Status)
}

func TestSuspendRequiresOpenSubscription(t *testing.T) {
	f := newFixture(t)

	err := f.svc.Suspend(context.Background(), snowflake.ID(12345))
	assert.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionNotFound)
}
