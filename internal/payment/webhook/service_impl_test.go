package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
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
	"github.com/smartreceipt/smartreceipt/internal/payment/adapters"
	paymentdomain "github.com/smartreceipt/smartreceipt/internal/payment/domain"
	plandomain "github.com/smartreceipt/smartreceipt/internal/plan/domain"
	planservice "github.com/smartreceipt/smartreceipt/internal/plan/service"
	subscriptiondomain "github.com/smartreceipt/smartreceipt/internal/subscription/domain"
	subscriptionrepository "github.com/smartreceipt/smartreceipt/internal/subscription/repository"
	subscriptionservice "github.com/smartreceipt/smartreceipt/internal/subscription/service"
)

const testSecret = "whsec_test"

type fixture struct {
	svc  paymentdomain.WebhookService
	subs subscriptiondomain.Service
	db   *gorm.DB
	clk  *clock.FakeClock
	sub  subscriptiondomain.Subscription
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&plandomain.SubscriptionPlan{},
		&subscriptiondomain.Subscription{},
		&paymentdomain.Payment{},
		&paymentdomain.EventRecord{},
	))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	plan := plandomain.SubscriptionPlan{
		ID: node.Generate(), Name: "Basic", PlanType: plandomain.PlanTypeBasic,
		MonthlyScanLimit: 100, StorageLimitMB: 1024, IsActive: true,
	}
	require.NoError(t, db.Create(&plan).Error)

	plansvc := planservice.NewService(planservice.ServiceParam{DB: db, Log: log})
	subs := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: clk,
		Repo: subscriptionrepository.Provide(), PlanSvc: plansvc,
	})

	sub, err := subs.Subscribe(context.Background(), subscriptiondomain.SubscribeRequest{
		UserID: 1, PlanID: plan.ID, BillingPeriod: subscriptiondomain.BillingPeriodMonthly,
	})
	require.NoError(t, err)

	providerRef := "iyz-sub-1"
	require.NoError(t, db.Model(&subscriptiondomain.Subscription{}).
		Where("id = ?", sub.ID).
		Update("provider_subscription_id", providerRef).Error)

	registry := adapters.NewRegistry(config.Config{
		Payment: config.PaymentConfig{
			IyzicoWebhookSecret: testSecret,
			StripeWebhookSecret: testSecret,
		},
	}, clk)

	svc := NewService(ServiceParam{
		DB: db, Log: log, GenID: node, Clock: clk,
		Registry: registry, Subs: subs,
	})

	return &fixture{svc: svc, subs: subs, db: db, clk: clk, sub: sub}
}

func iyzicoPayload(eventID, eventType string) []byte {
	return []byte(fmt.Sprintf(
		`{"iyziEventId":%q,"iyziEventType":%q,"subscriptionReferenceCode":"iyz-sub-1","price":99,"currency":"TRY"}`,
		eventID, eventType,
	))
}

func sign(payload []byte) http.Header {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(payload)
	h := http.Header{}
	h.Set("X-Iyzico-Signature", hex.EncodeToString(mac.Sum(nil)))
	return h
}

func TestHandleRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	payload := iyzicoPayload("evt-1", "subscription.order.success")

	h := http.Header{}
	h.Set("X-Iyzico-Signature", "deadbeef")

	err := f.svc.Handle(context.Background(), "iyzico", payload, h)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)

	var events int64
	require.NoError(t, f.db.Model(&paymentdomain.EventRecord{}).Count(&events).Error)
	assert.Equal(t, int64(0), events)
}

func TestHandleRejectsUnknownProvider(t *testing.T) {
	f := newFixture(t)

	err := f.svc.Handle(context.Background(), "paypal", []byte(`{}`), http.Header{})
	assert.ErrorIs(t, err, paymentdomain.ErrUnknownProvider)
}

func TestSucceededPaymentExtendsBillingPeriod(t *testing.T) {
	f := newFixture(t)
	payload := iyzicoPayload("evt-2", "subscription.order.success")

	require.NoError(t, f.svc.Handle(context.Background(), "iyzico", payload, sign(payload)))

	var stored subscriptiondomain.Subscription
	require.NoError(t, f.db.Where("id = ?", f.sub.ID).First(&stored).Error)
	assert.Equal(t, subscriptiondomain.StatusActive, stored.Status)
	assert.True(t, stored.EndDate.After(f.sub.EndDate))

	var payments []paymentdomain.Payment
	require.NoError(t, f.db.Find(&payments).Error)
	require.Len(t, payments, 1)
	assert.Equal(t, paymentdomain.PaymentStatusSucceeded, payments[0].Status)
	assert.Equal(t, 99.0, payments[0].Amount)
}

func TestFailedPaymentSuspendsSubscription(t *testing.T) {
	f := newFixture(t)
	payload := iyzicoPayload("evt-3", "subscription.order.failure")

	require.NoError(t, f.svc.Handle(context.Background(), "iyzico", payload, sign(payload)))

	var stored subscriptiondomain.Subscription
	require.NoError(t, f.db.Where("id = ?", f.sub.ID).First(&stored).Error)
	assert.Equal(t, subscriptiondomain.StatusSuspended, stored.Status)

	var payments []paymentdomain.Payment
	require.NoError(t, f.db.Find(&payments).Error)
	require.Len(t, payments, 1)
	assert.Equal(t, paymentdomain.PaymentStatusFailed, payments[0].Status)
}

func TestReplayedDeliveryIsIdempotent(t *testing.T) {
	f := newFixture(t)
	payload := iyzicoPayload("evt-4", "subscription.order.success")
	ctx := context.Background()

	require.NoError(t, f.svc.Handle(ctx, "iyzico", payload, sign(payload)))

	var afterFirst subscriptiondomain.Subscription
	require.NoError(t, f.db.Where("id = ?", f.sub.ID).First(&afterFirst).Error)

	require.NoError(t, f.svc.Handle(ctx, "iyzico", payload, sign(payload)))

	var afterSecond subscriptiondomain.Subscription
	require.NoError(t, f.db.Where("id = ?", f.sub.ID).First(&afterSecond).Error)
	assert.Equal(t, afterFirst.EndDate.Unix(), afterSecond.EndDate.Unix())

	var payments int64
	require.NoError(t, f.db.Model(&paymentdomain.Payment{}).Count(&payments).Error)
	assert.Equal(t, int64(1), payments)

	var events int64
	require.NoError(t, f.db.Model(&paymentdomain.EventRecord{}).Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestRetryAfterTransientFailureCompletesProcessing(t *testing.T) {
	f := newFixture(t)
	payload := iyzicoPayload("evt-6", "subscription.order.success")
	ctx := context.Background()

	// Take the payments table away so the first delivery fails after the
	// event record has been written.
	require.NoError(t, f.db.Exec("ALTER TABLE payments RENAME TO payments_gone").Error)
	require.Error(t, f.svc.Handle(ctx, "iyzico", payload, sign(payload)))

	var record paymentdomain.EventRecord
	require.NoError(t, f.db.Where("provider_event_id = ?", "evt-6").First(&record).Error)
	assert.Nil(t, record.ProcessedAt)

	var beforeRetry subscriptiondomain.Subscription
	require.NoError(t, f.db.Where("id = ?", f.sub.ID).First(&beforeRetry).Error)
	assert.Equal(t, f.sub.EndDate.Unix(), beforeRetry.EndDate.Unix())

	require.NoError(t, f.db.Exec("ALTER TABLE payments_gone RENAME TO payments").Error)
	require.NoError(t, f.svc.Handle(ctx, "iyzico", payload, sign(payload)))

	var stored subscriptiondomain.Subscription
	require.NoError(t, f.db.Where("id = ?", f.sub.ID).First(&stored).Error)
	assert.True(t, stored.EndDate.After(f.sub.EndDate))

	var payments int64
	require.NoError(t, f.db.Model(&paymentdomain.Payment{}).Count(&payments).Error)
	assert.Equal(t, int64(1), payments)

	require.NoError(t, f.db.Where("provider_event_id = ?", "evt-6").First(&record).Error)
	require.NotNil(t, record.ProcessedAt)

	// A further replay after success stays a no-op.
	require.NoError(t, f.svc.Handle(ctx, "iyzico", payload, sign(payload)))
	require.NoError(t, f.db.Model(&paymentdomain.Payment{}).Count(&payments).Error)
	assert.Equal(t, int64(1), payments)
}

func TestUnknownEventTypeIsRecordedAndIgnored(t *testing.T) {
	f := newFixture(t)
	payload := iyzicoPayload("evt-5", "subscription.updated")

	require.NoError(t, f.svc.Handle(context.Background(), "iyzico", payload, sign(payload)))

	var stored subscriptiondomain.Subscription
	require.NoError(t, f.db.Where("id = ?", f.sub.ID).First(&stored).Error)
	assert.Equal(t, f.sub.Status, stored.Status)

	var events int64
	require.NoError(t, f.db.Model(&paymentdomain.EventRecord{}).Count(&events).Error)
	assert.Equal(t, int64(1), events)

	var payments int64
	require.NoError(t, f.db.Model(&paymentdomain.Payment{}).Count(&payments).Error)
	assert.Equal(t, int64(0), payments)
}
