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
	"github.com/smartreceipt/smartreceipt/internal/config"
	"github.com/smartreceipt/smartreceipt/internal/plan"
	plandomain "github.com/smartreceipt/smartreceipt/internal/plan/domain"
	planservice "github.com/smartreceipt/smartreceipt/internal/plan/service"
	"github.com/smartreceipt/smartreceipt/internal/quota"
	receiptdomain "github.com/smartreceipt/smartreceipt/internal/receipt/domain"
	"github.com/smartreceipt/smartreceipt/internal/scanner"
	subscriptiondomain "github.com/smartreceipt/smartreceipt/internal/subscription/domain"
	subscriptionrepository "github.com/smartreceipt/smartreceipt/internal/subscription/repository"
	subscriptionservice "github.com/smartreceipt/smartreceipt/internal/subscription/service"
	usagedomain "github.com/smartreceipt/smartreceipt/internal/usage/domain"
	usageservice "github.com/smartreceipt/smartreceipt/internal/usage/service"
)

type fixture struct {
	svc   receiptdomain.Service
	mock  *scanner.MockScanner
	usage usagedomain.Service
	db    *gorm.DB
	clk   *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&plandomain.SubscriptionPlan{},
		&subscriptiondomain.Subscription{},
		&usagedomain.UsageTracking{},
		&receiptdomain.Receipt{},
		&receiptdomain.ReceiptItem{},
	))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	plansvc := planservice.NewService(planservice.ServiceParam{DB: db, Log: log})
	subs := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: clk,
		Repo: subscriptionrepository.Provide(), PlanSvc: plansvc,
	})
	usage := usageservice.NewService(usageservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: clk,
	})

	holder, err := plan.NewCatalogHolder(config.Config{PlanConfigPath: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)
	quotaSvc := quota.NewService(log, clk, subs, usage, holder)

	mock := scanner.NewMockScanner()
	svc := NewService(ServiceParam{
		DB:      db,
		Log:     log,
		GenID:   node,
		Clock:   clk,
		Scanner: mock,
		Quota:   quotaSvc,
		Usage:   usage,
	})

	return &fixture{svc: svc, mock: mock, usage: usage, db: db, clk: clk}
}

func (f *fixture) scanCount(t *testing.T, userID snowflake.ID) int64 {
	t.Helper()
	now := f.clk.Now()
	snap, err := f.usage.Get(context.Background(), userID, now.Year(), int(now.Month()))
	require.NoError(t, err)
	return snap.ScanCount
}

func TestCreateFromImagePersistsReceiptAndConsumesQuota(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	image := []byte("fake-jpeg-bytes")

	receipt, err := f.svc.CreateFromImage(ctx, receiptdomain.CreateFromImageRequest{
		UserID: 1, Image: image, MimeType: "image/jpeg",
	})
	require.NoError(t, err)

	assert.Equal(t, receiptdomain.SourceAIScan, receipt.Source)
	assert.Equal(t, "Migros", receipt.StoreName)
	assert.Equal(t, 142.50, receipt.TotalAmount)
	assert.Len(t, receipt.Items, 3)
	assert.True(t, receipt.IsProcessed)
	assert.Equal(t, int64(len(image)), receipt.ImageSizeBytes)

	var stored receiptdomain.Receipt
	require.NoError(t, f.db.Preload("Items").Where("id = ?", receipt.ID).First(&stored).Error)
	assert.Len(t, stored.Items, 3)

	assert.Equal(t, int64(1), f.scanCount(t, 1))

	now := f.clk.Now()
	snap, err := f.usage.Get(ctx, 1, now.Year(), int(now.Month()))
	require.NoError(t, err)
	assert.Equal(t, int64(len(image)), snap.StorageUsedBytes)
}

func TestCreateFromImageRejectsEmptyImage(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateFromImage(context.Background(), receiptdomain.CreateFromImageRequest{
		UserID: 1, MimeType: "image/jpeg",
	})
	assert.ErrorIs(t, err, receiptdomain.ErrEmptyImage)
}

func TestFailedScanIsFree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	failed := scanner.Failed("image too blurry")
	f.mock.Fixed = &failed

	_, err := f.svc.CreateFromImage(ctx, receiptdomain.CreateFromImageRequest{
		UserID: 2, Image: []byte("blurry"), MimeType: "image/jpeg",
	})

	var scanErr *receiptdomain.ScanFailedError
	require.ErrorAs(t, err, &scanErr)
	assert.Equal(t, "image too blurry", scanErr.Reason)

	assert.Equal(t, int64(0), f.scanCount(t, 2))
	var receipts int64
	require.NoError(t, f.db.Model(&receiptdomain.Receipt{}).Count(&receipts).Error)
	assert.Equal(t, int64(0), receipts)
}

func TestQuotaDenialSkipsScannerAndPersistsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := snowflake.ID(3)

	// Exhaust the free tier.
	for i := 0; i < 10; i++ {
		_, err := f.svc.CreateFromImage(ctx, receiptdomain.CreateFromImageRequest{
			UserID: userID, Image: []byte("img"), MimeType: "image/jpeg",
		})
		require.NoError(t, err)
	}

	_, err := f.svc.CreateFromImage(ctx, receiptdomain.CreateFromImageRequest{
		UserID: userID, Image: []byte("img"), MimeType: "image/jpeg",
	})
	var quotaErr *quota.QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, plandomain.PlanTypeFree, quotaErr.Tier)

	assert.Equal(t, int64(10), f.scanCount(t, userID))
	var receipts int64
	require.NoError(t, f.db.Model(&receiptdomain.Receipt{}).
		Where("user_id = ?", userID).Count(&receipts).Error)
	assert.Equal(t, int64(10), receipts)
}

// Concurrent uploads with limited slots must never commit more receipts than
// the ceiling allows; the receipt insert rolls back with the denied slot.
func TestConcurrentUploadsNeverOvershootQuota(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := snowflake.ID(4)

	// Pre-consume 7 of the 10 free slots.
	for i := 0; i < 7; i++ {
		_, err := f.svc.CreateFromImage(ctx, receiptdomain.CreateFromImageRequest{
			UserID: userID, Image: []byte("img"), MimeType: "image/jpeg",
		})
		require.NoError(t, err)
	}

	const attempts = 6
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.CreateFromImage(ctx, receiptdomain.CreateFromImageRequest{
				UserID: userID, Image: []byte("img"), MimeType: "image/jpeg",
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			var quotaErr *quota.QuotaExceededError
			require.ErrorAs(t, err, &quotaErr)
		}
	}
	assert.Equal(t, 3, succeeded)

	assert.Equal(t, int64(10), f.scanCount(t, userID))
	var receipts int64
	require.NoError(t, f.db.Model(&receiptdomain.Receipt{}).
		Where("user_id = ?", userID).Count(&receipts).Error)
	assert.Equal(t, int64(10), receipts)
}

func TestCreateManualValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	base := receiptdomain.CreateManualRequest{
		UserID:      5,
		StoreName:   "A101",
		TotalAmount: 50,
		Items: []receiptdomain.ManualItem{
			{ProductName: "Su", Quantity: 1, UnitPrice: 50, TotalPrice: 50},
		},
	}

	tests := []struct {
		name    string
		mutate  func(*receiptdomain.CreateManualRequest)
		wantErr error
	}{
		{"missing store name", func(r *receiptdomain.CreateManualRequest) { r.StoreName = "  " }, receiptdomain.ErrStoreNameRequired},
		{"zero total", func(r *receiptdomain.CreateManualRequest) { r.TotalAmount = 0 }, receiptdomain.ErrInvalidTotal},
		{"negative total", func(r *receiptdomain.CreateManualRequest) { r.TotalAmount = -5 }, receiptdomain.ErrInvalidTotal},
		{"future date", func(r *receiptdomain.CreateManualRequest) {
			future := f.clk.Now().Add(48 * time.Hour)
			r.ReceiptDate = &future
		}, receiptdomain.ErrFutureDate},
		{"no items", func(r *receiptdomain.CreateManualRequest) { r.Items = nil }, receiptdomain.ErrNoItems},
		{"bad item", func(r *receiptdomain.CreateManualRequest) {
			r.Items = []receiptdomain.ManualItem{{ProductName: "Su", Quantity: 1, TotalPrice: 0}}
		}, receiptdomain.ErrInvalidItem},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			tc.mutate(&req)
			_, err := f.svc.CreateManual(ctx, req)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestManualEntriesAreQuotaFree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	date := f.clk.Now().Add(-24 * time.Hour)
	for i := 0; i < 12; i++ {
		receipt, err := f.svc.CreateManual(ctx, receiptdomain.CreateManualRequest{
			UserID:      6,
			StoreName:   "BIM",
			ReceiptDate: &date,
			TotalAmount: 25,
			Items: []receiptdomain.ManualItem{
				{ProductName: "Makarna", Quantity: 1, UnitPrice: 25, TotalPrice: 25},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, receiptdomain.SourceManual, receipt.Source)
	}

	assert.Equal(t, int64(0), f.scanCount(t, 6))
}

func TestGetByIDIsOwnerScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	date := f.clk.Now().Add(-time.Hour)
	created, err := f.svc.CreateManual(ctx, receiptdomain.CreateManualRequest{
		UserID: 7, StoreName: "Şok", ReceiptDate: &date, TotalAmount: 10,
		Items: []receiptdomain.ManualItem{{ProductName: "Çay", Quantity: 1, UnitPrice: 10, TotalPrice: 10}},
	})
	require.NoError(t, err)

	got, err := f.svc.GetByID(ctx, 7, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Len(t, got.Items, 1)

	_, err = f.svc.GetByID(ctx, 8, created.ID)
	assert.ErrorIs(t, err, receiptdomain.ErrReceiptNotFound)
}

func TestListReturnsNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	date := f.clk.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		_, err := f.svc.CreateManual(ctx, receiptdomain.CreateManualRequest{
			UserID: 9, StoreName: fmt.Sprintf("Store %d", i), ReceiptDate: &date, TotalAmount: 10,
			Items: []receiptdomain.ManualItem{{ProductName: "X", Quantity: 1, UnitPrice: 10, TotalPrice: 10}},
		})
		require.NoError(t, err)
		f.clk.Advance(time.Minute)
	}

	resp, err := f.svc.List(ctx, receiptdomain.ListRequest{UserID: 9, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, resp.Receipts, 3)
	assert.Equal(t, "Store 2", resp.Receipts[0].StoreName)
	assert.False(t, resp.HasMore)
}
