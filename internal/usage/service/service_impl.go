package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smartreceipt/smartreceipt/internal/clock"
	usagedomain "github.com/smartreceipt/smartreceipt/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p ServiceParam) usagedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("usage.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Get(ctx context.Context, userID snowflake.ID, year, month int) (usagedomain.Snapshot, error) {
	snapshot := usagedomain.Snapshot{
		UserID: userID,
		Year:   year,
		Month:  month,
	}

	var row usagedomain.UsageTracking
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND year = ? AND month = ?", userID, year, month).
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return snapshot, nil
		}
		return usagedomain.Snapshot{}, err
	}

	snapshot.ScanCount = row.ScanCount
	snapshot.StorageUsedBytes = row.StorageUsedBytes
	snapshot.APICallCount = row.APICallCount
	return snapshot, nil
}

func (s *Service) Increment(ctx context.Context, req usagedomain.IncrementRequest) error {
	return s.IncrementTx(ctx, s.db, req)
}

// IncrementTx upserts the period row and bumps the counter in one statement,
// so two first-increments of a month cannot race each other.
func (s *Service) IncrementTx(ctx context.Context, tx *gorm.DB, req usagedomain.IncrementRequest) error {
	col := req.Field.Column()
	if col == "" {
		return usagedomain.ErrInvalidField
	}
	if req.Amount <= 0 {
		return usagedomain.ErrInvalidAmount
	}

	now := s.clock.Now()
	row := s.newRow(req.UserID, req.Year, req.Month, req.SubscriptionID)
	switch req.Field {
	case usagedomain.FieldScanCount:
		row.ScanCount = req.Amount
	case usagedomain.FieldStorageBytes:
		row.StorageUsedBytes = req.Amount
	case usagedomain.FieldAPICalls:
		row.APICallCount = req.Amount
	}

	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "year"}, {Name: "month"}},
		DoUpdates: clause.Assignments(map[string]any{
			col:          gorm.Expr(col+" + ?", req.Amount),
			"updated_at": now,
		}),
	}).Create(&row).Error
}

// IncrementScanCapped enforces the monthly ceiling at increment time: the
// row is created if absent (conflict-tolerant), then a single conditional
// update consumes one slot. The limit's authority lives here, not in the
// optimistic CanScan pre-check.
func (s *Service) IncrementScanCapped(ctx context.Context, tx *gorm.DB, userID snowflake.ID, year, month int, max int64, subscriptionID *snowflake.ID) error {
	if max < 0 {
		return usagedomain.ErrInvalidAmount
	}

	row := s.newRow(userID, year, month, subscriptionID)
	if err := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "year"}, {Name: "month"}},
		DoNothing: true,
	}).Create(&row).Error; err != nil {
		return err
	}

	res := tx.WithContext(ctx).Model(&usagedomain.UsageTracking{}).
		Where("user_id = ? AND year = ? AND month = ?", userID, year, month).
		Where("scan_count < ?", max).
		Updates(map[string]any{
			"scan_count": gorm.Expr("scan_count + 1"),
			"updated_at": s.clock.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return usagedomain.ErrScanLimitReached
	}
	return nil
}

func (s *Service) newRow(userID snowflake.ID, year, month int, subscriptionID *snowflake.ID) usagedomain.UsageTracking {
	now := s.clock.Now()
	return usagedomain.UsageTracking{
		ID:             s.genID.Generate(),
		UserID:         userID,
		SubscriptionID: subscriptionID,
		Year:           year,
		Month:          month,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
