package quota

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smartreceipt/smartreceipt/internal/clock"
	"github.com/smartreceipt/smartreceipt/internal/metrics"
	"github.com/smartreceipt/smartreceipt/internal/plan"
	plandomain "github.com/smartreceipt/smartreceipt/internal/plan/domain"
	subscriptiondomain "github.com/smartreceipt/smartreceipt/internal/subscription/domain"
	usagedomain "github.com/smartreceipt/smartreceipt/internal/usage/domain"
)

// Snapshot is the effective quota position for one user in the current
// billing period, combining plan ceilings with consumed counters.
type Snapshot struct {
	Tier  plandomain.PlanType `json:"tier"`
	Year  int                 `json:"year"`
	Month int                 `json:"month"`

	ScanLimit      int64   `json:"scan_limit"`
	ScanUnlimited  bool    `json:"scan_unlimited"`
	ScanCount      int64   `json:"scan_count"`
	RemainingScans int64   `json:"remaining_scans"`
	ScanPercent    float64 `json:"scan_percent"`
	ScanExceeded   bool    `json:"scan_exceeded"`

	StorageLimitBytes int64 `json:"storage_limit_bytes"`
	StorageUsedBytes  int64 `json:"storage_used_bytes"`
	APICallCount      int64 `json:"api_call_count"`
}

type Service interface {
	// Snapshot reports the user's quota position for the current period.
	Snapshot(ctx context.Context, userID snowflake.ID) (Snapshot, error)

	// CanScan is an optimistic pre-check. A true result is advisory only;
	// CommitScan is the sole authority under concurrency.
	CanScan(ctx context.Context, userID snowflake.ID) (bool, error)

	// CommitScan consumes one scan slot on the caller's transaction,
	// returning *QuotaExceededError when the monthly ceiling is reached.
	// The conditional increment in the usage ledger makes the check and
	// the consume a single atomic statement.
	CommitScan(ctx context.Context, tx *gorm.DB, userID snowflake.ID) error
}

type service struct {
	log     *zap.Logger
	clock   clock.Clock
	subs    subscriptiondomain.Service
	usage   usagedomain.Service
	catalog *plan.CatalogHolder
}

func NewService(
	log *zap.Logger,
	clk clock.Clock,
	subs subscriptiondomain.Service,
	usage usagedomain.Service,
	catalog *plan.CatalogHolder,
) Service {
	return &service{
		log:     log.Named("quota.service"),
		clock:   clk,
		subs:    subs,
		usage:   usage,
		catalog: catalog,
	}
}

// entitlement is the resolved plan ceiling for a user. Users without an open
// subscription fall back to the free tier from the catalog config.
type entitlement struct {
	tier              plandomain.PlanType
	scanLimit         ScanLimit
	storageLimitBytes int64
	subscriptionID    *snowflake.ID
}

func (s *service) resolve(ctx context.Context, userID snowflake.ID) (entitlement, error) {
	sub, err := s.subs.GetActiveByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, subscriptiondomain.ErrNoActiveSubscription) {
			cfg := s.catalog.Get()
			return entitlement{
				tier:              plandomain.PlanTypeFree,
				scanLimit:         Bounded(int64(cfg.FreeTierScanLimit)),
				storageLimitBytes: 100 * 1024 * 1024,
			}, nil
		}
		return entitlement{}, err
	}
	if sub.Plan == nil {
		return entitlement{}, errors.New("subscription loaded without plan")
	}
	subID := sub.ID
	return entitlement{
		tier:              sub.Plan.PlanType,
		scanLimit:         FromPlanLimit(sub.Plan.MonthlyScanLimit),
		storageLimitBytes: sub.Plan.StorageLimitBytes(),
		subscriptionID:    &subID,
	}, nil
}

func (s *service) currentPeriod() (int, int) {
	now := s.clock.Now()
	return now.Year(), int(now.Month())
}

func (s *service) Snapshot(ctx context.Context, userID snowflake.ID) (Snapshot, error) {
	ent, err := s.resolve(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}

	year, month := s.currentPeriod()
	used, err := s.usage.Get(ctx, userID, year, month)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Tier:              ent.tier,
		Year:              year,
		Month:             month,
		ScanCount:         used.ScanCount,
		StorageLimitBytes: ent.storageLimitBytes,
		StorageUsedBytes:  used.StorageUsedBytes,
		APICallCount:      used.APICallCount,
	}
	if ent.scanLimit.IsUnlimited() {
		snap.ScanUnlimited = true
	} else {
		snap.ScanLimit = ent.scanLimit.Value()
		snap.RemainingScans = ent.scanLimit.Remaining(used.ScanCount)
		if snap.ScanLimit > 0 {
			snap.ScanPercent = float64(used.ScanCount) / float64(snap.ScanLimit) * 100
		}
		snap.ScanExceeded = used.ScanCount >= snap.ScanLimit
	}
	return snap, nil
}

func (s *service) CanScan(ctx context.Context, userID snowflake.ID) (bool, error) {
	ent, err := s.resolve(ctx, userID)
	if err != nil {
		return false, err
	}
	if ent.scanLimit.IsUnlimited() {
		return true, nil
	}

	year, month := s.currentPeriod()
	used, err := s.usage.Get(ctx, userID, year, month)
	if err != nil {
		return false, err
	}
	return used.ScanCount < ent.scanLimit.Value(), nil
}

func (s *service) CommitScan(ctx context.Context, tx *gorm.DB, userID snowflake.ID) error {
	ent, err := s.resolve(ctx, userID)
	if err != nil {
		return err
	}

	year, month := s.currentPeriod()

	if ent.scanLimit.IsUnlimited() {
		return s.usage.IncrementTx(ctx, tx, usagedomain.IncrementRequest{
			UserID:         userID,
			Year:           year,
			Month:          month,
			Field:          usagedomain.FieldScanCount,
			Amount:         1,
			SubscriptionID: ent.subscriptionID,
		})
	}

	err = s.usage.IncrementScanCapped(ctx, tx, userID, year, month, ent.scanLimit.Value(), ent.subscriptionID)
	if err != nil {
		if errors.Is(err, usagedomain.ErrScanLimitReached) {
			metrics.QuotaDenialsTotal.Inc()
			s.log.Info("scan denied, quota exhausted",
				zap.Int64("user_id", int64(userID)),
				zap.String("tier", string(ent.tier)),
				zap.Int64("scan_limit", ent.scanLimit.Value()),
			)
			return &QuotaExceededError{
				Tier:      ent.tier,
				ScanLimit: ent.scanLimit.Value(),
				Used:      ent.scanLimit.Value(),
			}
		}
		return err
	}
	return nil
}
