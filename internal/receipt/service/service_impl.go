package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smartreceipt/smartreceipt/internal/clock"
	"github.com/smartreceipt/smartreceipt/internal/metrics"
	"github.com/smartreceipt/smartreceipt/internal/quota"
	receiptdomain "github.com/smartreceipt/smartreceipt/internal/receipt/domain"
	"github.com/smartreceipt/smartreceipt/internal/scanner"
	usagedomain "github.com/smartreceipt/smartreceipt/internal/usage/domain"
	"github.com/smartreceipt/smartreceipt/pkg/db/option"
	"github.com/smartreceipt/smartreceipt/pkg/db/pagination"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock

	Scanner scanner.Scanner
	Quota   quota.Service
	Usage   usagedomain.Service
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID *snowflake.Node
	clock clock.Clock

	scanner scanner.Scanner
	quota   quota.Service
	usage   usagedomain.Service
}

func NewService(p ServiceParam) receiptdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("receipt.service"),

		genID: p.GenID,
		clock: p.Clock,

		scanner: p.Scanner,
		quota:   p.Quota,
		usage:   p.Usage,
	}
}

func (s *Service) CreateFromImage(ctx context.Context, req receiptdomain.CreateFromImageRequest) (receiptdomain.Receipt, error) {
	if len(req.Image) == 0 {
		return receiptdomain.Receipt{}, receiptdomain.ErrEmptyImage
	}

	// Optimistic pre-check saves the expensive scanner round trip. The
	// atomic commit below remains the authority under concurrency.
	ok, err := s.quota.CanScan(ctx, req.UserID)
	if err != nil {
		return receiptdomain.Receipt{}, err
	}
	if !ok {
		metrics.ScansTotal.WithLabelValues(metrics.OutcomeQuotaExceeded).Inc()
		return receiptdomain.Receipt{}, s.quotaExceeded(ctx, req.UserID)
	}

	result, err := s.scanner.Scan(ctx, req.Image, req.MimeType)
	if err != nil {
		return receiptdomain.Receipt{}, err
	}
	if !result.Success {
		metrics.ScansTotal.WithLabelValues(metrics.OutcomeScanFailed).Inc()
		reason := result.ErrorMessage
		if reason == "" {
			reason = "scanner returned no data"
		}
		return receiptdomain.Receipt{}, &receiptdomain.ScanFailedError{Reason: reason}
	}

	now := s.clock.Now()
	userID := req.UserID
	receipt := receiptdomain.Receipt{
		ID:     s.genID.Generate(),
		UserID: &userID,

		StoreName:    strings.TrimSpace(result.StoreName),
		StoreAddress: strings.TrimSpace(result.StoreAddress),
		ReceiptDate:  result.Date,

		TotalAmount: result.TotalAmount,
		TaxAmount:   result.TaxAmount,
		Currency:    defaultCurrency(result.Currency),

		Source:      receiptdomain.SourceAIScan,
		IsProcessed: true,

		ImageURL:       req.ImageURL,
		ImageSizeBytes: int64(len(req.Image)),
		RawOcrText:     result.RawText,

		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, it := range result.Items {
		receipt.Items = append(receipt.Items, receiptdomain.ReceiptItem{
			ID:          s.genID.Generate(),
			ReceiptID:   receipt.ID,
			ProductName: it.Name,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			TotalPrice:  it.TotalPrice,
			Category:    it.Category,
			CreatedAt:   now,
		})
	}

	// Receipt insert, scan-slot consumption and storage accounting commit
	// or roll back together: a quota rejection leaves no receipt behind.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&receipt).Error; err != nil {
			return err
		}
		if err := s.quota.CommitScan(ctx, tx, req.UserID); err != nil {
			return err
		}
		return s.usage.IncrementTx(ctx, tx, usagedomain.IncrementRequest{
			UserID: req.UserID,
			Year:   now.Year(),
			Month:  int(now.Month()),
			Field:  usagedomain.FieldStorageBytes,
			Amount: receipt.ImageSizeBytes,
		})
	})
	if err != nil {
		var quotaErr *quota.QuotaExceededError
		if errors.As(err, &quotaErr) {
			metrics.ScansTotal.WithLabelValues(metrics.OutcomeQuotaExceeded).Inc()
		}
		return receiptdomain.Receipt{}, err
	}

	metrics.ScansTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	s.log.Info("receipt ingested",
		zap.Int64("receipt_id", int64(receipt.ID)),
		zap.Int64("user_id", int64(req.UserID)),
		zap.Int("items", len(receipt.Items)),
		zap.Float64("total_amount", receipt.TotalAmount),
	)
	return receipt, nil
}

func (s *Service) CreateManual(ctx context.Context, req receiptdomain.CreateManualRequest) (receiptdomain.Receipt, error) {
	if err := s.validateManual(req); err != nil {
		return receiptdomain.Receipt{}, err
	}

	now := s.clock.Now()
	userID := req.UserID
	receipt := receiptdomain.Receipt{
		ID:     s.genID.Generate(),
		UserID: &userID,

		StoreName:    strings.TrimSpace(req.StoreName),
		StoreAddress: strings.TrimSpace(req.StoreAddress),
		ReceiptDate:  req.ReceiptDate,

		TotalAmount: req.TotalAmount,
		TaxAmount:   req.TaxAmount,
		Currency:    defaultCurrency(req.Currency),

		Source:      receiptdomain.SourceManual,
		IsProcessed: true,
		Notes:       req.Notes,

		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, it := range req.Items {
		receipt.Items = append(receipt.Items, receiptdomain.ReceiptItem{
			ID:          s.genID.Generate(),
			ReceiptID:   receipt.ID,
			ProductName: strings.TrimSpace(it.ProductName),
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			TotalPrice:  it.TotalPrice,
			Category:    it.Category,
			CreatedAt:   now,
		})
	}

	if err := s.db.WithContext(ctx).Create(&receipt).Error; err != nil {
		return receiptdomain.Receipt{}, err
	}

	s.log.Info("manual receipt created",
		zap.Int64("receipt_id", int64(receipt.ID)),
		zap.Int64("user_id", int64(req.UserID)),
	)
	return receipt, nil
}

func (s *Service) GetByID(ctx context.Context, userID, id snowflake.ID) (receiptdomain.Receipt, error) {
	var receipt receiptdomain.Receipt
	err := s.db.WithContext(ctx).
		Preload("Items").
		Where("id = ? AND user_id = ?", id, userID).
		First(&receipt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return receiptdomain.Receipt{}, receiptdomain.ErrReceiptNotFound
		}
		return receiptdomain.Receipt{}, err
	}
	return receipt, nil
}

func (s *Service) List(ctx context.Context, req receiptdomain.ListRequest) (receiptdomain.ListResponse, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	q := s.db.WithContext(ctx).
		Model(&receiptdomain.Receipt{}).
		Where("user_id = ?", req.UserID).
		Preload("Items")
	q = option.ApplyPagination(pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  pageSize,
	}).Apply(q)
	q = option.WithSortBy("created_at", "desc", map[string]bool{"created_at": true}).Apply(q)

	var rows []*receiptdomain.Receipt
	if err := q.Find(&rows).Error; err != nil {
		return receiptdomain.ListResponse{}, err
	}

	pageInfo, rows := pagination.BuildCursorPageInfo(rows, pageSize, func(item *receiptdomain.Receipt) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		return token
	})

	resp := receiptdomain.ListResponse{PageInfo: *pageInfo}
	for _, row := range rows {
		resp.Receipts = append(resp.Receipts, *row)
	}
	return resp, nil
}

func (s *Service) validateManual(req receiptdomain.CreateManualRequest) error {
	if strings.TrimSpace(req.StoreName) == "" {
		return receiptdomain.ErrStoreNameRequired
	}
	if req.TotalAmount <= 0 {
		return receiptdomain.ErrInvalidTotal
	}
	if req.ReceiptDate != nil && req.ReceiptDate.After(s.clock.Now()) {
		return receiptdomain.ErrFutureDate
	}
	if len(req.Items) == 0 {
		return receiptdomain.ErrNoItems
	}
	for _, it := range req.Items {
		if strings.TrimSpace(it.ProductName) == "" || it.TotalPrice <= 0 || it.Quantity <= 0 {
			return receiptdomain.ErrInvalidItem
		}
	}
	return nil
}

// quotaExceeded builds the typed denial from the current snapshot so the
// HTTP layer can report tier and remaining slots.
func (s *Service) quotaExceeded(ctx context.Context, userID snowflake.ID) error {
	snap, err := s.quota.Snapshot(ctx, userID)
	if err != nil {
		return err
	}
	return &quota.QuotaExceededError{
		Tier:      snap.Tier,
		ScanLimit: snap.ScanLimit,
		Used:      snap.ScanCount,
	}
}

func defaultCurrency(c string) string {
	c = strings.ToUpper(strings.TrimSpace(c))
	if c == "" {
		return "TRY"
	}
	return c
}
