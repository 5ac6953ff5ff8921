package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smartreceipt/smartreceipt/pkg/db/pagination"
)

type CreateFromImageRequest struct {
	UserID   snowflake.ID
	Image    []byte
	MimeType string
	ImageURL string
}

type ManualItem struct {
	ProductName string  `json:"product_name"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	TotalPrice  float64 `json:"total_price"`
	Category    string  `json:"category"`
}

type CreateManualRequest struct {
	UserID       snowflake.ID `json:"-"`
	StoreName    string       `json:"store_name"`
	StoreAddress string       `json:"store_address"`
	ReceiptDate  *time.Time   `json:"receipt_date"`
	TotalAmount  float64      `json:"total_amount"`
	TaxAmount    float64      `json:"tax_amount"`
	Currency     string       `json:"currency"`
	Notes        string       `json:"notes"`
	Items        []ManualItem `json:"items"`
}

type ListRequest struct {
	UserID    snowflake.ID
	PageToken string
	PageSize  int
}

type ListResponse struct {
	pagination.PageInfo
	Receipts []Receipt `json:"receipts"`
}

type Service interface {
	// CreateFromImage runs the AI ingestion path: quota pre-check, scanner
	// call, then receipt insert and scan-slot commit in one transaction.
	// Failed scans consume no quota and persist nothing.
	CreateFromImage(ctx context.Context, req CreateFromImageRequest) (Receipt, error)

	// CreateManual persists a hand-entered receipt. No quota applies.
	CreateManual(ctx context.Context, req CreateManualRequest) (Receipt, error)

	// GetByID returns the receipt with items, scoped to the owner.
	GetByID(ctx context.Context, userID, id snowflake.ID) (Receipt, error)

	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

var (
	ErrReceiptNotFound = errors.New("receipt_not_found")
	ErrEmptyImage      = errors.New("empty_image")

	ErrStoreNameRequired = errors.New("store_name_required")
	ErrInvalidTotal      = errors.New("invalid_total_amount")
	ErrFutureDate        = errors.New("receipt_date_in_future")
	ErrNoItems           = errors.New("at_least_one_item_required")
	ErrInvalidItem       = errors.New("invalid_item")
)

// ScanFailedError reports that the AI collaborator could not produce
// structured data. No state was mutated; the caller may retry freely.
type ScanFailedError struct {
	Reason string
}

func (e *ScanFailedError) Error() string {
	return fmt.Sprintf("receipt scan failed: %s", e.Reason)
}
