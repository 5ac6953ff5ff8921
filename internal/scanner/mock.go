package scanner

import (
	"context"
	"errors"
	"time"
)

// MockScanner returns canned extractions for development and tests.
type MockScanner struct {
	// Fixed, when set, is returned verbatim for every scan.
	Fixed *Result
}

func NewMockScanner() *MockScanner { return &MockScanner{} }

func (m *MockScanner) Scan(ctx context.Context, image []byte, mimeType string) (Result, error) {
	if len(image) == 0 {
		return Result{}, errors.New("empty image")
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if m.Fixed != nil {
		return *m.Fixed, nil
	}

	date := time.Date(2024, time.March, 15, 12, 30, 0, 0, time.UTC)
	return Result{
		Success:      true,
		StoreName:    "Migros",
		StoreAddress: "Kadıköy, İstanbul",
		Date:         &date,
		TotalAmount:  142.50,
		TaxAmount:    23.75,
		Currency:     "TRY",
		Items: []Item{
			{Name: "Süt 1L", Quantity: 2, UnitPrice: 32.50, TotalPrice: 65.00, Category: "Gıda"},
			{Name: "Ekmek", Quantity: 1, UnitPrice: 12.50, TotalPrice: 12.50, Category: "Gıda"},
			{Name: "Peynir 500g", Quantity: 1, UnitPrice: 65.00, TotalPrice: 65.00, Category: "Gıda"},
		},
		RawText: "mock extraction",
	}, nil
}
