// Package scanner extracts structured receipt data from uploaded images via
// an external AI vision model. Extraction failures are data, not errors: a
// failed scan still produces a Result so the caller can persist the attempt.
package scanner

import (
	"context"
	"time"
)

// Item is one extracted line item. Category is whatever free-text label the
// model produced; it is stored as-is, never validated against an enum.
type Item struct {
	Name       string  `json:"name"`
	Quantity   float64 `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	TotalPrice float64 `json:"total_price"`
	Category   string  `json:"category"`
}

// Result is the outcome of one extraction attempt. When Success is false the
// structured fields are zero and ErrorMessage says why; RawText may still
// carry whatever the model returned.
type Result struct {
	Success      bool
	ErrorMessage string

	StoreName    string
	StoreAddress string
	Date         *time.Time
	TotalAmount  float64
	TaxAmount    float64
	Currency     string
	Items        []Item
	RawText      string
}

// Scanner turns a receipt image into a Result. Implementations return an
// error only for caller mistakes (empty image, cancelled context); provider
// and parse failures are reported inside the Result.
type Scanner interface {
	Scan(ctx context.Context, image []byte, mimeType string) (Result, error)
}

// Failed builds a failed Result with the given reason.
func Failed(reason string) Result {
	return Result{ErrorMessage: reason}
}
