package quota

import (
	"fmt"

	plandomain "github.com/smartreceipt/smartreceipt/internal/plan/domain"
)

// QuotaExceededError is returned by CommitScan when the user's monthly scan
// ceiling has been reached. It carries enough context for the HTTP layer to
// build an actionable 429 response.
type QuotaExceededError struct {
	Tier      plandomain.PlanType
	ScanLimit int64
	Used      int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("monthly scan quota exceeded: %d/%d scans used on %s plan", e.Used, e.ScanLimit, e.Tier)
}
