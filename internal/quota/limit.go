// Package quota decides whether a user may scan and owns the atomic commit
// of consumed slots. It composes the subscription lifecycle (which plan) and
// the usage ledger (how much consumed).
package quota

import (
	plandomain "github.com/smartreceipt/smartreceipt/internal/plan/domain"
)

// ScanLimit is a tagged monthly ceiling: bounded by a count, or unlimited.
// The catalog's -1 sentinel is converted here once; no caller ever does
// arithmetic on the sentinel itself.
type ScanLimit struct {
	n         int64
	unlimited bool
}

func Bounded(n int64) ScanLimit {
	if n < 0 {
		n = 0
	}
	return ScanLimit{n: n}
}

func Unlimited() ScanLimit {
	return ScanLimit{unlimited: true}
}

// FromPlanLimit converts a raw catalog limit into a ScanLimit.
func FromPlanLimit(raw int) ScanLimit {
	if raw == plandomain.UnlimitedScanLimit {
		return Unlimited()
	}
	return Bounded(int64(raw))
}

func (l ScanLimit) IsUnlimited() bool { return l.unlimited }

// Value returns the bounded ceiling. Callers must check IsUnlimited first.
func (l ScanLimit) Value() int64 { return l.n }

// Remaining computes the slots left under a bounded limit, floored at zero.
func (l ScanLimit) Remaining(used int64) int64 {
	if l.unlimited {
		return 0
	}
	remaining := l.n - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}
