package gateway

import (
	"context"
	"fmt"
	"sync/atomic"

	paymentdomain "github.com/smartreceipt/smartreceipt/internal/payment/domain"
)

// MockGateway approves every charge. Used in dev mode and tests; tests may
// set FailWith to exercise the failure path.
type MockGateway struct {
	FailWith string

	seq atomic.Int64
}

func NewMockGateway() *MockGateway { return &MockGateway{} }

func (m *MockGateway) Charge(ctx context.Context, req paymentdomain.ChargeRequest) (*paymentdomain.ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.FailWith != "" {
		return &paymentdomain.ChargeResult{
			Status:        paymentdomain.PaymentStatusFailed,
			FailureReason: m.FailWith,
		}, nil
	}
	return &paymentdomain.ChargeResult{
		ProviderPaymentID: fmt.Sprintf("mock-%d", m.seq.Add(1)),
		Status:            paymentdomain.PaymentStatusSucceeded,
	}, nil
}
