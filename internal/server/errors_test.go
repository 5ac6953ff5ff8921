package server

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	paymentdomain "github.com/smartreceipt/smartreceipt/internal/payment/domain"
	plandomain "github.com/smartreceipt/smartreceipt/internal/plan/domain"
	"github.com/smartreceipt/smartreceipt/internal/quota"
	receiptdomain "github.com/smartreceipt/smartreceipt/internal/receipt/domain"
	subscriptiondomain "github.com/smartreceipt/smartreceipt/internal/subscription/domain"
)

func TestMapErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"quota exceeded", &quota.QuotaExceededError{Tier: plandomain.PlanTypeFree, ScanLimit: 10, Used: 10}, http.StatusTooManyRequests, "quota_exceeded"},
		{"scan failed", &receiptdomain.ScanFailedError{Reason: "blurry"}, http.StatusBadGateway, "scan_failed"},
		{"already subscribed", subscriptiondomain.ErrAlreadySubscribed, http.StatusConflict, "already_subscribed"},
		{"plan not found", plandomain.ErrPlanNotFound, http.StatusNotFound, "not_found"},
		{"no active subscription", subscriptiondomain.ErrNoActiveSubscription, http.StatusNotFound, "not_found"},
		{"receipt not found", receiptdomain.ErrReceiptNotFound, http.StatusNotFound, "not_found"},
		{"invalid billing period", subscriptiondomain.ErrInvalidBillingPeriod, http.StatusBadRequest, "validation_error"},
		{"manual validation", receiptdomain.ErrFutureDate, http.StatusBadRequest, "validation_error"},
		{"bad webhook signature", paymentdomain.ErrInvalidSignature, http.StatusUnauthorized, "unauthorized"},
		{"unknown provider", paymentdomain.ErrUnknownProvider, http.StatusNotFound, "not_found"},
		{"storage unavailable", ErrServiceUnavailable, http.StatusServiceUnavailable, "service_unavailable"},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.wantStatus, status)
			assert.Equal(t, tc.wantType, payload.Type)
		})
	}
}

func TestMapErrorQuotaPayloadCarriesTierAndLimit(t *testing.T) {
	status, payload := mapError(&quota.QuotaExceededError{
		Tier: plandomain.PlanTypeBasic, ScanLimit: 100, Used: 100,
	})

	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, plandomain.PlanTypeBasic, payload.Details["tier"])
	assert.Equal(t, int64(100), payload.Details["scan_limit"])
}

func TestValidationErrorsRenderFieldList(t *testing.T) {
	status, payload := mapError(newValidationError("image", "image_required", "image file is required"))

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", payload.Type)
	assert.Len(t, payload.Errors, 1)
	assert.Equal(t, "image", payload.Errors[0].Field)
}
