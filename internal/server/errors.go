package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	paymentdomain "github.com/smartreceipt/smartreceipt/internal/payment/domain"
	plandomain "github.com/smartreceipt/smartreceipt/internal/plan/domain"
	"github.com/smartreceipt/smartreceipt/internal/quota"
	receiptdomain "github.com/smartreceipt/smartreceipt/internal/receipt/domain"
	subscriptiondomain "github.com/smartreceipt/smartreceipt/internal/subscription/domain"
	usagedomain "github.com/smartreceipt/smartreceipt/internal/usage/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
	Details gin.H             `json:"details,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// ErrorHandlingMiddleware drains gin's error list after the handler chain and
// renders the last error through the domain taxonomy.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	var vErr *ValidationErrors
	if errors.As(err, &vErr) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var quotaErr *quota.QuotaExceededError
	if errors.As(err, &quotaErr) {
		return http.StatusTooManyRequests, errorPayload{
			Type:    "quota_exceeded",
			Message: err.Error(),
			Details: gin.H{
				"tier":       quotaErr.Tier,
				"scan_limit": quotaErr.ScanLimit,
				"used":       quotaErr.Used,
				"remaining":  0,
			},
		}
	}

	var scanErr *receiptdomain.ScanFailedError
	if errors.As(err, &scanErr) {
		return http.StatusBadGateway, errorPayload{
			Type:    "scan_failed",
			Message: err.Error(),
		}
	}

	switch {
	case errors.Is(err, subscriptiondomain.ErrAlreadySubscribed):
		return http.StatusConflict, errorPayload{
			Type:    "already_subscribed",
			Message: "user already has an open subscription",
		}

	case errors.Is(err, plandomain.ErrPlanNotFound),
		errors.Is(err, subscriptiondomain.ErrNoActiveSubscription),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, receiptdomain.ErrReceiptNotFound),
		errors.Is(err, paymentdomain.ErrUnknownProvider),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: err.Error(),
		}

	case errors.Is(err, subscriptiondomain.ErrInvalidBillingPeriod),
		errors.Is(err, usagedomain.ErrInvalidField),
		errors.Is(err, usagedomain.ErrInvalidAmount),
		errors.Is(err, receiptdomain.ErrEmptyImage),
		errors.Is(err, receiptdomain.ErrStoreNameRequired),
		errors.Is(err, receiptdomain.ErrInvalidTotal),
		errors.Is(err, receiptdomain.ErrFutureDate),
		errors.Is(err, receiptdomain.ErrNoItems),
		errors.Is(err, receiptdomain.ErrInvalidItem),
		errors.Is(err, paymentdomain.ErrMalformedEvent):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}

	case errors.Is(err, paymentdomain.ErrInvalidSignature),
		errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: err.Error(),
		}

	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "storage temporarily unavailable",
		}
	}

	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}
