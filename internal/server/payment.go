package server

import (
	"io"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	paymentdomain "github.com/smartreceipt/smartreceipt/internal/payment/domain"
)

type chargeRequest struct {
	SubscriptionID *snowflake.ID `json:"subscription_id,string,omitempty"`
	Amount         float64       `json:"amount"`
	Currency       string        `json:"currency"`
	Description    string        `json:"description"`
}

func (s *Server) ChargePayment(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req chargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Amount <= 0 {
		AbortWithError(c, newValidationError("amount", "invalid_amount", "amount must be positive"))
		return
	}
	if req.Currency == "" {
		req.Currency = "TRY"
	}

	payment, err := s.paymentSvc.Charge(c.Request.Context(), paymentdomain.ChargeRequest{
		UserID:         userID,
		SubscriptionID: req.SubscriptionID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Description:    req.Description,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": payment})
}

// HandlePaymentWebhook ingests provider callbacks. The body is read raw so
// signature verification sees exactly the bytes the provider signed.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := c.Param("provider")

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.webhookSvc.Handle(c.Request.Context(), provider, payload, c.Request.Header); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
