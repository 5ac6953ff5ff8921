// Package gateway holds charge-side adapters for the external payment
// provider. The provider is opaque: one Charge call in, one result out.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/smartreceipt/smartreceipt/internal/config"
	paymentdomain "github.com/smartreceipt/smartreceipt/internal/payment/domain"
)

// HTTPGateway charges through the provider's REST API.
type HTTPGateway struct {
	log      *zap.Logger
	client   *http.Client
	endpoint string
	apiKey   string
	provider string
}

func NewHTTPGateway(cfg config.Config, log *zap.Logger) *HTTPGateway {
	return &HTTPGateway{
		log:      log.Named("payment.gateway"),
		client:   &http.Client{Timeout: 30 * time.Second},
		endpoint: strings.TrimRight(cfg.Payment.Endpoint, "/"),
		apiKey:   cfg.Payment.APIKey,
		provider: cfg.Payment.Provider,
	}
}

type chargeRequest struct {
	ReferenceCode string  `json:"referenceCode"`
	Price         float64 `json:"price"`
	Currency      string  `json:"currency"`
	Description   string  `json:"description"`
}

type chargeResponse struct {
	Status       string `json:"status"`
	PaymentID    string `json:"paymentId"`
	ErrorMessage string `json:"errorMessage"`
}

func (g *HTTPGateway) Charge(ctx context.Context, req paymentdomain.ChargeRequest) (*paymentdomain.ChargeResult, error) {
	ref := fmt.Sprintf("user-%d", req.UserID)
	if req.SubscriptionID != nil {
		ref = fmt.Sprintf("sub-%d", *req.SubscriptionID)
	}

	payload, err := json.Marshal(chargeRequest{
		ReferenceCode: ref,
		Price:         req.Amount,
		Currency:      req.Currency,
		Description:   req.Description,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+"/v1/payments", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("payment gateway: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("payment gateway: %w", err)
	}

	var cr chargeResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, fmt.Errorf("payment gateway: decode response: %w", err)
	}

	result := &paymentdomain.ChargeResult{
		ProviderPaymentID: cr.PaymentID,
		Status:            paymentdomain.PaymentStatusFailed,
		FailureReason:     cr.ErrorMessage,
	}
	if resp.StatusCode == http.StatusOK && strings.EqualFold(cr.Status, "success") {
		result.Status = paymentdomain.PaymentStatusSucceeded
		result.FailureReason = ""
	} else if result.FailureReason == "" {
		result.FailureReason = fmt.Sprintf("gateway status %d", resp.StatusCode)
	}
	return result, nil
}
