package adapters

import (
	"github.com/smartreceipt/smartreceipt/internal/clock"
	"github.com/smartreceipt/smartreceipt/internal/config"
	paymentdomain "github.com/smartreceipt/smartreceipt/internal/payment/domain"
)

// Registry resolves webhook adapters by provider name.
type Registry struct {
	adapters map[string]paymentdomain.Adapter
}

func NewRegistry(cfg config.Config, clk clock.Clock) *Registry {
	r := &Registry{adapters: map[string]paymentdomain.Adapter{}}
	r.register(NewIyzicoAdapter(cfg.Payment.IyzicoWebhookSecret, clk))
	r.register(NewStripeAdapter(cfg.Payment.StripeWebhookSecret, clk))
	return r
}

func (r *Registry) register(a paymentdomain.Adapter) {
	r.adapters[a.Provider()] = a
}

func (r *Registry) Get(provider string) (paymentdomain.Adapter, error) {
	a, ok := r.adapters[provider]
	if !ok {
		return nil, paymentdomain.ErrUnknownProvider
	}
	return a, nil
}
