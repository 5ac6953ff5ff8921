package scanner

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smartreceipt/smartreceipt/internal/config"
)

// New selects the configured provider. Unknown providers fall back to the
// mock so a misconfigured dev environment still boots.
func New(cfg config.Config, log *zap.Logger) Scanner {
	switch cfg.Scanner.Provider {
	case "gemini":
		return NewGeminiScanner(cfg, log)
	default:
		if cfg.Scanner.Provider != "mock" {
			log.Warn("unknown scanner provider, using mock", zap.String("provider", cfg.Scanner.Provider))
		}
		return NewMockScanner()
	}
}

var Module = fx.Module("scanner",
	fx.Provide(New),
)
