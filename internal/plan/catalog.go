package plan

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/smartreceipt/smartreceipt/internal/config"
	"github.com/smartreceipt/smartreceipt/internal/plan/domain"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// CatalogConfig carries operator-tunable catalog knobs read from plans.yml.
// The seeded tiers keep their defaults unless an override names them.
type CatalogConfig struct {
	FreeTierScanLimit int            `mapstructure:"freeTierScanLimit"`
	Overrides         []PlanOverride `mapstructure:"overrides"`
}

// PlanOverride adjusts a single seeded tier. Nil fields keep the default.
type PlanOverride struct {
	PlanType         string   `mapstructure:"planType"`
	MonthlyScanLimit *int     `mapstructure:"monthlyScanLimit"`
	StorageLimitMB   *int64   `mapstructure:"storageLimitMB"`
	MonthlyPrice     *float64 `mapstructure:"monthlyPrice"`
	YearlyPrice      *float64 `mapstructure:"yearlyPrice"`
	TrialDays        *int     `mapstructure:"trialDays"`
}

func DefaultCatalogConfig() CatalogConfig {
	return CatalogConfig{
		FreeTierScanLimit: 10,
	}
}

// CatalogHolder hands out the current catalog config and hot-reloads it when
// plans.yml changes on disk.
type CatalogHolder struct {
	current atomic.Value // holds CatalogConfig
}

func NewCatalogHolder(appCfg config.Config, log *zap.Logger) (*CatalogHolder, error) {
	log = log.Named("plan.catalog")

	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath(appCfg.PlanConfigPath)
	v.AddConfigPath("/etc/smartreceipt")

	v.SetEnvPrefix("SMARTRECEIPT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultCatalogConfig()
	v.SetDefault("catalog.freeTierScanLimit", defaults.FreeTierScanLimit)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		watch = false
	}

	var cfg CatalogConfig
	if err := v.UnmarshalKey("catalog", &cfg); err != nil {
		return nil, err
	}
	if err := validateCatalogConfig(cfg); err != nil {
		return nil, err
	}

	holder := &CatalogHolder{}
	holder.current.Store(cfg)

	if watch {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated CatalogConfig
			if err := v.UnmarshalKey("catalog", &updated); err != nil {
				log.Error("catalog reload failed", zap.Error(err))
				return
			}
			if err := validateCatalogConfig(updated); err != nil {
				log.Warn("invalid catalog config ignored", zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("catalog reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

func (h *CatalogHolder) Get() CatalogConfig {
	return h.current.Load().(CatalogConfig)
}

func validateCatalogConfig(cfg CatalogConfig) error {
	if cfg.FreeTierScanLimit < 0 {
		return errors.New("catalog.freeTierScanLimit cannot be negative")
	}
	for _, o := range cfg.Overrides {
		switch domain.PlanType(o.PlanType) {
		case domain.PlanTypeFree, domain.PlanTypeBasic, domain.PlanTypePro, domain.PlanTypeEnterprise:
		default:
			return errors.New("catalog override references unknown plan type " + o.PlanType)
		}
		if o.MonthlyScanLimit != nil && *o.MonthlyScanLimit < domain.UnlimitedScanLimit {
			return errors.New("catalog override monthlyScanLimit below unlimited sentinel")
		}
	}
	return nil
}
