package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	// DisputeWonRevertToPaid moves a won dispute back to paid.
	DisputeWonRevertToPaid = "revert_to_paid"
	// DisputeWonKeepDisputed leaves the order disputed for manual follow-up.
	DisputeWonKeepDisputed = "keep_disputed"
)

// StoreConfig holds the storefront settings that can change without a restart.
type StoreConfig struct {
	Dispute           DisputeConfig      `mapstructure:"dispute"`
	Sync              SyncConfig         `mapstructure:"sync"`
	ShippingCountries []string           `mapstructure:"shippingCountries"`
	Plans             []SubscriptionPlan `mapstructure:"plans"`
	UnitTiers         []UnitTier         `mapstructure:"unitTiers"`
}

type DisputeConfig struct {
	WonPolicy string `mapstructure:"wonPolicy"`
}

type SyncConfig struct {
	BatchSize  int           `mapstructure:"batchSize"`
	BatchPause time.Duration `mapstructure:"batchPause"`
}

type SubscriptionPlan struct {
	Key         string `mapstructure:"key"`
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
	PriceID     string `mapstructure:"priceId"`
}

// UnitTier describes a pricing unit created for every new product.
// Multiplier is applied to base price times quantity.
type UnitTier struct {
	Name       string  `mapstructure:"name"`
	Quantity   int     `mapstructure:"quantity"`
	Multiplier float64 `mapstructure:"multiplier"`
	IsDefault  bool    `mapstructure:"isDefault"`
	SortOrder  int     `mapstructure:"sortOrder"`
}

func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Dispute: DisputeConfig{WonPolicy: DisputeWonRevertToPaid},
		Sync: SyncConfig{
			BatchSize:  5,
			BatchPause: 100 * time.Millisecond,
		},
		ShippingCountries: []string{"US"},
		Plans: []SubscriptionPlan{
			{Key: "weekly", Name: "Weekly Cookie Box", Description: "Fresh cookies delivered every week"},
			{Key: "biweekly", Name: "Bi-Weekly Cookie Box", Description: "Fresh cookies delivered every two weeks"},
			{Key: "monthly", Name: "Monthly Cookie Box", Description: "Fresh cookies delivered every month"},
		},
		UnitTiers: []UnitTier{
			{Name: "Individual", Quantity: 1, Multiplier: 1, IsDefault: true, SortOrder: 1},
			{Name: "Half Dozen", Quantity: 6, Multiplier: 0.9, SortOrder: 2},
			{Name: "Dozen", Quantity: 12, Multiplier: 0.85, SortOrder: 3},
		},
	}
}

// Plan returns the configured plan with the given key.
func (c StoreConfig) Plan(key string) (SubscriptionPlan, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, plan := range c.Plans {
		if plan.Key == key {
			return plan, true
		}
	}
	return SubscriptionPlan{}, false
}

type StoreConfigHolder struct {
	current atomic.Value // holds StoreConfig
}

// NewStaticStoreConfigHolder returns a holder that never reloads.
func NewStaticStoreConfigHolder(cfg StoreConfig) *StoreConfigHolder {
	holder := &StoreConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewStoreConfigHolder() (*StoreConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("store")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/cookiejar/config") // Volume-mounted config
	v.AddConfigPath("/etc/cookiejar")            // System config
	v.AddConfigPath(".")                         // Current directory (dev mode)

	v.SetEnvPrefix("COOKIEJAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultStoreConfig()
	v.SetDefault("store.dispute.wonPolicy", defaults.Dispute.WonPolicy)
	v.SetDefault("store.sync.batchSize", defaults.Sync.BatchSize)
	v.SetDefault("store.sync.batchPause", defaults.Sync.BatchPause)
	v.SetDefault("store.shippingCountries", defaults.ShippingCountries)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	cfg, err := decodeStoreConfig(v, defaults)
	if err != nil {
		return nil, err
	}

	holder := NewStaticStoreConfigHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeStoreConfig(v, defaults)
		if err != nil {
			log.Printf("[store-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[store-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *StoreConfigHolder) Get() StoreConfig {
	return h.current.Load().(StoreConfig)
}

func decodeStoreConfig(v *viper.Viper, defaults StoreConfig) (StoreConfig, error) {
	var cfg StoreConfig
	if err := v.UnmarshalKey("store", &cfg); err != nil {
		return StoreConfig{}, err
	}
	if len(cfg.Plans) == 0 {
		cfg.Plans = defaults.Plans
	}
	if len(cfg.UnitTiers) == 0 {
		cfg.UnitTiers = defaults.UnitTiers
	}
	cfg.Dispute.WonPolicy = strings.ToLower(strings.TrimSpace(cfg.Dispute.WonPolicy))
	for i := range cfg.Plans {
		cfg.Plans[i].Key = strings.ToLower(strings.TrimSpace(cfg.Plans[i].Key))
	}
	if err := validateStoreConfig(cfg); err != nil {
		return StoreConfig{}, err
	}
	return cfg, nil
}

func validateStoreConfig(cfg StoreConfig) error {
	switch cfg.Dispute.WonPolicy {
	case DisputeWonRevertToPaid, DisputeWonKeepDisputed:
	default:
		return fmt.Errorf("store.dispute.wonPolicy %q is not supported", cfg.Dispute.WonPolicy)
	}
	if cfg.Sync.BatchSize <= 0 {
		return errors.New("store.sync.batchSize must be positive")
	}
	if cfg.Sync.BatchPause < 0 {
		return errors.New("store.sync.batchPause cannot be negative")
	}
	if len(cfg.ShippingCountries) == 0 {
		return errors.New("store.shippingCountries cannot be empty")
	}
	defaults := 0
	for _, tier := range cfg.UnitTiers {
		if tier.Quantity < 1 {
			return fmt.Errorf("store.unitTiers %q: quantity must be at least 1", tier.Name)
		}
		if tier.Multiplier <= 0 {
			return fmt.Errorf("store.unitTiers %q: multiplier must be positive", tier.Name)
		}
		if tier.IsDefault {
			defaults++
		}
	}
	if defaults > 1 {
		return errors.New("store.unitTiers can have at most one default")
	}
	return nil
}
