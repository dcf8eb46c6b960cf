// Package config loads server configuration from YAML with environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"github.com/keepsake-xyz/keepsake/asset"
	"github.com/keepsake-xyz/keepsake/ledger"
)

// Config holds all application configuration.
type Config struct {
	Asset struct {
		Creator                string `yaml:"creator"`
		Beneficiary            string `yaml:"beneficiary"`
		TaxNumerator           uint64 `yaml:"tax_numerator"`
		RoyaltyNumerator       uint64 `yaml:"royalty_numerator"`
		TaxPeriod              string `yaml:"tax_period"`
		Cooldown               string `yaml:"cooldown"`
		FlaggingPeriod         string `yaml:"flagging_period"`
		CleartextMaximumLength int    `yaml:"cleartext_maximum_length"`
	} `yaml:"asset"`
	Auction struct {
		StartingPrice   string `yaml:"starting_price"`
		MinimumBidStep  string `yaml:"minimum_bid_step"`
		MinimumDuration string `yaml:"minimum_duration"`
		BidExtension    string `yaml:"bid_extension"`
	} `yaml:"auction"`
	Server struct {
		Listen string `yaml:"listen"`
	} `yaml:"server"`
	Upkeep struct {
		Cron string `yaml:"cron"`
	} `yaml:"upkeep"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file is not an error; overrides and
// defaults still apply.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("KEEPSAKE_CREATOR"); v != "" {
		cfg.Asset.Creator = v
	}
	if v := os.Getenv("KEEPSAKE_BENEFICIARY"); v != "" {
		cfg.Asset.Beneficiary = v
	}
	if v := os.Getenv("KEEPSAKE_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}
	if v := os.Getenv("KEEPSAKE_SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("KEEPSAKE_UPKEEP_CRON"); v != "" {
		cfg.Upkeep.Cron = v
	}
	if v := os.Getenv("KEEPSAKE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Defaults
	if cfg.Asset.TaxNumerator == 0 {
		cfg.Asset.TaxNumerator = 1000 // 10% per period
	}
	if cfg.Asset.TaxPeriod == "" {
		cfg.Asset.TaxPeriod = "8760h" // one year
	}
	if cfg.Asset.Cooldown == "" {
		cfg.Asset.Cooldown = "168h"
	}
	if cfg.Asset.FlaggingPeriod == "" {
		cfg.Asset.FlaggingPeriod = "168h"
	}
	if cfg.Asset.CleartextMaximumLength == 0 {
		cfg.Asset.CleartextMaximumLength = 280
	}
	if cfg.Auction.MinimumDuration == "" {
		cfg.Auction.MinimumDuration = "24h"
	}
	if cfg.Auction.BidExtension == "" {
		cfg.Auction.BidExtension = "15m"
	}
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
	if cfg.Upkeep.Cron == "" {
		cfg.Upkeep.Cron = "@every 1m"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/keepsake.db"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	return cfg, nil
}

// Validate checks that all required fields are set and parseable.
func (c *Config) Validate() error {
	if c.Asset.Creator == "" {
		return fmt.Errorf("asset.creator is required")
	}
	if c.Asset.Beneficiary == "" {
		return fmt.Errorf("asset.beneficiary is required")
	}
	if c.Asset.Creator == c.Asset.Beneficiary {
		return fmt.Errorf("asset.creator and asset.beneficiary must differ")
	}
	if c.Asset.RoyaltyNumerator > asset.FeeDenominator {
		return fmt.Errorf("asset.royalty_numerator must not exceed %d", asset.FeeDenominator)
	}
	if _, err := c.AssetParams(); err != nil {
		return err
	}
	return nil
}

// AssetParams converts the configuration into asset parameters.
func (c *Config) AssetParams() (asset.Params, error) {
	p := asset.Params{
		Creator:                ledger.Address(c.Asset.Creator),
		Beneficiary:            ledger.Address(c.Asset.Beneficiary),
		TaxNumerator:           c.Asset.TaxNumerator,
		RoyaltyNumerator:       c.Asset.RoyaltyNumerator,
		CleartextMaximumLength: c.Asset.CleartextMaximumLength,
	}

	var err error
	if p.TaxPeriod, err = parseDuration("asset.tax_period", c.Asset.TaxPeriod); err != nil {
		return p, err
	}
	if p.Cooldown, err = parseDuration("asset.cooldown", c.Asset.Cooldown); err != nil {
		return p, err
	}
	if p.FlaggingPeriod, err = parseDuration("asset.flagging_period", c.Asset.FlaggingPeriod); err != nil {
		return p, err
	}
	if p.AuctionMinimumDuration, err = parseDuration("auction.minimum_duration", c.Auction.MinimumDuration); err != nil {
		return p, err
	}
	if p.AuctionBidExtension, err = parseDuration("auction.bid_extension", c.Auction.BidExtension); err != nil {
		return p, err
	}
	if p.AuctionStartingPrice, err = parseAmount("auction.starting_price", c.Auction.StartingPrice); err != nil {
		return p, err
	}
	if p.AuctionMinimumBidStep, err = parseAmount("auction.minimum_bid_step", c.Auction.MinimumBidStep); err != nil {
		return p, err
	}
	return p, nil
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", field)
	}
	return d, nil
}

func parseAmount(field, value string) (*uint256.Int, error) {
	if value == "" {
		return nil, nil
	}
	amount, err := uint256.FromDecimal(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return amount, nil
}
