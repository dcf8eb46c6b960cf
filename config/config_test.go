package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Listen != ":8080" {
		t.Errorf("listen = %q, want :8080", cfg.Server.Listen)
	}
	if cfg.Upkeep.Cron != "@every 1m" {
		t.Errorf("cron = %q", cfg.Upkeep.Cron)
	}
	if cfg.Asset.TaxNumerator != 1000 {
		t.Errorf("tax numerator = %d, want 1000", cfg.Asset.TaxNumerator)
	}
	// No creator or beneficiary configured.
	if err := cfg.Validate(); err == nil {
		t.Error("Validate passed without required fields")
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
asset:
  creator: alice
  beneficiary: fund
  tax_numerator: 500
  cooldown: 1h
auction:
  starting_price: "250"
server:
  listen: ":9999"
`)
	t.Setenv("KEEPSAKE_LISTEN", ":7777")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Server.Listen != ":7777" {
		t.Errorf("env override lost, listen = %q", cfg.Server.Listen)
	}

	params, err := cfg.AssetParams()
	if err != nil {
		t.Fatalf("AssetParams: %v", err)
	}
	if params.Creator != "alice" || params.Beneficiary != "fund" {
		t.Errorf("addresses = %s/%s", params.Creator, params.Beneficiary)
	}
	if params.TaxNumerator != 500 {
		t.Errorf("tax numerator = %d, want 500", params.TaxNumerator)
	}
	if params.Cooldown != time.Hour {
		t.Errorf("cooldown = %s, want 1h", params.Cooldown)
	}
	if params.AuctionStartingPrice == nil || params.AuctionStartingPrice.Uint64() != 250 {
		t.Errorf("starting price = %v, want 250", params.AuctionStartingPrice)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	path := writeConfig(t, `
asset:
  creator: alice
  beneficiary: fund
  tax_period: "not-a-duration"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted a malformed duration")
	}

	path = writeConfig(t, `
asset:
  creator: alice
  beneficiary: alice
`)
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted creator == beneficiary")
	}
}
