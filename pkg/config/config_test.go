package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.MarketOpen {
		t.Fatalf("expected paper venue open by default")
	}
	if cfg.Port != "8080" {
		t.Fatalf("unexpected default port %q", cfg.Port)
	}
	if cfg.MaxDailyLossPct != 2.0 {
		t.Fatalf("unexpected default daily loss pct %.2f", cfg.MaxDailyLossPct)
	}
}

func TestMarketOpenOverride(t *testing.T) {
	t.Setenv("MARKET_OPEN", "false")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MarketOpen {
		t.Fatalf("MARKET_OPEN=false should close the venue")
	}
}

func TestDBPathPrefersPrimaryKey(t *testing.T) {
	t.Setenv("DATABASE_PATH", "/tmp/legacy.db")
	t.Setenv("DB_PATH", "/tmp/primary.db")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/tmp/primary.db" {
		t.Fatalf("DB_PATH should win, got %q", cfg.DBPath)
	}
}

func TestRiskLimitEnv(t *testing.T) {
	if RiskLimitEnv() {
		t.Fatalf("no risk env vars set, expected false")
	}
	t.Setenv("MAX_TRADES_PER_DAY", "5")
	if !RiskLimitEnv() {
		t.Fatalf("MAX_TRADES_PER_DAY set, expected true")
	}
}
