package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFillsDefaults(t *testing.T) {
	path := writeConfig(t, "market:\n  symbol: kwh-main\nledger:\n  dry_run: true\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Market.MatchTick.Seconds() != 1 {
		t.Errorf("expected default match_tick of 1s, got %v", cfg.Market.MatchTick)
	}
	if cfg.Settlement.MaxAttempts != 3 {
		t.Errorf("expected default max_attempts 3, got %d", cfg.Settlement.MaxAttempts)
	}
	if cfg.Store.JournalFsync != "batched" {
		t.Errorf("expected default journal_fsync batched, got %s", cfg.Store.JournalFsync)
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := writeConfig(t, "market:\n  symbol: kwh-main\n  fee_rate: 0.0025\nledger:\n  dry_run: true\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Market.FeeRate != 0.0025 {
		t.Errorf("expected fee_rate 0.0025, got %v", cfg.Market.FeeRate)
	}
}

func TestValidateRejectsMissingLedgerURLWhenNotDryRun(t *testing.T) {
	path := writeConfig(t, "market:\n  symbol: kwh-main\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for missing ledger.base_url")
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	path := writeConfig(t, "market:\n  symbol: kwh-main\nledger:\n  dry_run: true\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestValidateRejectsBadJournalFsyncPolicy(t *testing.T) {
	path := writeConfig(t, "market:\n  symbol: kwh-main\nledger:\n  dry_run: true\nstore:\n  journal_fsync: sometimes\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for invalid journal_fsync policy")
	}
}
