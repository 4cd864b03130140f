package infra

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("TREASURY_ADDRESS", "rTreasury")
	t.Setenv("MONITORED_ASSET", "PFT.rIssuer")
}

func TestLoadConfigDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Ledger.PollInterval != 10*time.Second {
		t.Fatalf("PollInterval mismatch: got %s want 10s", cfg.Ledger.PollInterval)
	}
	if cfg.Donation.TokenBytes != 20 {
		t.Fatalf("TokenBytes mismatch: got %d want 20", cfg.Donation.TokenBytes)
	}
	if !cfg.Referral.FeeDefault.Equal(decimal.RequireFromString("0.2")) {
		t.Fatalf("FeeDefault mismatch: got %s want 0.2", cfg.Referral.FeeDefault)
	}
	if !cfg.Donation.DefaultMinimumAmount.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("DefaultMinimumAmount mismatch: got %s", cfg.Donation.DefaultMinimumAmount)
	}
	if cfg.Payout.SourceAddress != "rTreasury" {
		t.Fatalf("SourceAddress should default to treasury, got %q", cfg.Payout.SourceAddress)
	}
}

func TestLoadConfigRequiresTreasury(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("TREASURY_ADDRESS", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error when TREASURY_ADDRESS is empty")
	}
}

func TestLoadConfigRequiresDatabaseURLForPostgres(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DATABASE_URL", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error when DATABASE_URL is empty")
	}
}

func TestLoadConfigSQLiteDoesNotNeedDatabaseURL(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/donations.db")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.StoreDriver != StoreDriverSQLite {
		t.Fatalf("StoreDriver mismatch: got %q", cfg.StoreDriver)
	}
}

func TestLoadConfigRejectsWeakTokens(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("TOKEN_BYTES", "8")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for TOKEN_BYTES below the entropy floor")
	}
}

func TestLoadConfigParsesReferralFees(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("REFERRAL_FEES", "Pan:0.25,zeno:0.3")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	want := map[string]string{"pan": "0.25", "zeno": "0.3"}
	if len(cfg.Referral.FeeByParty) != len(want) {
		t.Fatalf("FeeByParty mismatch: %#v", cfg.Referral.FeeByParty)
	}
	for party, raw := range want {
		got, ok := cfg.Referral.FeeByParty[party]
		if !ok || !got.Equal(decimal.RequireFromString(raw)) {
			t.Fatalf("FeeByParty[%s] = %s, want %s", party, got, raw)
		}
	}
}

func TestLoadConfigRejectsFractionAboveOne(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("REFERRAL_FEE_DEFAULT", "1.5")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for fee fraction above 1")
	}
}
