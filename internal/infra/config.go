package infra

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"

	minTokenBytes = 16
)

// LedgerConfig configures the treasury watch.
type LedgerConfig struct {
	RPCEndpoint     string        `env:"XRPL_RPC_ENDPOINT" envDefault:"https://xrplcluster.com"`
	TreasuryAddress string        `env:"TREASURY_ADDRESS"`
	MonitoredAsset  string        `env:"MONITORED_ASSET"`
	PollInterval    time.Duration `env:"POLL_INTERVAL" envDefault:"10s"`
	FetchTimeout    time.Duration `env:"LEDGER_FETCH_TIMEOUT" envDefault:"20s"`
	Overlap         int64         `env:"LEDGER_OVERLAP" envDefault:"5"`
	StartOffset     int64         `env:"LEDGER_START_OFFSET" envDefault:"5000"`
	BackoffInitial  time.Duration `env:"POLL_BACKOFF_INITIAL" envDefault:"2s"`
	BackoffMax      time.Duration `env:"POLL_BACKOFF_MAX" envDefault:"2m"`
	VerifyWorkers   int           `env:"VERIFY_WORKERS" envDefault:"4"`
}

// DonationConfig configures memo issuance and verification policy.
type DonationConfig struct {
	MemoPrefix          string        `env:"MEMO_PREFIX" envDefault:"pft"`
	TokenBytes          int           `env:"TOKEN_BYTES" envDefault:"20"`
	DefaultMinimumRaw   string        `env:"DEFAULT_MINIMUM_AMOUNT" envDefault:"1"`
	RequestTTL          time.Duration `env:"REQUEST_TTL" envDefault:"1h"`
	AccumulatePartial   bool          `env:"ACCUMULATE_PARTIAL" envDefault:"false"`
	ExpirySweepInterval time.Duration `env:"EXPIRY_SWEEP_INTERVAL" envDefault:"1m"`
	NotifyTimeout       time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"5s"`

	DefaultMinimumAmount decimal.Decimal
}

// ReferralConfig configures fee attribution.
type ReferralConfig struct {
	FeeDefaultRaw string            `env:"REFERRAL_FEE_DEFAULT" envDefault:"0.20"`
	FeesRaw       map[string]string `env:"REFERRAL_FEES" envKeyValSeparator:":"`
	RegistryPath  string            `env:"REFERRAL_REGISTRY_PATH"`

	FeeDefault decimal.Decimal
	FeeByParty map[string]decimal.Decimal
}

// PayoutConfig configures referral fee disbursement.
type PayoutConfig struct {
	SourceAddress  string        `env:"PAYOUT_SOURCE_ADDRESS"`
	Decimals       int32         `env:"PAYOUT_DECIMALS" envDefault:"6"`
	MaxAttempts    uint          `env:"PAYOUT_MAX_ATTEMPTS" envDefault:"5"`
	BackoffInitial time.Duration `env:"PAYOUT_BACKOFF_INITIAL" envDefault:"1s"`
	BackoffMax     time.Duration `env:"PAYOUT_BACKOFF_MAX" envDefault:"30s"`
	SubmitTimeout  time.Duration `env:"PAYOUT_SUBMIT_TIMEOUT" envDefault:"15s"`
	Workers        int           `env:"PAYOUT_WORKERS" envDefault:"2"`
	SignerURL      string        `env:"SIGNER_URL"`
	SignerToken    string        `env:"SIGNER_TOKEN"`
}

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string        `env:"APP_ENV" envDefault:"development"`
	LogLevel         string        `env:"LOG_LEVEL"`
	Port             string        `env:"PORT" envDefault:"8080"`
	HTTPReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	HTTPIdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	APIToken         string        `env:"API_TOKEN"`
	RateLimitPerMin  int           `env:"RATE_LIMIT_PER_MINUTE" envDefault:"30"`
	CORSOrigins      []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	StoreDriver   string `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL   string `env:"DATABASE_URL"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"./data/donations.db"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	OTelEndpoint  string `env:"OTEL_ENDPOINT"`

	Ledger   LedgerConfig
	Donation DonationConfig
	Referral ReferralConfig
	Payout   PayoutConfig
}

// LoadConfig loads .env files when present, parses the environment and
// validates the result.
func LoadConfig() (*Config, error) {
	for _, file := range []string{".env", ".env.local"} {
		_ = godotenv.Load(file)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case StoreDriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}

	c.Ledger.TreasuryAddress = strings.TrimSpace(c.Ledger.TreasuryAddress)
	c.Ledger.MonitoredAsset = strings.TrimSpace(c.Ledger.MonitoredAsset)
	if c.Ledger.TreasuryAddress == "" {
		return fmt.Errorf("TREASURY_ADDRESS is required")
	}
	if c.Ledger.MonitoredAsset == "" {
		return fmt.Errorf("MONITORED_ASSET is required")
	}
	if c.Ledger.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if c.Ledger.Overlap < 0 || c.Ledger.StartOffset < 0 {
		return fmt.Errorf("LEDGER_OVERLAP and LEDGER_START_OFFSET must not be negative")
	}
	if c.Ledger.VerifyWorkers <= 0 {
		c.Ledger.VerifyWorkers = 1
	}

	if c.Donation.TokenBytes < minTokenBytes {
		return fmt.Errorf("TOKEN_BYTES must be at least %d", minTokenBytes)
	}
	c.Donation.MemoPrefix = strings.ToLower(strings.TrimSpace(c.Donation.MemoPrefix))
	if c.Donation.RequestTTL <= 0 {
		return fmt.Errorf("REQUEST_TTL must be positive")
	}
	minimum, err := decimal.NewFromString(strings.TrimSpace(c.Donation.DefaultMinimumRaw))
	if err != nil || !minimum.IsPositive() {
		return fmt.Errorf("DEFAULT_MINIMUM_AMOUNT must be a positive decimal")
	}
	c.Donation.DefaultMinimumAmount = minimum

	fee, err := parseFraction(c.Referral.FeeDefaultRaw)
	if err != nil {
		return fmt.Errorf("REFERRAL_FEE_DEFAULT: %w", err)
	}
	c.Referral.FeeDefault = fee
	c.Referral.FeeByParty = make(map[string]decimal.Decimal, len(c.Referral.FeesRaw))
	for party, raw := range c.Referral.FeesRaw {
		fraction, err := parseFraction(raw)
		if err != nil {
			return fmt.Errorf("REFERRAL_FEES[%s]: %w", party, err)
		}
		c.Referral.FeeByParty[strings.ToLower(strings.TrimSpace(party))] = fraction
	}

	if c.Payout.MaxAttempts == 0 {
		return fmt.Errorf("PAYOUT_MAX_ATTEMPTS must be positive")
	}
	if c.Payout.Workers <= 0 {
		c.Payout.Workers = 1
	}
	if c.Payout.SourceAddress == "" {
		c.Payout.SourceAddress = c.Ledger.TreasuryAddress
	}
	return nil
}

func parseFraction(raw string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid fraction %q", raw)
	}
	if v.IsNegative() || v.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("fraction %s outside [0,1]", v)
	}
	return v, nil
}
