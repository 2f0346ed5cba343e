// Package config loads service configuration from environment variables
// plus an optional YAML policy file for reward and reconciliation tunables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy holds the business tunables the pipeline consults on every event.
// Values live in one place so tolerance and unit handling cannot drift
// between gateway integrations.
type Policy struct {
	// ToleranceKobo is the absolute amount-mismatch tolerance. Mismatches at
	// or under this raise no advisory. Default ₦1.
	ToleranceKobo int64 `yaml:"tolerance_kobo"`
	// KoboPerPoint converts order totals to loyalty points, floor-rounded.
	KoboPerPoint int64 `yaml:"kobo_per_point"`
	// FirstOrderMinKobo is the minimum total for the first-order bonus.
	FirstOrderMinKobo int64 `yaml:"first_order_min_kobo"`
	// FirstOrderBonusPoints is granted once per profile.
	FirstOrderBonusPoints int64 `yaml:"first_order_bonus_points"`
	// ReferralBonusPoints is granted to the referrer once per referred
	// customer, on that customer's first qualifying order.
	ReferralBonusPoints int64 `yaml:"referral_bonus_points"`
	// StreakTarget is the consecutive-day run that completes a streak.
	StreakTarget int `yaml:"streak_target"`
	// StreakBonusPoints is granted when a streak completes.
	StreakBonusPoints int64 `yaml:"streak_bonus_points"`
}

// DefaultPolicy returns the production defaults.
func DefaultPolicy() Policy {
	return Policy{
		ToleranceKobo:         100, // ₦1
		KoboPerPoint:          10000,
		FirstOrderMinKobo:     100000, // ₦1,000
		FirstOrderBonusPoints: 100,
		ReferralBonusPoints:   50,
		StreakTarget:          7,
		StreakBonusPoints:     200,
	}
}

// Config is the full service configuration.
type Config struct {
	Port int

	// DatabaseURL is the permission-scoped connection; AdminDatabaseURL is
	// the privileged connection used by the order-locator fallback and all
	// writes. When AdminDatabaseURL is empty the scoped connection is used
	// for both.
	DatabaseURL      string
	AdminDatabaseURL string

	RedisAddr string
	NATSURL   string

	PaystackSecret    string
	FlutterwaveSecret string
	MonnifySecret     string

	AdminJWTSecret string

	EmailBaseURL string
	EmailAPIKey  string
	EmailFrom    string
	AdminEmail   string

	SMSBaseURL    string
	SMSAccountSID string
	SMSAuthToken  string
	SMSFrom       string

	CRMBaseURL string
	CRMAPIKey  string

	ExternalTimeout time.Duration

	Policy Policy
}

// Load reads configuration from the environment. PAYHOOK_POLICY_FILE, when
// set, overlays the policy defaults from a YAML file.
func Load() (*Config, error) {
	cfg := &Config{
		Port:              envInt("PORT", 8080),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		AdminDatabaseURL:  os.Getenv("ADMIN_DATABASE_URL"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		NATSURL:           os.Getenv("NATS_URL"),
		PaystackSecret:    os.Getenv("PAYSTACK_WEBHOOK_SECRET"),
		FlutterwaveSecret: os.Getenv("FLUTTERWAVE_WEBHOOK_SECRET"),
		MonnifySecret:     os.Getenv("MONNIFY_WEBHOOK_SECRET"),
		AdminJWTSecret:    os.Getenv("ADMIN_JWT_SECRET"),
		EmailBaseURL:      envDefault("EMAIL_BASE_URL", "https://api.resend.com"),
		EmailAPIKey:       os.Getenv("EMAIL_API_KEY"),
		EmailFrom:         envDefault("EMAIL_FROM", "orders@amalafoods.ng"),
		AdminEmail:        os.Getenv("ADMIN_EMAIL"),
		SMSBaseURL:        envDefault("SMS_BASE_URL", "https://api.twilio.com"),
		SMSAccountSID:     os.Getenv("SMS_ACCOUNT_SID"),
		SMSAuthToken:      os.Getenv("SMS_AUTH_TOKEN"),
		SMSFrom:           os.Getenv("SMS_FROM"),
		CRMBaseURL:        os.Getenv("CRM_BASE_URL"),
		CRMAPIKey:         os.Getenv("CRM_API_KEY"),
		ExternalTimeout:   envDuration("EXTERNAL_TIMEOUT", 5*time.Second),
		Policy:            DefaultPolicy(),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if path := os.Getenv("PAYHOOK_POLICY_FILE"); path != "" {
		if err := loadPolicyFile(path, &cfg.Policy); err != nil {
			return nil, err
		}
	}
	if err := cfg.Policy.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SignatureMode describes how a gateway's signature will be treated, for
// startup diagnostics. A missing secret is an explicit configuration state,
// not a silent branch.
func SignatureMode(secret string) string {
	if secret == "" {
		return "permissive"
	}
	return "enforced"
}

// SMSConfigured reports whether the SMS channel can be used at all.
func (c *Config) SMSConfigured() bool {
	return c.SMSAccountSID != "" && c.SMSAuthToken != "" && c.SMSFrom != ""
}

func (p Policy) validate() error {
	if p.KoboPerPoint <= 0 {
		return fmt.Errorf("policy: kobo_per_point must be positive, got %d", p.KoboPerPoint)
	}
	if p.ToleranceKobo < 0 {
		return fmt.Errorf("policy: tolerance_kobo must not be negative, got %d", p.ToleranceKobo)
	}
	if p.StreakTarget < 2 {
		return fmt.Errorf("policy: streak_target must be at least 2, got %d", p.StreakTarget)
	}
	return nil
}

func loadPolicyFile(path string, p *Policy) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading policy file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return fmt.Errorf("parsing policy file %s: %w", path, err)
	}
	return nil
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
