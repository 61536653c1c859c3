package config

import (
	"strings"
	"time"

	libconfig "parkease/libs/config"
	"parkease/services/wallet-client/internal/models"
)

// Backend points at the wallet API.
type Backend struct {
	BaseURL            string  `yaml:"baseUrl" env:"PARKEASE_BACKEND_URL" required:"true"`
	TimeoutSeconds     int     `yaml:"timeoutSeconds" env:"PARKEASE_BACKEND_TIMEOUT" default:"10"`
	RateLimitPerSecond float64 `yaml:"rateLimitPerSecond" env:"PARKEASE_BACKEND_RATE_LIMIT"`
}

// Identity configures the local assertion minter.
type Identity struct {
	Issuer      string `yaml:"issuer" env:"PARKEASE_IDENTITY_ISSUER" default:"parkease"`
	Secret      string `yaml:"secret" env:"PARKEASE_IDENTITY_SECRET" required:"true"`
	TTLMinutes  int    `yaml:"ttlMinutes" env:"PARKEASE_IDENTITY_TTL_MINUTES" default:"60"`
	UserID      string `yaml:"userId" env:"PARKEASE_USER_ID"`
	DisplayName string `yaml:"displayName" env:"PARKEASE_USER_NAME"`
	Email       string `yaml:"email" env:"PARKEASE_USER_EMAIL"`
}

// Payment configures the card processor.
type Payment struct {
	PublishableKey string `yaml:"publishableKey" env:"PARKEASE_STRIPE_PUBLISHABLE_KEY"`
	APIURL         string `yaml:"apiUrl" env:"PARKEASE_STRIPE_API_URL"`
}

// Journal configures where payment outcomes are kept. An empty address keeps them in memory.
type Journal struct {
	RedisAddr     string `yaml:"redisAddr" env:"PARKEASE_REDIS_ADDR"`
	RedisPassword string `yaml:"redisPassword" env:"PARKEASE_REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redisDb" env:"PARKEASE_REDIS_DB"`
	TTLHours      int    `yaml:"ttlHours" env:"PARKEASE_JOURNAL_TTL_HOURS" default:"720"`
}

// App holds client behaviour switches.
type App struct {
	Strict         bool   `yaml:"strict" env:"PARKEASE_STRICT"`
	CurrencySymbol string `yaml:"currencySymbol" env:"PARKEASE_CURRENCY_SYMBOL" default:"₹"`
}

// Config defines wallet client configuration.
type Config struct {
	Backend  Backend  `yaml:"backend"`
	Identity Identity `yaml:"identity"`
	Payment  Payment  `yaml:"payment"`
	Journal  Journal  `yaml:"journal"`
	App      App      `yaml:"app"`
}

// Load configuration via shared helper.
func Load(opts ...libconfig.Option) (*Config, error) {
	cfg := &Config{}
	if err := libconfig.LoadConfig(cfg, opts...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BackendTimeout returns http client timeout.
func (c *Config) BackendTimeout() time.Duration {
	if c.Backend.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

// AssertionTTL returns how long minted assertions stay valid.
func (c *Config) AssertionTTL() time.Duration {
	if c.Identity.TTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.Identity.TTLMinutes) * time.Minute
}

// JournalTTL returns how long journal entries are retained. Zero means forever.
func (c *Config) JournalTTL() time.Duration {
	if c.Journal.TTLHours <= 0 {
		return 0
	}
	return time.Duration(c.Journal.TTLHours) * time.Hour
}

// Account returns the principal the local identity provider signs in.
func (c *Config) Account() models.Principal {
	return models.Principal{
		UserID:      strings.TrimSpace(c.Identity.UserID),
		DisplayName: c.Identity.DisplayName,
		Email:       c.Identity.Email,
	}
}

// Currency returns the symbol prefixed to amounts.
func (c *Config) Currency() string {
	if c.App.CurrencySymbol == "" {
		return "₹"
	}
	return c.App.CurrencySymbol
}
