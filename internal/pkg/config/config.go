package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DatabaseConfig  `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Stripe    StripeConfig    `mapstructure:"stripe"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
}

// ---- Leaf structs ----

type AppConfig struct {
	Env string `mapstructure:"env"`
	URL string `mapstructure:"url"`
}

type HTTPConfig struct {
	Host      string `mapstructure:"host"`
	Port      string `mapstructure:"port"`
	BodyLimit int    `mapstructure:"body_limit"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RateLimitConfig struct {
	Max    int           `mapstructure:"max"`
	Window time.Duration `mapstructure:"window"`
}

type StripeConfig struct {
	SecretKey     string        `mapstructure:"secret_key"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
	Prices        PriceIDConfig `mapstructure:"prices"`
}

type PriceIDConfig struct {
	ProMonthly      string `mapstructure:"pro_monthly"`
	ProYearly       string `mapstructure:"pro_yearly"`
	BusinessMonthly string `mapstructure:"business_monthly"`
	BusinessYearly  string `mapstructure:"business_yearly"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	JWKSURL   string `mapstructure:"jwks_url"`
	Issuer    string `mapstructure:"issuer"`
}

type MetricsConfig struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

type ArchiveConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	EndpointURL     string `mapstructure:"endpoint_url"`
	Prefix          string `mapstructure:"prefix"`
}

// envAliases binds keys to the variable names the web frontend already uses,
// so a single .env serves both.
var envAliases = map[string][]string{
	"stripe.prices.pro_monthly":      {"STRIPE_PRO_MONTHLY_PRICE_ID", "NEXT_PUBLIC_STRIPE_PRO_MONTHLY_PRICE_ID"},
	"stripe.prices.pro_yearly":       {"STRIPE_PRO_YEARLY_PRICE_ID", "NEXT_PUBLIC_STRIPE_PRO_YEARLY_PRICE_ID"},
	"stripe.prices.business_monthly": {"STRIPE_BUSINESS_MONTHLY_PRICE_ID", "NEXT_PUBLIC_STRIPE_BUSINESS_MONTHLY_PRICE_ID"},
	"stripe.prices.business_yearly":  {"STRIPE_BUSINESS_YEARLY_PRICE_ID", "NEXT_PUBLIC_STRIPE_BUSINESS_YEARLY_PRICE_ID"},
	"app.url":                        {"APP_URL", "NEXT_PUBLIC_APP_URL"},
	"auth.jwt_secret":                {"SUPABASE_JWT_SECRET", "AUTH_JWT_SECRET"},
	"db.dsn":                         {"DATABASE_URL", "DB_DSN"},
}

// Load reads embedded defaults, merges the YAML file at path (if provided),
// and applies environment overrides (STRIPE_SECRET_KEY -> stripe.secret_key).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// StripeConfigured reports whether both Stripe keys are set.
func (c Config) StripeConfigured() bool {
	return c.Stripe.SecretKey != "" && c.Stripe.WebhookSecret != ""
}

// IsDev reports whether the application runs in development mode.
func (c Config) IsDev() bool {
	return c.App.Env == "dev"
}

// Addr returns the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.HTTP.Host, c.HTTP.Port)
}

// AppURL returns the public base URL of the web frontend without a trailing slash.
func (c Config) AppURL() string {
	return strings.TrimRight(c.App.URL, "/")
}

// ValidateServe checks the settings the HTTP server cannot run without.
// Missing Stripe keys are not fatal; billing endpoints answer 503 instead.
func (c Config) ValidateServe() error {
	var errs []error
	if c.DB.DSN == "" {
		errs = append(errs, errors.New("db.dsn (DATABASE_URL) is required"))
	}
	if c.Auth.JWTSecret == "" && c.Auth.JWKSURL == "" {
		errs = append(errs, errors.New("auth.jwt_secret or auth.jwks_url is required"))
	}
	return errors.Join(errs...)
}
