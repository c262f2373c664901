package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// development fallbacks, only honoured when APP_ENV=development
const (
	devAccessSecret  = "dev-insecure-access-secret-change"
	devRefreshSecret = "dev-insecure-refresh-secret-change"
)

// Config is the process configuration. Defaults are applied first, then the
// environment (optionally seeded from a .env file) overrides them.
type Config struct {
	Port          string
	Env           string
	DSN           string
	AutoMigrate   bool
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	BcryptCost    int
	CORSOrigin    string
	LogLevel      string
	ImageHost     string
	UploadBase    string
	PublicBaseURL string
	ImageMaxDim   int
	S3Bucket      string
	S3Region      string
	S3Endpoint    string
	S3AccessKey   string
	S3SecretKey   string
	S3PublicURL   string
}

func (c *Config) LoadDefaults() {
	c.Port = "5000"
	c.Env = "production"
	c.AutoMigrate = true
	c.AccessTTL = 15 * time.Minute
	c.RefreshTTL = 10 * 24 * time.Hour
	c.BcryptCost = bcrypt.DefaultCost
	c.LogLevel = "info"
	c.ImageHost = "local"
	c.UploadBase = "uploads"
	c.ImageMaxDim = 1080
	c.S3Region = "us-east-1"
}

// LoadEnv overlays variables from the environment. Unset variables keep
// their current value.
func (c *Config) LoadEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("PORT", &c.Port)
	str("APP_ENV", &c.Env)
	str("DB_DSN", &c.DSN)
	str("ACCESS_TOKEN_SECRET", &c.AccessSecret)
	str("REFRESH_TOKEN_SECRET", &c.RefreshSecret)
	str("CORS_ORIGIN", &c.CORSOrigin)
	str("LOG_LEVEL", &c.LogLevel)
	str("IMAGE_HOST", &c.ImageHost)
	str("UPLOAD_BASE", &c.UploadBase)
	str("PUBLIC_BASE_URL", &c.PublicBaseURL)
	str("S3_BUCKET", &c.S3Bucket)
	str("S3_REGION", &c.S3Region)
	str("S3_ENDPOINT", &c.S3Endpoint)
	str("S3_ACCESS_KEY", &c.S3AccessKey)
	str("S3_SECRET_KEY", &c.S3SecretKey)
	str("S3_PUBLIC_URL", &c.S3PublicURL)

	var errs []error
	if v := os.Getenv("DB_AUTO_MIGRATE"); v != "" {
		switch strings.ToLower(v) {
		case "false", "0", "no":
			c.AutoMigrate = false
		default:
			c.AutoMigrate = true
		}
	}
	for key, dst := range map[string]*time.Duration{
		"ACCESS_TOKEN_EXPIRY":  &c.AccessTTL,
		"REFRESH_TOKEN_EXPIRY": &c.RefreshTTL,
	} {
		if v := os.Getenv(key); v != "" {
			d, err := parseExpiry(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				continue
			}
			*dst = d
		}
	}
	for key, dst := range map[string]*int{
		"IMAGE_MAX_DIM": &c.ImageMaxDim,
		"BCRYPT_COST":   &c.BcryptCost,
	} {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				continue
			}
			*dst = n
		}
	}
	return errors.Join(errs...)
}

// LocalDev reports whether the process runs in local development, where
// cookies are not marked Secure and fallback secrets are allowed.
func (c *Config) LocalDev() bool {
	return strings.EqualFold(c.Env, "development")
}

func (c *Config) Validate() error {
	if c.LocalDev() {
		if c.AccessSecret == "" {
			c.AccessSecret = devAccessSecret
		}
		if c.RefreshSecret == "" {
			c.RefreshSecret = devRefreshSecret
		}
	}
	var errs []error
	if c.AccessSecret == "" {
		errs = append(errs, errors.New("ACCESS_TOKEN_SECRET is not set"))
	}
	if c.RefreshSecret == "" {
		errs = append(errs, errors.New("REFRESH_TOKEN_SECRET is not set"))
	}
	if c.AccessSecret != "" && c.AccessSecret == c.RefreshSecret {
		errs = append(errs, errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ"))
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token expiries must be positive"))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	switch c.ImageHost {
	case "local", "s3":
	default:
		errs = append(errs, fmt.Errorf("IMAGE_HOST %q is not one of local, s3", c.ImageHost))
	}
	return errors.Join(errs...)
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// PublicURL is the base URL the server is reachable at.
func (c *Config) PublicURL() string {
	if c.PublicBaseURL != "" {
		return strings.TrimRight(c.PublicBaseURL, "/")
	}
	return "http://localhost" + c.Addr()
}

// LoadConfig builds the configuration from defaults, an optional env file and
// the process environment. A missing env file is not an error.
func LoadConfig(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := cfg.LoadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// maxExpiryDays is the largest day count a time.Duration can hold.
const maxExpiryDays = 106751

// parseExpiry accepts Go durations plus a "d" suffix for days ("10d").
func parseExpiry(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if days, ok := strings.CutSuffix(v, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 || n > maxExpiryDays {
			return 0, fmt.Errorf("invalid expiry %q", v)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid expiry %q", v)
	}
	return d, nil
}
