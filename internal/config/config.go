// Package config reads process settings from the environment, after loading
// a .env file when one is present.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dravya/backend/internal/money"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Port        string
	DatabaseURL string
	Store       string
	JWTSecret   string
	Currency    string
	MaxTopUp    money.Amount

	ProviderBaseURL string
	ProviderAPIKey  string
	ProviderTimeout time.Duration
	ProviderRPS     float64

	ReconcileInterval    time.Duration
	ReconcileGrace       time.Duration
	ReconcileMaxAttempts int
	ReconcileBatch       int

	AllowedOrigins []string
	RateLimitRPS   float64

	AdminEmail    string
	AdminPassword string
}

// Load reads .env (if any) and then the environment. Unset variables take
// their defaults; malformed ones are errors.
func Load() (Config, error) {
	switch err := godotenv.Load(); {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		slog.Debug(".env not found, using environment only")
	default:
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv.
func FromEnv(getenv func(string) string) (Config, error) {
	p := parser{getenv: getenv}
	c := Config{
		Port:        p.str("PORT", "8080"),
		DatabaseURL: p.str("DATABASE_URL", ""),
		Store:       p.str("STORE", ""),
		JWTSecret:   p.str("JWT_SECRET", ""),
		Currency:    p.str("CURRENCY", "INR"),
		MaxTopUp:    p.amount("MAX_TOPUP", "1000000.00"),

		ProviderBaseURL: strings.TrimRight(p.str("PROVIDER_BASE_URL", ""), "/"),
		ProviderAPIKey:  p.str("PROVIDER_API_KEY", ""),
		ProviderTimeout: p.duration("PROVIDER_TIMEOUT", 30*time.Second),
		ProviderRPS:     p.number("PROVIDER_RPS", 10),

		ReconcileInterval:    p.duration("RECONCILE_INTERVAL", 2*time.Minute),
		ReconcileGrace:       p.duration("RECONCILE_GRACE", time.Minute),
		ReconcileMaxAttempts: p.integer("RECONCILE_MAX_ATTEMPTS", 60),
		ReconcileBatch:       p.integer("RECONCILE_BATCH", 100),

		AllowedOrigins: p.list("ALLOWED_ORIGINS", "http://localhost:3000"),
		RateLimitRPS:   p.number("RATE_LIMIT_RPS", 20),

		AdminEmail:    p.str("ADMIN_EMAIL", ""),
		AdminPassword: p.str("ADMIN_PASSWORD", ""),
	}
	if c.Store == "" {
		c.Store = StoreMemory
		if c.DatabaseURL != "" {
			c.Store = StorePostgres
		}
	}
	if err := p.err(); err != nil {
		return Config{}, err
	}
	return c, c.validate()
}

func (c Config) validate() error {
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL is required when STORE=postgres")
		}
	default:
		return fmt.Errorf("config: unknown STORE %q", c.Store)
	}
	if c.JWTSecret == "" {
		return errors.New("config: JWT_SECRET is required")
	}
	if !c.MaxTopUp.IsPositive() {
		return errors.New("config: MAX_TOPUP must be positive")
	}
	if (c.AdminEmail == "") != (c.AdminPassword == "") {
		return errors.New("config: ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}
	return nil
}

// parser collects every malformed variable instead of stopping at the first.
type parser struct {
	getenv func(string) string
	errs   []error
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("config: %s: %w", key, err))
		return def
	}
	return n
}

func (p *parser) number(key string, def float64) float64 {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("config: %s: %w", key, err))
		return def
	}
	return f
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("config: %s: %w", key, err))
		return def
	}
	return d
}

func (p *parser) amount(key, def string) money.Amount {
	a, err := money.Parse(p.str(key, def))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("config: %s: %w", key, err))
		return money.Zero
	}
	return a
}

func (p *parser) list(key, def string) []string {
	var out []string
	for _, s := range strings.Split(p.str(key, def), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (p *parser) err() error { return errors.Join(p.errs...) }
