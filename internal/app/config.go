package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	BotToken    string `usage:"Chat platform bot token (SHOP_BOT_TOKEN)" flag:"bot-token"`
	DatabaseURL string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisAddr   string `default:"localhost:6379" usage:"Redis address for checkout locks" flag:"redis-addr"`
	HealthAddr  string `default:"0.0.0.0:8081" usage:"Health probe listen address" flag:"health-addr"`

	// Admins is a comma-separated list of owner user IDs.
	Admins string `usage:"Comma-separated owner user IDs" flag:"admins"`

	// AdminHandle is the public contact handle shown to shoppers in /help.
	AdminHandle string `env:"ADMIN_HANDLE" usage:"Public admin contact handle" flag:"admin-handle"`

	// DZDRate converts USD prices into the local-currency line next to them.
	// Zero disables the dual-currency rendering.
	DZDRate float64 `env:"DZD_RATE" default:"250" usage:"USD to DZD conversion rate for price display" flag:"dzd-rate"`

	AssistantKey string `usage:"Generative language API key for product drafting" flag:"assistant-key"`

	Loyalty  LoyaltyConfig
	Checkout CheckoutConfig
	Graceful GracefulConfig
}

// LoyaltyConfig controls the point economy.
type LoyaltyConfig struct {
	ReferrerBonus   int64         `default:"100" usage:"Points for the referrer at signup" flag:"referrer-bonus"`
	RefereeBonus    int64         `default:"50"  usage:"Points for the referred user at signup" flag:"referee-bonus"`
	PurchaseBonus   int64         `default:"100" usage:"Points for the referrer per referred purchase" flag:"purchase-bonus"`
	DailyReward     int64         `default:"10"  usage:"Points per daily claim" flag:"daily-reward"`
	DailyCooldown   time.Duration `default:"24h" usage:"Cooldown between daily claims" flag:"daily-cooldown"`
	PointsPerDollar int64         `default:"1000" usage:"Points charged per dollar of order total" flag:"points-per-dollar"`
}

// CheckoutConfig controls checkout behaviour.
type CheckoutConfig struct {
	LockTTL time.Duration `default:"30s" usage:"Per-user checkout lock TTL" flag:"lock-ttl"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and flags. Missing required values fail loudly at startup.
func LoadConfig() (*Config, error) {
	return loadConfig(os.Args[1:])
}

func loadConfig(args []string) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOP",
		Args:      args,
		Files:     []string{"config.yaml", "/etc/shop-bot/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}

	if cfg.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			cfg.DatabaseURL = v
		}
	}

	if cfg.BotToken == "" {
		return nil, errors.New("bot token is required: set SHOP_BOT_TOKEN")
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
	}
	if _, err := ParseAdminList(cfg.Admins); err != nil {
		return nil, errors.Wrap(err, "parse admin list")
	}
	if cfg.DZDRate < 0 {
		return nil, errors.New("DZD rate cannot be negative: set SHOP_DZD_RATE")
	}

	return &cfg, nil
}

// AdminIDs returns the parsed owner list. LoadConfig already validated it.
func (c *Config) AdminIDs() []int64 {
	ids, _ := ParseAdminList(c.Admins)
	return ids
}

// ParseAdminList parses a comma-separated list of user IDs. The Arabic
// comma shows up when the list is pasted from a localized keyboard, so it
// is accepted as a separator too.
func ParseAdminList(s string) ([]int64, error) {
	s = strings.ReplaceAll(s, "،", ",")
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, errors.Errorf("invalid admin id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
