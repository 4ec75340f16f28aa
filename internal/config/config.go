package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Config is the process configuration, read from the environment.
type Config struct {
	Port           string `env:"PORT" envDefault:"8080"`
	Environment    string `env:"ENVIRONMENT" envDefault:"development"`
	UseMemoryStore bool   `env:"USE_MEMORY_STORE" envDefault:"false"`
	WebhookSecret  string `env:"WEBHOOK_SECRET"`
	AdminAPIKey    string `env:"ADMIN_API_KEY"`

	// Set on Cloud Run; switches the database to the unix socket and skips .env loading.
	InstanceConnectionName string `env:"INSTANCE_CONNECTION_NAME"`

	Database  DatabaseConfig  `envPrefix:"DB_"`
	Logger    LoggerConfig    `envPrefix:"LOG_"`
	Evolution EvolutionConfig `envPrefix:"EVOLUTION_"`
	Twilio    TwilioConfig    `envPrefix:"TWILIO_"`
	Bot       BotConfig       `envPrefix:"BOT_"`
}

type DatabaseConfig struct {
	User    string `env:"USER" envDefault:"postgres"`
	Pass    string `env:"PASS"`
	Name    string `env:"NAME" envDefault:"resellerbot"`
	Host    string `env:"HOST" envDefault:"localhost"`
	Port    int    `env:"PORT" envDefault:"5432"`
	SSLMode string `env:"SSLMODE" envDefault:"disable"`
	Debug   bool   `env:"DEBUG" envDefault:"false"`
}

type LoggerConfig struct {
	Mode       string `env:"MODE" envDefault:"development"`
	Level      string `env:"LEVEL" envDefault:"info"`
	FileEnable bool   `env:"FILE_ENABLE" envDefault:"false"`
	Filename   string `env:"FILENAME" envDefault:"logs/resellerbot.log"`
}

// EvolutionConfig points at the messaging gateway used by tenants on the
// default transport.
type EvolutionConfig struct {
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8081"`
	APIKey  string `env:"API_KEY"`
}

type TwilioConfig struct {
	AccountSID   string `env:"ACCOUNT_SID"`
	AuthToken    string `env:"AUTH_TOKEN"`
	WhatsAppFrom string `env:"WHATSAPP_FROM"` // Format: "whatsapp:+14155238886"
}

// BotConfig holds the interception engine tunables.
type BotConfig struct {
	LockStaleAfter   time.Duration `env:"LOCK_STALE_AFTER" envDefault:"30s"`
	DedupWindow      time.Duration `env:"DEDUP_WINDOW" envDefault:"10s"`
	DedupMaxEntries  int           `env:"DEDUP_MAX_ENTRIES" envDefault:"10000"`
	MenuCooldown     time.Duration `env:"MENU_COOLDOWN" envDefault:"30m"`
	HTTPTimeout      time.Duration `env:"HTTP_TIMEOUT" envDefault:"15s"`
	SendRate         float64       `env:"SEND_RATE" envDefault:"5"`
	LogRetentionDays int           `env:"LOG_RETENTION_DAYS" envDefault:"90"`
	PlanListLimit    int           `env:"PLAN_LIST_LIMIT" envDefault:"5"`
	NotifyPoolSize   int           `env:"NOTIFY_POOL_SIZE" envDefault:"16"`
	DeliverReplies   bool          `env:"DELIVER_REPLIES" envDefault:"true"`
}

// Load reads an optional .env file (local development only) and parses the
// environment into a Config.
func Load() (*Config, error) {
	if os.Getenv("INSTANCE_CONNECTION_NAME") == "" {
		if err := godotenv.Load(".env"); err != nil {
			if err := godotenv.Load("environments/.env.development"); err != nil {
				zap.L().Debug("config: no .env file found, using process environment")
			}
		}
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Bot.LockStaleAfter <= 0 {
		return fmt.Errorf("BOT_LOCK_STALE_AFTER must be positive")
	}
	if c.Bot.DedupWindow <= 0 {
		return fmt.Errorf("BOT_DEDUP_WINDOW must be positive")
	}
	if c.Bot.HTTPTimeout <= 0 {
		return fmt.Errorf("BOT_HTTP_TIMEOUT must be positive")
	}
	if c.Bot.PlanListLimit <= 0 {
		c.Bot.PlanListLimit = 5
	}
	return nil
}

// IsProduction reports whether the process runs on Cloud Run or was
// explicitly marked as production.
func (c *Config) IsProduction() bool {
	return c.InstanceConnectionName != "" || c.Environment == "production"
}

// TwilioConfigured reports whether outbound Twilio delivery is available.
func (c *Config) TwilioConfigured() bool {
	return c.Twilio.AccountSID != "" && c.Twilio.AuthToken != "" && c.Twilio.WhatsAppFrom != ""
}
