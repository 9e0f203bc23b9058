package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all orbit-alerts configuration.
type Config struct {
	Storage   StorageConfig   `mapstructure:"storage"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	PriceFeed PriceFeedConfig `mapstructure:"pricefeed"`
	Server    ServerConfig    `mapstructure:"server"`
	App       AppConfig       `mapstructure:"app"`
	Channels  ChannelsConfig  `mapstructure:"channels"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// StorageConfig selects the database. Path is used by sqlite, DSN by postgres.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

// RedisConfig defines the price cache.
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	PriceTTL time.Duration `mapstructure:"price_ttl"`
}

// MonitorConfig defines the price check schedule.
type MonitorConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval"`
	Cooldown    time.Duration `mapstructure:"cooldown"`
	Concurrency int           `mapstructure:"concurrency"`
}

// PriceFeedConfig defines the CoinGecko client.
type PriceFeedConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout"`
	CoinIDsFile string        `mapstructure:"coin_ids_file"`
}

// ServerConfig defines the HTTP API.
type ServerConfig struct {
	Listen       string        `mapstructure:"listen"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	CronSecret   string        `mapstructure:"cron_secret"`
}

// AppConfig holds the public base URL used in links and voice callbacks.
type AppConfig struct {
	URL string `mapstructure:"url"`
}

// ChannelsConfig holds provider credentials.
type ChannelsConfig struct {
	Email    EmailConfig    `mapstructure:"email"`
	Twilio   TwilioConfig   `mapstructure:"twilio"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Slack    SlackConfig    `mapstructure:"slack"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
}

// EmailConfig defines Resend settings.
type EmailConfig struct {
	APIKey  string `mapstructure:"api_key"`
	From    string `mapstructure:"from"`
	BaseURL string `mapstructure:"base_url"`
}

// TwilioConfig defines SMS and voice settings.
type TwilioConfig struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	FromNumber string `mapstructure:"from_number"`
	BaseURL    string `mapstructure:"base_url"`
}

// TelegramConfig defines bot settings.
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	BaseURL  string `mapstructure:"base_url"`
}

// SlackConfig defines which webhook URLs users may register.
type SlackConfig struct {
	AllowedPrefix string `mapstructure:"allowed_prefix"`
}

// WebhookConfig defines generic webhook signing.
type WebhookConfig struct {
	Secret string `mapstructure:"secret"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from a .env file, the config file and
// environment variables, in increasing order of precedence.
func Load(cfgFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("find home directory: %w", err)
		}

		v.AddConfigPath(filepath.Join(home, ".orbit"))
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Defaults
	home, _ := os.UserHomeDir()
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", filepath.Join(home, ".orbit", "orbit.db"))
	v.SetDefault("storage.dsn", "")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.price_ttl", "30s")
	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.interval", "1m")
	v.SetDefault("monitor.cooldown", "1h")
	v.SetDefault("monitor.concurrency", 8)
	v.SetDefault("pricefeed.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("pricefeed.api_key", "")
	v.SetDefault("pricefeed.timeout", "10s")
	v.SetDefault("pricefeed.coin_ids_file", "")
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.cron_secret", "")
	v.SetDefault("app.url", "http://localhost:8080")
	v.SetDefault("channels.email.api_key", "")
	v.SetDefault("channels.email.from", "ORBIT Alerts <alerts@orbit.app>")
	v.SetDefault("channels.email.base_url", "https://api.resend.com")
	v.SetDefault("channels.twilio.account_sid", "")
	v.SetDefault("channels.twilio.auth_token", "")
	v.SetDefault("channels.twilio.from_number", "")
	v.SetDefault("channels.twilio.base_url", "https://api.twilio.com")
	v.SetDefault("channels.telegram.bot_token", "")
	v.SetDefault("channels.telegram.base_url", "https://api.telegram.org")
	v.SetDefault("channels.slack.allowed_prefix", "https://hooks.slack.com/")
	v.SetDefault("channels.webhook.secret", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Environment variables
	v.SetEnvPrefix("ORBIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
