// Package config builds the process configuration once at startup. Values
// come from the environment, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/requiem-ai/gemrelay/llm"
	"github.com/requiem-ai/gemrelay/markup"
	"github.com/spf13/viper"
)

const DefaultWebhookListen = ":8080"

type Config struct {
	BotToken     string `mapstructure:"bot_token"`
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	GeminiModel  string `mapstructure:"gemini_model"`

	// WebhookURL is the public URL Telegram pushes updates to. When empty
	// the bot falls back to long polling.
	WebhookURL    string `mapstructure:"web_hook_url"`
	WebhookListen string `mapstructure:"web_hook_listen"`
	ForcePolling  bool   `mapstructure:"force_polling"`

	MarkupDialect    string `mapstructure:"markup_dialect"`
	MaxMessageLength int    `mapstructure:"max_message_length"`

	ResponseDumpPath string `mapstructure:"response_dump_path"`
	NotifyOnFailure  bool   `mapstructure:"notify_on_failure"`
	AllowedUserID    int64  `mapstructure:"user_id"`

	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`

	// EnvFile is where interactive setup persists values.
	EnvFile string `mapstructure:"-"`
}

var keys = []string{
	"bot_token",
	"gemini_api_key",
	"gemini_model",
	"web_hook_url",
	"web_hook_listen",
	"force_polling",
	"markup_dialect",
	"max_message_length",
	"response_dump_path",
	"notify_on_failure",
	"user_id",
	"log_level",
	"log_file",
}

// Load reads envFile into the process environment when it exists and binds
// the environment onto a Config. An empty envFile means ".env".
func Load(envFile string) (*Config, error) {
	if strings.TrimSpace(envFile) == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}

	v := viper.New()
	v.SetDefault("gemini_model", llm.GeminiDefaultModel)
	v.SetDefault("web_hook_listen", DefaultWebhookListen)
	v.SetDefault("markup_dialect", string(markup.DialectHTML))
	v.SetDefault("max_message_length", markup.DefaultLimit)
	v.SetDefault("notify_on_failure", true)
	v.SetDefault("log_level", "info")

	for _, key := range keys {
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}
	// TELEGRAM_SECRET is the older name of BOT_TOKEN
	if !v.IsSet("bot_token") {
		if secret := strings.TrimSpace(os.Getenv("TELEGRAM_SECRET")); secret != "" {
			v.Set("bot_token", secret)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	cfg.EnvFile = envFile
	cfg.BotToken = strings.TrimSpace(cfg.BotToken)
	cfg.GeminiAPIKey = strings.TrimSpace(cfg.GeminiAPIKey)
	cfg.WebhookURL = strings.TrimSpace(cfg.WebhookURL)

	return &cfg, nil
}

// Dialect returns the configured markup dialect.
func (c *Config) Dialect() (markup.Dialect, error) {
	return markup.ParseDialect(c.MarkupDialect)
}

// UseWebhook reports whether updates arrive by webhook instead of polling.
func (c *Config) UseWebhook() bool {
	return c.WebhookURL != "" && !c.ForcePolling
}

// Validate checks values that would otherwise fail on the first message.
// Missing credentials are reported by Missing, since setup may fill them in.
func (c *Config) Validate() error {
	if _, err := c.Dialect(); err != nil {
		return err
	}
	// zero selects the default
	if c.MaxMessageLength != 0 && (c.MaxMessageLength < markup.MinLimit || c.MaxMessageLength > markup.DefaultLimit) {
		return fmt.Errorf("MAX_MESSAGE_LENGTH %d is outside %d..%d", c.MaxMessageLength, markup.MinLimit, markup.DefaultLimit)
	}
	if c.WebhookURL != "" && !strings.HasPrefix(c.WebhookURL, "https://") {
		return fmt.Errorf("WEB_HOOK_URL %q must be an https URL", c.WebhookURL)
	}
	return nil
}

// Missing lists the environment keys of required credentials that are unset.
func (c *Config) Missing() []string {
	var missing []string
	if c.BotToken == "" {
		missing = append(missing, "BOT_TOKEN")
	}
	if c.GeminiAPIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	return missing
}
