// Package config loads environment variables and provides a typed Config used across the service.
// Values may come from the real environment or from an env file; the env file is also where a
// rotated Twitch refresh token is written back, so it is loaded without overriding real env vars.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultEnvFile is read when neither --env-file nor ENV_FILE is given.
const DefaultEnvFile = ".env"

// RefreshTokenKey is the env key holding the Twitch refresh token.
const RefreshTokenKey = "TWITCH_REFRESH_TOKEN"

type Config struct {
	// Twitch
	TwitchClientID     string
	TwitchClientSecret string
	TwitchRefreshToken string
	TwitchChannel      string

	// Telegram
	TelegramToken       string
	TelegramGroupChatID int64
	TelegramAdminChatID int64
	ProxyURL            string

	// Loop
	PollInterval time.Duration

	// HTTP health server; empty disables it.
	HTTPAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// EnvFile is where the refresh token is persisted.
	EnvFile string
}

// Load reads envFile (if present) into the process environment and builds the Config.
// An empty envFile means ENV_FILE or DefaultEnvFile. Call Validate before starting the loop.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = os.Getenv("ENV_FILE")
	}
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
		slog.Info("no env file found, using environment variables", slog.String("path", envFile))
	}

	cfg := &Config{EnvFile: envFile}

	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchClientSecret = os.Getenv("TWITCH_CLIENT_SECRET")
	cfg.TwitchRefreshToken = os.Getenv(RefreshTokenKey)
	cfg.TwitchChannel = strings.ToLower(strings.TrimSpace(os.Getenv("TWITCH_CHANNEL")))

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	var err error
	if cfg.TelegramGroupChatID, err = chatID("TELEGRAM_GROUP_CHAT_ID"); err != nil {
		return nil, err
	}
	if cfg.TelegramAdminChatID, err = chatID("TELEGRAM_ADMIN_CHAT_ID"); err != nil {
		return nil, err
	}
	cfg.ProxyURL = os.Getenv("TELEGRAM_PROXY_URL")
	if cfg.ProxyURL == "" {
		cfg.ProxyURL = os.Getenv("PROXY_URL")
	}

	cfg.PollInterval = 300 * time.Second
	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid POLL_INTERVAL %q (want a positive duration like 5m)", v)
		}
		cfg.PollInterval = d
	}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if strings.EqualFold(cfg.HTTPAddr, "off") {
		cfg.HTTPAddr = ""
	}

	cfg.LogLevel = os.Getenv("LOG_LEVEL")
	cfg.LogFormat = os.Getenv("LOG_FORMAT")

	return cfg, nil
}

func chatID(key string) (int64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s (want a numeric chat id): %w", key, err)
	}
	return id, nil
}

// Validate checks that everything the notification loop needs is present.
func (c *Config) Validate() error {
	var missing []string
	for _, f := range []struct {
		name string
		ok   bool
	}{
		{"TWITCH_CLIENT_ID", c.TwitchClientID != ""},
		{"TWITCH_CLIENT_SECRET", c.TwitchClientSecret != ""},
		{RefreshTokenKey, c.TwitchRefreshToken != ""},
		{"TWITCH_CHANNEL", c.TwitchChannel != ""},
		{"TELEGRAM_TOKEN", c.TelegramToken != ""},
		{"TELEGRAM_GROUP_CHAT_ID", c.TelegramGroupChatID != 0},
		{"TELEGRAM_ADMIN_CHAT_ID", c.TelegramAdminChatID != 0},
	} {
		if !f.ok {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env: %s", strings.Join(missing, ", "))
	}
	return nil
}
