// Command live-herald watches one Twitch channel and announces each go-live
// in a Telegram group. It:
//   - Loads configuration from the environment and an optional env file.
//   - Keeps a Twitch user access token fresh, writing rotated refresh tokens
//     back to the env file.
//   - Polls Helix every POLL_INTERVAL and posts once per offline to live edge.
//   - Reports failures and startup to an admin chat.
//   - Exposes /healthz and /status unless HTTP_ADDR=off.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/onnwee/live-herald/config"
	"github.com/onnwee/live-herald/envfile"
	"github.com/onnwee/live-herald/monitor"
	"github.com/onnwee/live-herald/notify"
	"github.com/onnwee/live-herald/server"
	"github.com/onnwee/live-herald/telegram"
	"github.com/onnwee/live-herald/telemetry"
	"github.com/onnwee/live-herald/twitchapi"
)

var (
	envFile string
	once    bool
)

var rootCmd = &cobra.Command{
	Use:          "live-herald",
	Short:        "Twitch go-live notifier for Telegram",
	Long:         "Polls a Twitch channel and posts a message to a Telegram group each time the stream goes live",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&envFile, "env-file", "", "env file to load and to persist rotated refresh tokens into (default $ENV_FILE or .env)")
	rootCmd.Flags().BoolVar(&once, "once", false, "run a single poll cycle and exit")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		return err
	}
	telemetry.InitLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		slog.Error("config invalid", slog.Any("err", err))
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tg := &telegram.Client{Token: cfg.TelegramToken, ProxyURL: cfg.ProxyURL}
	sender := notify.NewSender(tg.NewTransport)

	store := envfile.New(cfg.EnvFile, config.RefreshTokenKey)
	tokens := twitchapi.NewTokenManager(cfg.TwitchClientID, cfg.TwitchClientSecret, initialRefreshToken(store, cfg.TwitchRefreshToken), store)
	tokens.OnRefreshError = func(ctx context.Context, err error) {
		sender.SendText(ctx, cfg.TelegramAdminChatID, fmt.Sprintf("❌ Token refresh failed: %v", err))
	}

	helix := &twitchapi.HelixClient{Tokens: tokens, ClientID: cfg.TwitchClientID}
	loop := monitor.NewLoop(monitor.NewPoller(helix, cfg.TwitchChannel), sender, cfg.TelegramGroupChatID, cfg.TelegramAdminChatID)
	loop.Interval = cfg.PollInterval

	if once {
		loop.Cycle(ctx)
		return nil
	}

	if cfg.HTTPAddr != "" {
		go func() {
			if err := server.Start(ctx, cfg.HTTPAddr, loop.Status); err != nil {
				slog.Error("http server stopped", slog.Any("err", err))
			}
		}()
	}

	slog.Info("notifier starting",
		slog.String("channel", cfg.TwitchChannel),
		slog.Duration("interval", cfg.PollInterval),
		slog.String("env_file", cfg.EnvFile))
	if err := loop.Run(ctx); err != nil {
		return err
	}
	slog.Info("shutdown complete")
	return nil
}

// initialRefreshToken prefers the token persisted in the env file. godotenv
// never overrides a variable already set in the process environment, so a
// token passed with e.g. docker -e would otherwise shadow every rotation.
func initialRefreshToken(store *envfile.Store, fromEnv string) string {
	persisted, err := store.Load()
	if err != nil {
		slog.Warn("could not read persisted refresh token; using environment", slog.String("path", store.Path), slog.Any("err", err))
		return fromEnv
	}
	if persisted == "" {
		return fromEnv
	}
	if persisted != fromEnv {
		slog.Info("using refresh token persisted in env file", slog.String("path", store.Path))
	}
	return persisted
}
