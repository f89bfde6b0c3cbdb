package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/open-builders/feedback-relay/internal/bot"
	rcache "github.com/open-builders/feedback-relay/internal/cache/redis"
	"github.com/open-builders/feedback-relay/internal/common/logger"
	"github.com/open-builders/feedback-relay/internal/config"
	apphttp "github.com/open-builders/feedback-relay/internal/http"
	"github.com/open-builders/feedback-relay/internal/platform/db"
	redisplatform "github.com/open-builders/feedback-relay/internal/platform/redis"
	"github.com/open-builders/feedback-relay/internal/repository/sqlite"
	"github.com/open-builders/feedback-relay/internal/service/identity"
	"github.com/open-builders/feedback-relay/internal/service/linkcheck"
	"github.com/open-builders/feedback-relay/internal/service/routing"
	"github.com/open-builders/feedback-relay/internal/service/telegram"
	"github.com/open-builders/feedback-relay/internal/workers"
)

const serviceName = "feedback-relay"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		token     string
		ownerID   int64
		verbosity int
	)

	cmd := &cobra.Command{
		Use:           "relay",
		Short:         "Relay private messages between users and the bot owner",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("api-token") {
				cfg.APIToken = token
			}
			if cmd.Flags().Changed("owner-id") {
				cfg.OwnerID = ownerID
			}
			if cmd.Flags().Changed("verbose") {
				cfg.Verbosity = verbosity
			}

			logger.Init(serviceName, cfg.Verbosity)
			if err := cfg.Validate(); err != nil {
				logger.Error().Err(err).Msg("Invalid configuration")
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := run(ctx, cfg); err != nil {
				logger.Error().Err(err).Msg("Relay stopped")
				return err
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&token, "api-token", "t", "", "Bot API token (overrides API_TOKEN)")
	f.Int64VarP(&ownerID, "owner-id", "O", 0, "Telegram user id of the operator (overrides OWNER_ID)")
	f.CountVarP(&verbosity, "verbose", "v", "increase log verbosity (-v info, -vv debug)")
	f.SetNormalizeFunc(flagAliases)
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	sqlDB, err := db.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("sqlite open: %w", err)
	}
	defer sqlDB.Close()
	logger.Info().Str("path", cfg.DatabasePath).Msg("Database ready")

	var cache identity.ProfileCache
	if cfg.Redis.Addr != "" {
		rdb, err := redisplatform.Open(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("redis open: %w", err)
		}
		defer rdb.Close()
		cache = rcache.NewProfileCache(rdb, cfg.Redis.TTL)
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("Profile cache enabled")
	}

	ids := identity.NewService(sqlite.NewProfileRepository(sqlDB), sqlite.NewBanRepository(sqlDB), cache)
	ledger := sqlite.NewAttributionRepository(sqlDB)

	tg := telegram.NewClient(cfg.Telegram.APIURL, cfg.APIToken)
	me, err := tg.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	logger.Info().Int64("bot_id", me.ID).Str("username", me.Username).Msg("Connected to Bot API")

	var links routing.LinkChecker
	if cfg.LinkCheck.Enabled {
		al, err := linkcheck.Load(cfg.LinkCheck.AllowedHostsFile)
		if err != nil {
			return err
		}
		links = al
		logger.Info().Str("file", cfg.LinkCheck.AllowedHostsFile).Msg("Link check enabled")
	}

	resolver := routing.NewResolver(routing.Config{OperatorID: cfg.OwnerID}, tg, ids, ledger, links)
	dispatcher := bot.NewDispatcher(ctx, resolver, tg, cfg.MaxConcurrentHandlers)

	var transportErr error
	if cfg.Webhook.Enabled {
		if err := tg.SetWebhook(ctx, cfg.Webhook.URL, cfg.Webhook.Secret); err != nil {
			return fmt.Errorf("set webhook: %w", err)
		}
		transportErr = apphttp.Serve(dispatcher.Context(), cfg.Webhook.Addr, apphttp.NewRouter(dispatcher, cfg.Webhook.Secret))
	} else {
		transportErr = workers.NewUpdatePoller(tg, dispatcher, cfg.Telegram.PollTimeout).Start(dispatcher.Context())
	}

	// Handlers in flight finish before the database is closed.
	if err := dispatcher.Wait(); err != nil {
		return err
	}
	if transportErr != nil && !errors.Is(transportErr, context.Canceled) {
		return transportErr
	}
	logger.Info().Msg("Relay stopped gracefully")
	return nil
}
