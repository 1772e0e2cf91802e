package main

import (
	"buildtrack-backend/internal/api"
	"buildtrack-backend/internal/auth"
	"buildtrack-backend/internal/checklist"
	"buildtrack-backend/internal/config"
	"buildtrack-backend/internal/handlers"
	"buildtrack-backend/internal/integrations/slack"
	"buildtrack-backend/internal/realtime"
	"buildtrack-backend/internal/services"
	"buildtrack-backend/internal/store"
	"buildtrack-backend/internal/store/postgres"
	"buildtrack-backend/internal/store/sqlite"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := config.NewLogger(cfg)
	log.Logger = logger
	logger.Info().Msg("starting BuildTrack chat backend")

	// 2. Initialize Database
	dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second) // Timeout for initial connection
	defer dbCancel()

	chatStore, tasks, closeDB, err := openStore(dbCtx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("unable to open database")
	}
	defer closeDB()

	if err := chatStore.EnsureSchema(dbCtx); err != nil {
		logger.Fatal().Err(err).Msg("unable to apply schema")
	}
	logger.Info().Str("driver", cfg.DBDriver).Msg("database ready")

	// 3. Initialize Dependencies (Hub, Services, Handlers)
	hub := realtime.NewHub(cfg.WSSendBuffer, logger)

	var notifier services.CompletionNotifier
	if cfg.SlackEnabled() {
		slackNotifier, err := slack.NewNotifier(cfg.SlackBotToken, cfg.SlackChannelID, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid slack notifier settings")
		}
		if err := slackNotifier.Verify(dbCtx); err != nil {
			logger.Warn().Err(err).Msg("slack notifier unavailable, completions will not be announced")
		} else {
			notifier = slackNotifier
		}
	}

	chatService := services.NewChatService(chatStore, tasks, hub, notifier, logger)
	chatHandler := handlers.NewChatHandlers(chatService, logger)
	sessions := auth.NewSessionResolver(cfg.JWTSecret)

	gateway := realtime.NewGateway(realtime.GatewayConfig{
		PingInterval:   cfg.WSPingInterval,
		WriteTimeout:   cfg.WSWriteTimeout,
		ReadTimeout:    cfg.WSReadTimeout,
		MaxMessageSize: cfg.WSMaxMessageSize,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	}, hub, chatService, sessions, logger)

	var rateLimiter *api.RateLimiter
	if cfg.RedisURL != "" {
		redisClient, err := newRedisClient(dbCtx, cfg.RedisURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		defer redisClient.Close()
		rateLimiter = api.NewRateLimiter(redisClient, cfg.RateLimitPerMinute, logger)
	}

	// 4. Setup Router & Inject Dependencies
	router := api.NewRouter(api.RouterDependencies{
		ChatHandler: chatHandler,
		Gateway:     gateway,
		Sessions:    sessions,
		RateLimiter: rateLimiter,
		HealthCheck: chatStore.Ping,
		Config:      cfg,
		Logger:      logger,
	})

	// 5. Configure and Start HTTP Server
	// Websocket connections manage their own deadlines after the upgrade.
	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      65 * time.Second, // Above the 60s request timeout
		IdleTimeout:       120 * time.Second,
	}

	// Channel to listen for OS signals for graceful shutdown
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info().Str("port", cfg.HTTPPort).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Str("port", cfg.HTTPPort).Msg("could not listen")
		}
	}()

	<-stopChan
	logger.Info().Msg("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Shutdown does not track hijacked connections.
	closed := hub.DisconnectAll()
	logger.Info().Int("connections", closed).Msg("realtime connections closed")

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server graceful shutdown failed")
		return
	}
	logger.Info().Msg("server shutdown complete")
}

// openStore connects the configured backend and returns its chat store,
// checklist link and a close func.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (store.Store, checklist.TaskLink, func(), error) {
	switch cfg.DBDriver {
	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, nil, fmt.Errorf("failed to create sqlite directory: %w", err)
			}
		}
		s, err := sqlite.NewSQLiteStore(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		return s, checklist.NewSQLiteTaskLink(s.DB()), func() { s.Close() }, nil

	default:
		dbpool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("unable to create connection pool: %w", err)
		}
		if err := dbpool.Ping(ctx); err != nil {
			dbpool.Close()
			return nil, nil, nil, fmt.Errorf("unable to ping database: %w", err)
		}
		return postgres.NewPostgresStore(dbpool, logger), checklist.NewPostgresTaskLink(dbpool), dbpool.Close, nil
	}
}

func newRedisClient(ctx context.Context, url string, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		// The limiter fails open, so a missing redis only disables limiting.
		logger.Warn().Err(err).Msg("redis unreachable at startup, rate limiting is degraded")
	} else {
		logger.Info().Msg("redis connected, rate limiting enabled")
	}
	return client, nil
}
