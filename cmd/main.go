package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dosada05/wager-match/config"
	"github.com/Dosada05/wager-match/db"
	_ "github.com/Dosada05/wager-match/docs"
	"github.com/Dosada05/wager-match/games"
	"github.com/Dosada05/wager-match/handlers"
	"github.com/Dosada05/wager-match/middleware"
	"github.com/Dosada05/wager-match/realtime"
	"github.com/Dosada05/wager-match/repositories"
	api "github.com/Dosada05/wager-match/routes"
	"github.com/Dosada05/wager-match/services"
	"github.com/Dosada05/wager-match/storage"
	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
)

// @title Wager Match API
// @version 1.0
// @description Wagered head-to-head matches: lobby, escrow, scoring and settlement.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @securityDefinitions.apikey OperatorKey
// @in header
// @name X-Operator-Key
func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	// Настройка логгера
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Подключение к базе данных
	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	if err := db.Migrate(ctx, dbConn); err != nil {
		logger.Error("failed to migrate database", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("database connection established")

	// Лента изменений матчей (LISTEN/NOTIFY)
	feed, err := repositories.NewPostgresMatchFeed(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to start match change feed", slog.Any("error", err))
		os.Exit(1)
	}
	defer feed.Close()
	go feed.Run(ctx)

	// Архив расчетов в Cloudflare R2 (опционально)
	var archive storage.ReceiptArchive
	r2Config := storage.CloudflareR2UploaderConfig{
		AccountID:       cfg.R2AccountID,
		AccessKeyID:     cfg.R2AccessKeyID,
		SecretAccessKey: cfg.R2SecretAccessKey,
		BucketName:      cfg.R2BucketName,
		PublicBaseURL:   cfg.R2PublicBaseURL,
	}
	if r2Config.Enabled() {
		uploader, err := storage.NewCloudflareR2Uploader(ctx, r2Config)
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		archive = storage.NewReceiptArchive(uploader, "receipts")
		logger.Info("Cloudflare R2 receipt archive initialized")
	} else {
		logger.Info("R2 is not configured, settlement receipts will not be archived")
	}

	// Инициализация репозиториев
	matchRepo := repositories.NewPostgresMatchRepository(dbConn, feed)
	ledger := repositories.NewPostgresWalletLedger(dbConn)
	participantRepo := repositories.NewPostgresParticipantRepository(dbConn)

	if _, err := ledger.CreateAccount(ctx, cfg.PlatformAccountID, cfg.DefaultCurrency); err != nil && !errors.Is(err, repositories.ErrWalletConflict) {
		logger.Error("failed to open platform fee account", slog.Any("error", err))
		os.Exit(1)
	}

	// Инициализация сервисов
	clock := clockwork.NewRealClock()
	registry := games.DefaultRegistry()
	codes, err := services.NewCodeGenerator(cfg.CodeLength)
	if err != nil {
		logger.Error("invalid match code settings", slog.Any("error", err))
		os.Exit(1)
	}

	escrowService := services.NewEscrowService(services.EscrowServiceDeps{
		Matches:           matchRepo,
		Ledger:            ledger,
		Participants:      participantRepo,
		Games:             registry,
		Archive:           archive,
		PlatformAccountID: cfg.PlatformAccountID,
		Clock:             clock,
		Logger:            logger,
	})
	matchService := services.NewMatchService(
		matchRepo,
		ledger,
		participantRepo,
		escrowService,
		registry,
		codes,
		services.MatchSettings{
			DefaultStake:    cfg.DefaultStake,
			DefaultCurrency: cfg.DefaultCurrency,
			PayoutFraction:  cfg.PayoutFraction,
		},
		logger,
	)
	scoreService := services.NewScoreService(matchRepo, escrowService, logger)
	participantService := services.NewParticipantService(participantRepo, ledger, cfg.DefaultCurrency, logger)
	logger.Info("Services initialized")

	// Фоновая обработка зависших матчей
	sweeper := services.NewSweeper(matchRepo, matchService, escrowService, services.SweeperConfig{
		AbandonAfter:   cfg.AbandonAfter,
		PlayingTimeout: cfg.PlayingTimeout,
		Interval:       cfg.SweepInterval,
		Concurrency:    cfg.SweepConcurrency,
	}, clock, logger)
	if err := sweeper.Start(ctx); err != nil {
		logger.Error("failed to start match sweeper", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := sweeper.Stop(); err != nil {
			logger.Error("failed to stop match sweeper", slog.Any("error", err))
		}
	}()

	// Инициализация WebSocket Hub
	wsHub := realtime.NewHub(matchRepo, logger)
	go wsHub.Run(ctx)
	logger.Info("WebSocket Hub started")

	// Инициализация обработчиков HTTP
	tokens := middleware.NewTokenIssuer(cfg.JWTSecretKey, 24*time.Hour)
	router := chi.NewRouter()
	api.SetupRoutes(router, api.Handlers{
		Auth:        handlers.NewAuthHandler(participantService, tokens),
		Participant: handlers.NewParticipantHandler(participantService),
		Match:       handlers.NewMatchHandler(matchService, scoreService, escrowService),
		WebSocket:   handlers.NewWebSocketHandler(wsHub, matchService, cfg.CORSAllowedOrigins, logger),
	}, tokens, cfg.CORSAllowedOrigins, cfg.OperatorAPIKey)
	if cfg.OperatorAPIKey == "" {
		logger.Info("OPERATOR_API_KEY is not set, wallet deposit routes are disabled")
	}
	logger.Info("Routes configured")

	// Настройка и запуск HTTP-сервера
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Ожидание сигнала завершения
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			return
		}
		logger.Info("server stopped gracefully")
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", 15*time.Second))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			return
		}
		logger.Info("server shutdown complete")
	}
	logger.Info("application exited")
}
