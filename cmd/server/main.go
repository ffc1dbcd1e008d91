package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"fintrack/docs"
	"fintrack/internal/auth"
	"fintrack/internal/cache"
	"fintrack/internal/config"
	"fintrack/internal/db"
	"fintrack/internal/event"
	"fintrack/internal/exchange"
	"fintrack/internal/handler"
	"fintrack/internal/obs"
	"fintrack/internal/repository"
	"fintrack/internal/router"
	"fintrack/internal/service"
)

const shutdownTimeout = 10 * time.Second

// @title FinTrack API
// @version 1.0
// @description Personal finance tracker with cookie-based sessions, owner-scoped transactions and currency conversion.
// @host localhost:8080
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token. The access_token cookie set by /auth/login is accepted as well.
func main() {
	if err := run(); err != nil {
		slog.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := obs.NewLogger("fintrack", cfg.LogLevel)
	slog.SetDefault(logger)

	gormDB, err := db.Open(cfg.DBDriver, cfg.DSN())
	if err != nil {
		return fmt.Errorf("database init: %w", err)
	}
	if err := db.Migrate(gormDB, cfg.ResetDB, logger); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	cacheClient := cache.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer cacheClient.Close()

	metrics := obs.NewMetrics()

	// Repositories
	userRepo := repository.NewUserRepository(gormDB)
	transactionRepo := repository.NewTransactionRepository(gormDB)

	// Auth components
	jwtService := auth.NewJWTService(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.AccessTokenExpiry, cfg.RefreshTokenExpiry)
	revocations, err := revocationRegistry(cfg, cacheClient, logger)
	if err != nil {
		return err
	}
	authenticator := auth.NewAuthenticator(revocations, jwtService, userRepo, logger).
		OnReject(metrics.RecordAuthRejection)

	publisher := eventPublisher(cfg, logger)
	defer publisher.Close()

	breakerState := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 half-open, 2 open).",
	}, []string{"name"})
	metrics.Registerer().MustRegister(breakerState)
	rates := exchange.NewClient(cfg.ExchangeAPIURL, nil, exchange.DefaultBreakerConfig(), breakerState, logger)

	// Services
	authService := service.NewAuthService(userRepo, auth.NewBcryptHasher(0), jwtService, revocations, publisher, metrics, logger)
	transactionService := service.NewTransactionService(transactionRepo, publisher, logger)
	exchangeService := service.NewExchangeService(rates, cacheClient, cfg.ExchangeCacheTTL, logger)

	// Handlers
	cookies := auth.CookieConfig{
		Secure:   cfg.CookieSecure,
		SameSite: cfg.SameSite(),
		Domain:   cfg.CookieDomain,
	}
	handlers := router.Handlers{
		Auth:        handler.NewAuthHandler(authService, cookies),
		Transaction: handler.NewTransactionHandler(transactionService),
		Exchange:    handler.NewExchangeHandler(exchangeService),
	}

	if cfg.SwaggerHost != "" {
		host := strings.TrimPrefix(strings.TrimPrefix(cfg.SwaggerHost, "https://"), "http://")
		docs.SwaggerInfo.Host = host
	}

	e := echo.New()
	e.HidePort = true
	router.Register(e, cfg, logger, metrics, authenticator, handlers)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			slog.String("addr", addr),
			slog.String("swagger", fmt.Sprintf("http://%s/swagger/index.html", docs.SwaggerInfo.Host)),
			slog.String("revocation_backend", cfg.RevocationBackend),
		)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server start: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func revocationRegistry(cfg *config.Config, cacheClient *cache.Client, logger *slog.Logger) (auth.RevocationRegistry, error) {
	switch cfg.RevocationBackend {
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cacheClient.Ping(ctx); err != nil {
			return nil, fmt.Errorf("revocation backend redis: %w", err)
		}
		return auth.NewTokenStore(cacheClient), nil
	default:
		logger.Warn("using in-memory token revocation; revocations are lost on restart")
		return auth.NewMemoryRevocations(), nil
	}
}

func eventPublisher(cfg *config.Config, logger *slog.Logger) event.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		return event.NoopPublisher{}
	}
	return event.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
}
