package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk/internal/api/http"
	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/cache"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/persistence"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	metrics := observability.NewMetrics("helpdesk")
	telemetry := observability.NewTelemetry(logger, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(cfg.Postgres.DSN, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	var (
		userRepo   repository.UserRepository
		ticketRepo repository.TicketRepository
	)
	if pg.Enabled() {
		userRepo = repository.NewUserRepository(pg.PoolHandle())
		ticketRepo = repository.NewTicketRepository(pg.PoolHandle())
	} else {
		logger.Warn("POSTGRES_DSN not set; using in-memory store")
		userRepo = repository.NewMemoryUserRepository()
		ticketRepo = repository.NewMemoryTicketRepository()
	}

	var (
		redis    *persistence.Redis
		views    service.ViewCache
		denylist auth.Denylist
	)
	if cfg.Cache.Enabled || cfg.Auth.RevocationEnabled {
		redis = persistence.NewRedis(ctx, cfg.Redis, logger)
		defer redis.Close()
	}
	if cfg.Cache.Enabled {
		views = cache.NewViewCache(redis.Client, cfg.Cache.ViewTTL())
	}
	if cfg.Auth.RevocationEnabled {
		denylist = auth.NewRedisDenylist(redis.Client)
	}

	dispatcher := events.NewInMemoryDispatcher(telemetry)
	service.NewNotificationService(dispatcher, telemetry, cfg.Notification).RegisterHandlers()

	tokens := auth.NewTokenService(cfg.Auth.Secret, telemetry)
	resolver := auth.NewResolver(tokens, userRepo, denylist, telemetry)
	cookies := auth.NewCookieManager(cfg.App.IsProduction(), telemetry)

	authService := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		UserRepo:   userRepo,
		Tokens:     tokens,
		Resolver:   resolver,
		Denylist:   denylist,
		Dispatcher: dispatcher,
		Telemetry:  telemetry,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: ticketRepo,
		Resolver:   resolver,
		Views:      views,
		Dispatcher: dispatcher,
		Telemetry:  telemetry,
	})

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:   handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Users:    handlers.NewUsersHandler(authService, cookies),
		Tickets:  handlers.NewTicketsHandler(ticketService, cookies),
		Sessions: auth.NewSessionMiddleware(cookies, resolver),
		Metrics:  metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.Shutdown(); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
