package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/uplink-support/ticketd/internal/api/http"
	"github.com/uplink-support/ticketd/internal/api/http/handlers"
	"github.com/uplink-support/ticketd/internal/auth"
	"github.com/uplink-support/ticketd/internal/config"
	"github.com/uplink-support/ticketd/internal/events"
	"github.com/uplink-support/ticketd/internal/observability"
	"github.com/uplink-support/ticketd/internal/persistence"
	"github.com/uplink-support/ticketd/internal/provisioner"
	"github.com/uplink-support/ticketd/internal/repository"
	"github.com/uplink-support/ticketd/internal/service"
	"github.com/uplink-support/ticketd/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	ticketRepo := repository.NewTicketRepository(pg.PoolHandle())
	channelGateway := provisioner.NewGateway(cfg.Provisioner, logger)
	dispatcher := events.NewInMemoryDispatcher()

	ticketService := service.NewTicketService(cfg.Ticket, service.TicketDependencies{
		TicketRepo:  ticketRepo,
		Provisioner: channelGateway,
		Locker:      redis,
		Cache:       redis,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})

	notifier := service.NewNotifier(dispatcher, logger, cfg.Notification.WebhookURL)
	notifier.RegisterHandlers()

	sweeper := worker.NewSweeper(ticketRepo, ticketService, logger,
		cfg.Ticket.SweepInterval(), cfg.Ticket.IdleTTL())
	sweeper.Start(ctx)
	defer sweeper.Stop()

	keepalive := worker.NewKeepAlive(cfg.KeepAlive, logger)
	if cfg.KeepAlive.Enabled {
		keepalive.Start(ctx)
		defer keepalive.Stop()
	}

	metrics := observability.NewMetrics()
	go func() {
		for result := range sweeper.Results() {
			metrics.RecordSweep(result.Closed, result.Failed)
		}
	}()

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokenManager)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Admin:          handlers.NewAdminHandler(ticketService, keepalive),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
