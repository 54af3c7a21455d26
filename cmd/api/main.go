package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/BrightonDube/bizpilot-backend/api/routes"
	"github.com/BrightonDube/bizpilot-backend/internal/audit"
	"github.com/BrightonDube/bizpilot-backend/internal/laybyconfig"
	"github.com/BrightonDube/bizpilot-backend/internal/laybys"
	"github.com/BrightonDube/bizpilot-backend/internal/notifications"
	"github.com/BrightonDube/bizpilot-backend/pkg/config"
	"github.com/BrightonDube/bizpilot-backend/pkg/db"
	"github.com/BrightonDube/bizpilot-backend/pkg/logger"
	"github.com/BrightonDube/bizpilot-backend/pkg/migrate"
	"github.com/BrightonDube/bizpilot-backend/pkg/outbox"
	"github.com/BrightonDube/bizpilot-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, dbClient, logg); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	policyService, err := laybyconfig.NewService(laybyconfig.NewRepository(dbClient.DB()), cfg.Layby)
	if err != nil {
		logg.Error(context.Background(), "failed to create layby policy service", err)
		os.Exit(1)
	}
	auditService, err := audit.NewService(audit.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create audit service", err)
		os.Exit(1)
	}
	notificationsService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	laybyService, err := laybys.NewService(
		dbClient,
		laybys.NewRepository(dbClient.DB()),
		policyService,
		auditService,
		outboxService,
		notificationsService,
		nil,
		nil,
		logg,
		cfg.Layby.ReferencePrefix,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create layby service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, laybyService),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
