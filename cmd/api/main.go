package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vendorhub/leadrouter-backend/api/routes"
	"github.com/vendorhub/leadrouter-backend/internal/assignment"
	"github.com/vendorhub/leadrouter-backend/internal/capacity"
	"github.com/vendorhub/leadrouter-backend/internal/groups"
	"github.com/vendorhub/leadrouter-backend/internal/leads"
	"github.com/vendorhub/leadrouter-backend/internal/policy"
	"github.com/vendorhub/leadrouter-backend/pkg/config"
	"github.com/vendorhub/leadrouter-backend/pkg/db"
	"github.com/vendorhub/leadrouter-backend/pkg/logger"
	"github.com/vendorhub/leadrouter-backend/pkg/metrics"
	"github.com/vendorhub/leadrouter-backend/pkg/migrate"
	"github.com/vendorhub/leadrouter-backend/pkg/redis"
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

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
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

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	distMetrics := metrics.NewDistributionMetrics(registry)

	leadRepo := leads.NewRepository(dbClient.DB())
	groupRepo := groups.NewRepository(dbClient.DB())
	capacityRepo := capacity.NewRepository(dbClient.DB())
	policyRepo := policy.NewRepository(dbClient.DB())
	recordRepo := assignment.NewRepository(dbClient.DB())

	ledger, err := capacity.NewLedger(capacityRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create capacity ledger", err)
		os.Exit(1)
	}

	leadService, err := leads.NewService(leadRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create lead service", err)
		os.Exit(1)
	}

	groupService, err := groups.NewService(groupRepo, ledger, leadRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create group service", err)
		os.Exit(1)
	}

	policyService, err := policy.NewService(policyRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create policy service", err)
		os.Exit(1)
	}

	coordinator, err := assignment.NewService(
		leadRepo,
		groupRepo,
		ledger,
		policyService,
		policyRepo,
		recordRepo,
		dbClient,
		logg,
		distMetrics,
		cfg.Distribution,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create assignment coordinator", err)
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
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:      cfg,
			Logger:      logg,
			DBPinger:    dbClient,
			Redis:       redisClient,
			Leads:       leadService,
			Groups:      groupService,
			Ledger:      ledger,
			Policies:    policyService,
			Coordinator: coordinator,
			Registry:    registry,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
