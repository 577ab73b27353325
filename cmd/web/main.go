package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"sales-insights/internal/config"
	"sales-insights/internal/etl"
	"sales-insights/internal/handlers"
	"sales-insights/internal/middleware"
	"sales-insights/internal/observability"
	"sales-insights/internal/reference"
	"sales-insights/internal/server"
	"sales-insights/internal/services"
	"sales-insights/internal/store"
	"sales-insights/internal/ui/templates"
)

const (
	renderTimeout    = 10 * time.Second
	storeOpenTimeout = 30 * time.Second
)

func handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
	defer cancel()

	tenant := r.URL.Query().Get("tenant_id")
	if !etl.ValidTenant(tenant) {
		tenant = ""
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if err := templates.Dashboard(tenant).Render(ctx, w); err != nil {
		http.Error(w, "render error", http.StatusInternalServerError)
	}
}

// loadReference reads the optional customer master and geo tables. A master
// that cannot be read is logged and skipped; uploads then keep their own
// states.
func loadReference(cfg config.ReferenceConfig, logger *slog.Logger) (*reference.CustomerMaster, *reference.Geo, error) {
	var master *reference.CustomerMaster
	if cfg.CustomerMasterPath != "" {
		m, err := reference.LoadCustomerMaster(cfg.CustomerMasterPath)
		if err != nil {
			logger.Warn("customer master unavailable; state enrichment disabled",
				"path", cfg.CustomerMasterPath,
				"error", err)
		} else {
			master = m
			logger.Info("customer master loaded", "source", m.Source(), "customers", m.Len())
		}
	}

	geo, err := reference.LoadGeo(cfg.GeoPath)
	if err != nil {
		return nil, nil, err
	}
	return master, geo, nil
}

func buildHandler(cfg *config.Config, st store.Store, master *reference.CustomerMaster, geo *reference.Geo, logger *slog.Logger) http.Handler {
	pipeline := etl.New(etl.Config{
		FiscalYearStartMonth: cfg.Pipeline.FiscalYearStartMonth,
		Tax: etl.TaxRules{
			HomeState:     cfg.Tax.HomeState,
			DefaultRate:   cfg.Tax.DefaultRate,
			CategoryRates: cfg.Tax.CategoryRates,
		},
	}, master, st, logger)
	analytics := services.NewAnalytics(st, geo, logger)

	api := handlers.NewAPIHandlers(pipeline, st, analytics, handlers.Options{
		DecodeWorkers: cfg.Pipeline.DecodeWorkers,
		MaxBatchFiles: cfg.Pipeline.MaxBatchFiles,
	}, logger)
	sse := handlers.NewSSEHandlers(analytics, logger)

	srv := server.NewServer(api, sse, logger, &server.TemplateHandlers{
		Dashboard: handleDashboard,
	})

	rateLimiter := middleware.NewRateLimiter(cfg.Security)
	middlewareChain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Tenant(),
		middleware.Logger(logger),
		middleware.Tracing(logger),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Security),
		middleware.TrustedProxy(cfg.Security),
		middleware.RateLimit(rateLimiter, logger),
		middleware.MaxUploadBytes(cfg.Security.MaxUploadBytes),
	)
	return middlewareChain(srv)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"version", "1.0.0",
		"addr", cfg.Address(),
		"database_driver", cfg.Database.Driver,
		"tax_home_state", cfg.Tax.HomeState,
		"fiscal_year_start_month", cfg.Pipeline.FiscalYearStartMonth,
	)

	ctx, cancel := context.WithTimeout(context.Background(), storeOpenTimeout)
	start := time.Now()
	st, err := store.Open(ctx, cfg.Database, logger)
	cancel()
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	logger.Info("store ready", "driver", cfg.Database.Driver, "duration", time.Since(start))

	master, geo, err := loadReference(cfg.Reference, logger)
	if err != nil {
		logger.Error("failed to load reference data", "error", err)
		st.Close()
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      buildHandler(cfg, st, master, geo, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg)
	gracefulServer.RegisterShutdownHook(func(ctx context.Context) error {
		logger.Info("closing store")
		return st.Close()
	})

	if err := gracefulServer.ListenAndServe(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("application stopped gracefully")
}
