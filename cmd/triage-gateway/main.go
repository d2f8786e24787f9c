package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raredx/triage/pkg/common/config"
	"github.com/raredx/triage/pkg/common/database"
	"github.com/raredx/triage/pkg/common/kafka"
	"github.com/raredx/triage/pkg/common/logger"
	"github.com/raredx/triage/pkg/common/models"
	"github.com/raredx/triage/pkg/dlp"
	"github.com/raredx/triage/pkg/gateway/middleware"
	"github.com/raredx/triage/pkg/gateway/routes"
	"github.com/raredx/triage/pkg/observability/metrics"
	"github.com/raredx/triage/pkg/prediction"
	"github.com/raredx/triage/pkg/rdx"
	"github.com/raredx/triage/pkg/registry"
	"github.com/raredx/triage/pkg/session"
	"github.com/raredx/triage/pkg/terminology"
)

const sweepInterval = 5 * time.Minute

func main() {
	logger.Init()
	cfg := config.Load()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	reg := newRegistry(ctx, cfg)
	sessions := newSessionStore(ctx, cfg)

	client := rdx.NewClientFromConfig(cfg)
	catalog := loadCatalog(ctx, cfg, client)
	logger.Log.WithField("terms", catalog.Len()).Info("Phenotype catalog loaded")

	rules := dlp.DefaultRules()
	if cfg.DLPRulesPath != "" {
		loaded, err := dlp.LoadRules(cfg.DLPRulesPath)
		if err != nil {
			logger.Log.WithError(err).Fatal("Failed to load DLP rules")
		}
		rules = loaded
	}
	detector, err := dlp.NewDetector(rules)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to compile DLP rules")
	}

	deps := prediction.Deps{
		Upstream: client,
		Registry: reg,
		Sessions: sessions,
		Resolver: catalog,
		Scrubber: detector,
	}
	if cfg.EventsEnabled {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.PredictionEventTopic)
		defer producer.Close()
		deps.Publisher = producer
		logger.Log.WithField("topic", cfg.PredictionEventTopic).Info("Prediction events enabled")
	}

	policy := prediction.FailFast
	if cfg.FallbackToDemo {
		policy = prediction.FallbackToDemo
	}
	service := prediction.NewService(deps, prediction.Options{
		Policy:        policy,
		MinSymptoms:   cfg.MinSymptoms,
		MaxCandidates: cfg.MaxCandidates,
		Source:        "triage-gateway",
	})

	searcher := terminology.NewSearcher(newSearchFunc(cfg, client, catalog))

	router := routes.NewRouter()
	router.Use(middleware.Logging)
	router.Use(middleware.Recovery)
	router.Use(middleware.BodyLimit(cfg.MaxRequestBody))
	router.Use(middleware.RateLimit(cfg.GatewayRateLimitRPS, cfg.GatewayRateLimitBurst))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/metrics", metrics.Handler).Methods(http.MethodGet)

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	routes.NewPredictionHandler(service).Register(apiRouter)
	routes.NewPhenotypeHandler(service, catalog, searcher).Register(apiRouter)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      middleware.CORS(router),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host":     cfg.ServerHost,
			"port":     cfg.ServerPort,
			"registry": cfg.RegistryBackend,
			"fallback": policy.String(),
		}).Info("Triage Gateway started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Triage Gateway...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}
	if cfg.RegistryBackend == "redis" || cfg.SessionBackend == "redis" {
		if err := database.CloseRedis(); err != nil {
			logger.Log.WithError(err).Warn("Failed to close Redis")
		}
	}

	logger.Log.Info("Triage Gateway stopped")
}

// loadCatalog reads the local catalog file, or downloads the remote catalog,
// or falls back to the built-in terms.
func loadCatalog(ctx context.Context, cfg *config.Config, client *rdx.Client) *terminology.Catalog {
	if cfg.CatalogPath != "" {
		catalog, err := terminology.Load(cfg.CatalogPath)
		if err != nil {
			logger.Log.WithError(err).WithField("path", cfg.CatalogPath).Fatal("Failed to load phenotype catalog")
		}
		return catalog
	}
	if cfg.CatalogBaseURL != "" {
		terms, err := client.ListPhenotypes(ctx)
		if err == nil && len(terms) > 0 {
			return terminology.NewCatalog(terms)
		}
		logger.Log.WithError(err).Warn("Failed to download phenotype catalog, using built-in terms")
	}
	return terminology.DefaultCatalog()
}

func newRegistry(ctx context.Context, cfg *config.Config) registry.Registry {
	if cfg.RegistryBackend == "redis" {
		return registry.NewRedisRegistry(database.GetRedis(cfg), "", cfg.RegistryTTL)
	}
	reg := registry.NewMemoryRegistry(cfg.RegistryTTL, cfg.RegistryMaxSessions)
	go reg.Run(ctx, sweepInterval)
	return reg
}

func newSessionStore(ctx context.Context, cfg *config.Config) session.Store {
	if cfg.SessionBackend == "redis" {
		return session.NewRedisStore(database.GetRedis(cfg), "", cfg.SessionTTL)
	}
	store := session.NewMemoryStore(cfg.SessionTTL)
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				store.Sweep()
			}
		}
	}()
	return store
}

// newSearchFunc prefers the remote catalog and falls back to the local one
// when the remote search fails for any reason other than cancellation.
func newSearchFunc(cfg *config.Config, client *rdx.Client, catalog *terminology.Catalog) terminology.SearchFunc {
	local := func(_ context.Context, query string) ([]models.PhenotypeTerm, error) {
		return catalog.Filter(query, 50), nil
	}
	if cfg.CatalogBaseURL == "" {
		return local
	}
	return func(ctx context.Context, query string) ([]models.PhenotypeTerm, error) {
		terms, err := client.SearchPhenotypes(ctx, query)
		if err == nil {
			return terms, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Log.WithError(err).Warn("remote phenotype search failed, using local catalog")
		return local(ctx, query)
	}
}
