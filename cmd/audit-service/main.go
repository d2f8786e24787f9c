package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/raredx/triage/pkg/audit"
	"github.com/raredx/triage/pkg/common/config"
	"github.com/raredx/triage/pkg/common/database"
	"github.com/raredx/triage/pkg/common/kafka"
	"github.com/raredx/triage/pkg/common/logger"
	"github.com/raredx/triage/pkg/gateway/middleware"
	"github.com/raredx/triage/pkg/observability/metrics"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to database")
	}
	defer database.ClosePostgres()

	repo := audit.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("Failed to migrate prediction log tables")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.PredictionEventTopic, cfg.KafkaGroupID+"-audit")
	defer consumer.Close()

	// The consumer stops on an event it cannot store; exiting lets the group
	// redeliver from the last committed offset on restart.
	recorder := audit.NewRecorder(repo)
	consumerDone := make(chan error, 1)
	go func() {
		consumerDone <- consumer.Consume(ctx, recorder.Handle)
	}()

	router := mux.NewRouter()
	router.Use(middleware.Logging)
	router.Use(middleware.Recovery)
	router.HandleFunc("/health", healthCheck).Methods(http.MethodGet)
	router.HandleFunc("/metrics", metrics.Handler).Methods(http.MethodGet)
	audit.NewHandler(repo).Register(router.PathPrefix("/api/v1").Subrouter())

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.AuditPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host":  cfg.ServerHost,
			"port":  cfg.AuditPort,
			"topic": cfg.PredictionEventTopic,
		}).Info("Audit Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-quit:
	case err := <-consumerDone:
		logger.Log.WithError(err).Error("Prediction event consumer stopped")
		exitCode = 1
	}

	logger.Log.Info("Shutting down Audit Service...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	logger.Log.Info("Audit Service stopped")
	if exitCode != 0 {
		consumer.Close()
		database.ClosePostgres()
		os.Exit(exitCode)
	}
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}
