// cmd/editor-service/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"collabedit/internal/config"
	"collabedit/internal/editor"
	"collabedit/internal/logging"
	"collabedit/internal/metrics"
	"collabedit/internal/offline"
	"collabedit/internal/storage"
)

func main() {
	var (
		port    = flag.String("port", "", "Server port (overrides PORT env var)")
		env     = flag.String("env", "", "Environment (development, production)")
		envFile = flag.String("env-file", ".env", "Path to a .env file")
		useDB   = flag.Bool("use-db", true, "Enable Postgres persistence; false uses an in-memory store")
	)
	flag.Parse()

	cfg, err := config.Load(*envFile, *env)
	if err != nil {
		panic(err)
	}
	if *port != "" {
		cfg.Port = *port
	}

	logging.Init(cfg.Env)
	defer logging.Sync()

	logging.L().Info("starting editor service", zap.String("port", cfg.Port), zap.String("env", cfg.Env))

	var store storage.Store
	if *useDB && cfg.DatabaseURL != "" {
		pg, err := storage.OpenPostgresStore(cfg.DatabaseURL)
		if err != nil {
			logging.L().Warn("postgres connection failed, falling back to memory store", zap.Error(err))
			store = storage.NewMemoryStore()
		} else {
			if err := pg.Migrate(); err != nil {
				logging.L().Fatal("postgres migration failed", zap.Error(err))
			}
			defer pg.Close()
			store = pg
			logging.L().Info("postgres persistence enabled")
		}
	} else {
		store = storage.NewMemoryStore()
		logging.L().Info("running with in-memory document store (no persistence across restarts)")
	}

	offlineStore := offline.NewFileStore(cfg.OfflineStoreDir)

	editorConfig := &editor.Config{
		MaxMessageSize:   512 * 1024,
		WriteTimeout:     10 * time.Second,
		ReadTimeout:      60 * time.Second,
		PingInterval:     30 * time.Second,
		MaxClients:       1000,
		AutoSaveInterval: cfg.AutoSaveInterval,
	}

	service := editor.NewService(editorConfig, store, offlineStore)

	if err := service.Start(); err != nil {
		logging.L().Fatal("failed to start service", zap.Error(err))
	}

	metrics.Initialize()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", service.HandleWebSocket)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// /stats keeps the service's own JSON metrics snapshot alongside the
	// Prometheus exposition at /metrics.
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		snapshot := service.GetMetrics()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snapshot)
	})

	mux.Handle("/metrics", promhttp.Handler())

	if cfg.Env == "development" {
		fs := http.FileServer(http.Dir("../frontend/public"))
		mux.Handle("/", fs)
		logging.L().Info("serving static files from ../frontend/public")
	}

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: mux,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logging.L().Info("shutting down server")
		service.Shutdown()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	logging.L().Info("server running", zap.String("addr", server.Addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logging.L().Fatal("server error", zap.Error(err))
	}
}
