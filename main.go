package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := NewAPIConfig(os.Stdout)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg.logger.Debug("configuration loaded")

	scheduler := NewScheduler(cfg, cfg.sweepInterval)
	cfg.logger.Info(
		"starting scheduler",
		"sweep", cfg.sweepInterval.String(),
		"idle", cfg.sessionIdle.String(),
	)
	scheduler.Start()

	mux := cfg.routes()
	if cfg.devMode {
		cfg.logger.Debug("development mode enabled. Registering /dev endpoints.")
		mux.HandleFunc("/dev/reset", cfg.handlerReset)
		mux.HandleFunc("/dev/runsweep", scheduler.handlerRunSweep)
	}

	server := &http.Server{
		Addr:              ":" + cfg.port,
		Handler:           corsMiddleware(cfg.allowedOrigin)(metricsMiddleware(mux)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       20 * time.Second,
		// GPS resolutions wait up to the acquisition timeout plus a reverse geocode.
		WriteTimeout: cfg.gpsTimeout + 20*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		cfg.logger.Info("starting server", "port", cfg.port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			cfg.logger.Error("server startup failed", "error", err)
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	cfg.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		cfg.logger.Error("graceful shutdown failed", "error", err)
	}
	scheduler.Stop()
}

// routes registers the public API.
func (cfg *apiConfig) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/location", cfg.handlerLocation)
	mux.HandleFunc("/api/location/zip", cfg.handlerLocationZip)
	mux.HandleFunc("/api/location/gps", cfg.handlerLocationGPS)
	mux.HandleFunc("/api/location/skip", cfg.handlerLocationSkip)
	mux.HandleFunc("/api/location/radius", cfg.handlerLocationRadius)
	mux.HandleFunc("/api/location/prompt", cfg.handlerLocationPrompt)
	mux.HandleFunc("/api/location/prompt/open", cfg.handlerLocationPromptOpen)
	mux.HandleFunc("/api/location/prompt/close", cfg.handlerLocationPromptClose)
	mux.HandleFunc("/api/products", cfg.handlerProducts)
	mux.HandleFunc("/api/config", cfg.handlerConfig)
	mux.HandleFunc("/healthz", cfg.handlerHealthz)
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}
