package main

import (
    "context"
    "errors"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/joho/godotenv"
    "github.com/prometheus/client_golang/prometheus/promhttp"

    "reliefmap/internal/api"
    "reliefmap/internal/config"
    "reliefmap/internal/logger"
    "reliefmap/internal/metrics"
)

func main() {
    // .env is optional
    _ = godotenv.Load()
    log := logger.Setup()
    metrics.RegisterDefault()

    cfg, err := config.Load()
    if err != nil {
        log.Error("config_load_failed", "err", err)
        os.Exit(1)
    }
    srvDeps, err := api.NewServer(cfg)
    if err != nil {
        log.Error("server_init_failed", "err", err)
        os.Exit(1)
    }
    defer func() { _ = srvDeps.Close() }()

    mux := http.NewServeMux()
    srvDeps.Routes(mux)

    // Metrics
    mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

    srv := &http.Server{
        Addr:              cfg.Addr(),
        Handler:           api.LogMiddleware(mux),
        ReadHeaderTimeout: 5 * time.Second,
    }

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()
    go func() {
        <-ctx.Done()
        shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
        defer cancel()
        _ = srv.Shutdown(shutdownCtx)
    }()

    log.Info("api_listening", "addr", cfg.Addr(), "places_api", cfg.APIBaseURL)
    if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
        log.Error("server_error", "err", err)
        os.Exit(1)
    }
    log.Info("api_stopped")
}
