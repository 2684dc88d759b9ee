package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/ajabadia/ABDElevators-sub012/internal/adapters/http"
	"github.com/ajabadia/ABDElevators-sub012/internal/bootstrap"
	"github.com/ajabadia/ABDElevators-sub012/internal/config"
	"github.com/ajabadia/ABDElevators-sub012/internal/observability/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.Setup(cfg.ServiceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	router := httpadapter.NewRouter(
		app.Retrieval,
		app.CacheAdmin,
		app.BreakerAdmin,
		app.Metrics,
		httpadapter.Options{
			Service:             cfg.ServiceName,
			DefaultEnvironment:  cfg.Environment,
			RateLimitRPS:        cfg.APIRateLimitRPS,
			RateLimitBurst:      cfg.APIRateLimitBurst,
			MaxConcurrent:       cfg.APIMaxConcurrent,
			BackpressureTimeout: time.Duration(cfg.APIBackpressureTimeoutMillis) * time.Millisecond,
		},
	).Handler()

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := app.RunInvalidationSubscriber(ctx); err != nil {
			logger.Error("invalidation subscriber stopped", "error", err)
		}
	}()

	go func() {
		logger.Info("api listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown error", "error", err)
	}
}
