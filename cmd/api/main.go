package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"imageapi/internal/generation"
	"imageapi/internal/http/handlers"
	httpapi "imageapi/internal/http/httpapi"
	"imageapi/internal/infra"
	"imageapi/internal/infra/geoip"
	"imageapi/internal/providers/fal"
)

func main() {
	// Load .env when present
	_ = godotenv.Load()

	// Config & logger; missing credentials stop the process here
	logger := infra.NewLogger(os.Getenv("APP_ENV"))
	cfg, err := infra.LoadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	logger = infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resolver, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	defer resolver.Close()

	metrics := infra.NewMetrics()

	client, err := fal.NewClient(fal.Options{
		APIKey:         cfg.FalAPIKey,
		QueueURL:       cfg.FalQueueURL,
		WebhookURL:     cfg.FalWebhookURL,
		HTTPClient:     &http.Client{Timeout: cfg.FalRequestTimeout},
		Logger:         &logger,
		RequestTimeout: cfg.FalRequestTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure fal client")
	}

	svc, err := generation.NewService(generation.Options{
		Queue:        client,
		DefaultModel: cfg.FalModel,
		Policy:       generation.Policy{Interval: cfg.PollInterval, MaxAttempts: cfg.PollMaxAttempts},
		Logger:       &logger,
		Metrics:      metrics,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure generation service")
	}

	app := handlers.NewApp(svc, &logger)
	router := httpapi.NewRouter(ctx, app, httpapi.Options{
		Logger:            logger,
		Metrics:           metrics,
		AllowedOrigins:    cfg.CORSAllowedOrigins,
		DefaultLocale:     cfg.DefaultLocale,
		CountryLookup:     resolver.Lookup(),
		RateLimitPerMin:   cfg.RateLimitPerMin,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().
			Str("addr", server.Addr()).
			Str("model", cfg.FalModel).
			Dur("poll_interval", cfg.PollInterval).
			Int("poll_max_attempts", cfg.PollMaxAttempts).
			Msg("server listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	// In-flight generations may still be polling; give them the full budget.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.PollInterval*time.Duration(cfg.PollMaxAttempts)+cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
