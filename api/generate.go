// Package handler exposes the image generation endpoint as a single function
// for serverless platforms that invoke an exported http.HandlerFunc per request.
package handler

import (
	"net/http"
	"sync"

	"imageapi/internal/generation"
	"imageapi/internal/http/handlers"
	"imageapi/internal/infra"
	"imageapi/internal/middleware"
	"imageapi/internal/providers/fal"
)

var (
	entryMu sync.Mutex
	entry   http.Handler
)

// Handler serves POST requests with a JSON generation body. Configuration is
// read from the environment until a build succeeds; the result is reused by
// later invocations.
func Handler(w http.ResponseWriter, r *http.Request) {
	h, err := loadEntry()
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"ok":false,"error":"server misconfigured"}`))
		return
	}
	h.ServeHTTP(w, r)
}

func loadEntry() (http.Handler, error) {
	entryMu.Lock()
	defer entryMu.Unlock()
	if entry != nil {
		return entry, nil
	}
	h, err := build()
	if err != nil {
		return nil, err
	}
	entry = h
	return entry, nil
}

func build() (http.Handler, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := infra.NewLogger(cfg.AppEnv)
	return newEntry(cfg, &logger)
}

func newEntry(cfg *infra.Config, logger *infra.Logger) (http.Handler, error) {
	client, err := fal.NewClient(fal.Options{
		APIKey:         cfg.FalAPIKey,
		QueueURL:       cfg.FalQueueURL,
		WebhookURL:     cfg.FalWebhookURL,
		Logger:         logger,
		RequestTimeout: cfg.FalRequestTimeout,
	})
	if err != nil {
		return nil, err
	}
	svc, err := generation.NewService(generation.Options{
		Queue:        client,
		DefaultModel: cfg.FalModel,
		Policy:       generation.Policy{Interval: cfg.PollInterval, MaxAttempts: cfg.PollMaxAttempts},
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	app := handlers.NewApp(svc, logger)
	var h http.Handler = http.HandlerFunc(app.Generate)
	h = middleware.I18N(cfg.DefaultLocale, nil)(h)
	h = middleware.Logger(*logger)(h)
	h = middleware.RequestID(h)
	return h, nil
}
