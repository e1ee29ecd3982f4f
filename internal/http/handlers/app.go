package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"imageapi/internal/domain"
	"imageapi/internal/generation"
	"imageapi/internal/infra"
)

// Generator produces one image for a request.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (*generation.Result, error)
}

// App holds the dependencies shared by the HTTP handlers.
type App struct {
	Generator Generator
	Logger    *infra.Logger
}

func NewApp(gen Generator, logger *infra.Logger) *App {
	return &App{Generator: gen, Logger: infra.LoggerOrDiscard(logger)}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, r *http.Request, code int, key messageKey) {
	a.json(w, code, generateResponse{Error: message(r.Context(), key)})
}
