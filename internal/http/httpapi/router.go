package httpapi

import (
	"context"
	stdhttp "net/http"
	"time"

	"imageapi/internal/http/handlers"
	"imageapi/internal/infra"
	"imageapi/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Options carries the cross-cutting settings of the router.
type Options struct {
	Logger          infra.Logger
	Metrics         *infra.Metrics
	AllowedOrigins  []string
	DefaultLocale   string
	CountryLookup   middleware.CountryLookup
	RateLimitPerMin int
	// TrustProxyHeaders enables X-Forwarded-For/X-Real-IP handling. Only set
	// it when a proxy in front of the service overwrites those headers.
	TrustProxyHeaders bool
}

// NewRouter wires the middleware stack and routes. ctx bounds background
// goroutines started by middleware.
func NewRouter(ctx context.Context, app *handlers.App, opts Options) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if opts.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
		middleware.Logger(opts.Logger),
		middleware.Metrics(opts.Metrics),
		chimw.Recoverer,
		middleware.CORS(opts.AllowedOrigins),
	)
	r.NotFound(app.NotFound)
	r.MethodNotAllowed(app.MethodNotAllowed)

	r.Get("/", app.Root)
	r.Get("/v1/healthz", app.Health)
	if opts.Metrics != nil {
		r.Method(stdhttp.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(ctx, opts.RateLimitPerMin, time.Minute, opts.TrustProxyHeaders, stdhttp.HandlerFunc(app.TooManyRequests)))
		r.HandleFunc("/api/generate", app.Generate)
	})

	return r
}
