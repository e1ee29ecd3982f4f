package middleware

import (
	"net/http"
	"time"

	"imageapi/internal/infra"
)

// Metrics records request counts and latencies per matched route.
func Metrics(m *infra.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := wrapWriter(w)
			next.ServeHTTP(rw, r)
			m.ObserveHTTP(r.Method, routePattern(r), rw.status, time.Since(start))
		})
	}
}
