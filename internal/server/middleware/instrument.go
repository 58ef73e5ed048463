package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/veilmarket/veilmarket/internal/metrics"
)

// Instrument wraps a route handler with request count and latency metrics.
// The route label is the path part of the registered pattern, so path
// parameters like {id} stay a single label value and cardinality remains
// bounded. A nil Metrics disables instrumentation.
func Instrument(m *metrics.Metrics, pattern string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}

	route := pattern
	if _, path, ok := strings.Cut(pattern, " "); ok {
		route = path
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
		m.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
