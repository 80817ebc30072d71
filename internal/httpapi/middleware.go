package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantgate/qmt-gateway/internal/gwerr"
	"github.com/quantgate/qmt-gateway/internal/metrics"
)

// auth enforces the bearer-key allow-list. An empty list disables
// authentication.
func auth(keys []string, next http.Handler) http.Handler {
	if len(keys) == 0 {
		return next
	}
	allowed := make(map[string]bool, len(keys))
	for _, k := range keys {
		if k != "" {
			allowed[k] = true
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || !allowed[token] {
			writeError(w, gwerr.New(gwerr.Unauthenticated, "http.auth", "missing or unknown API key"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// observe logs each request and feeds the request counter. family is
// the metrics label ("data", "trading", "ops").
func observe(logger zerolog.Logger, family string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		metrics.HTTPRequests.WithLabelValues(family, strconv.Itoa(sw.status)).Inc()
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("elapsed", time.Since(start)).
			Msg("HTTP request")
	})
}
