package server

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler is an http.Handler that knows which path patterns it serves, so a
// router can register it without the routes leaking out of the implementation.
type Handler interface {
	http.Handler
	Routes() []string
}

// Logged records each request at debug level. The callback listener only ever
// sees a handful of requests, all of them interesting when a login goes wrong.
func Logged(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("callback request", "method", r.Method, "path", r.URL.Path, "took", time.Since(start))
		})
	}
}
