/*
server.go - HTTP router for the portal gateway

PURPOSE:
  Configures the chi router and middleware stack for the gateway process.
  The gateway fronts the upstream welfare API for browser clients: it
  forwards /api/* verbatim (envelope and status codes untouched) and adds
  the cross-cutting pieces the upstream does not provide, CORS and a
  health probe.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the web client

SEE ALSO:
  - upstream package: the dev-mode API this proxies in front of
  - cmd/server/main.go: process startup
*/
package api

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the gateway router. upstream is the base URL of the
// welfare API the gateway forwards to; origins lists the browser origins
// allowed by CORS.
func NewRouter(upstream *url.URL, origins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	proxy := httputil.NewSingleHostReverseProxy(upstream)

	// Health check for load balancers and container orchestration.
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Everything under /api is forwarded untouched: the envelope contract
	// belongs to the upstream, the gateway does not rewrite it.
	r.Handle("/api/*", proxy)

	return r
}
