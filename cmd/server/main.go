/*
main.go - Application entry point

PURPOSE:
  Starts the portal gateway: the HTTP process that fronts the welfare
  API for browser clients. In simulate mode (the default) it also runs
  the embedded SQLite-backed upstream so the whole stack works offline.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load configuration (YAML file + APP__ env overlay)
  3. Set up the logger
  4. Start the embedded upstream when simulate mode is on
  5. Configure the gateway router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to the YAML config file (optional; defaults apply)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close the simulator database
  4. Exit

EXAMPLES:
  # Run with built-in defaults (embedded simulator, in-memory database)
  ./server

  # Run against a real upstream
  APP__UPSTREAM__SIMULATE=false APP__UPSTREAM__BASE_URL=https://welfare.example.com ./server

SEE ALSO:
  - api/server.go: Router configuration
  - upstream/server.go: Embedded simulator
  - config/config.go: Configuration loading
*/
package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/portal-sync/api"
	"github.com/warp/portal-sync/config"
	"github.com/warp/portal-sync/upstream"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	log, err := config.SetupLogger(&cfg.Log)
	if err != nil {
		slog.Error("failed to set up logger", "error", err)
		os.Exit(1)
	}
	defer log.Close()

	upstreamURL := cfg.Upstream.BaseURL
	if cfg.Upstream.Simulate {
		store, err := upstream.NewStore(cfg.Upstream.SQLitePath)
		if err != nil {
			slog.Error("failed to initialize simulator database", "error", err)
			os.Exit(1)
		}
		defer store.Close()

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			slog.Error("failed to bind simulator port", "error", err)
			os.Exit(1)
		}
		sim := &http.Server{Handler: upstream.NewServer(store, slog.Default())}
		go func() {
			if err := sim.Serve(ln); err != nil && err != http.ErrServerClosed {
				slog.Error("simulator failed", "error", err)
			}
		}()
		defer sim.Close()
		upstreamURL = "http://" + ln.Addr().String()
		slog.Info("embedded upstream simulator running", "url", upstreamURL, "db", cfg.Upstream.SQLitePath)
	}

	base, err := url.Parse(upstreamURL)
	if err != nil {
		slog.Error("invalid upstream url", "url", upstreamURL, "error", err)
		os.Exit(1)
	}

	router := api.NewRouter(base, cfg.Server.AllowedOrigins)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("gateway starting", "addr", cfg.Server.Addr(), "upstream", upstreamURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gateway")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("forced shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("gateway stopped")
}
