package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/config"
	"github.com/ankitdsmb/ToolNexus-sub004/pkg/engine"
	"github.com/ankitdsmb/ToolNexus-sub004/pkg/telemetry"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr, metricsAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the execution pipeline over HTTP",
		Long: `Serve GET/POST /api/v1/tools/{capability}/{action} and a Prometheus
/metrics endpoint. When a config file is given it is watched and capability
manifests and policies are reloaded on change.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.setup(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Address = addr
			}
			if metricsAddr != "" {
				cfg.Server.MetricsAddress = metricsAddr
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, root.ConfigPath, cfg, logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Address for the API listener")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Address for the /metrics listener (empty disables)")
	return cmd
}

func runServe(ctx context.Context, configPath string, cfg *config.Config, logger *slog.Logger) error {
	shutdownTracing, err := telemetry.SetupProvider(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			logger.Warn("shutdown error", "error", err)
		}
	}()

	if configPath != "" {
		loader, err := config.NewLoader(configPath, logger)
		if err != nil {
			return err
		}
		if err := loader.Watch(ctx, a.reload); err != nil {
			logger.Warn("config watch disabled", "path", configPath, "error", err)
		}
	}

	servers := []*http.Server{newAPIServer(cfg.Server, a.routes())}
	if cfg.Server.MetricsAddress != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", a.metrics.Handler())
		servers = append(servers, newAPIServer(config.ServerConfig{
			Address:     cfg.Server.MetricsAddress,
			ReadTimeout: cfg.Server.ReadTimeout,
		}, metricsMux))
	}

	listeners, err := listenAll(servers)
	if err != nil {
		return err
	}

	errCh := make(chan error, len(servers))
	for i, srv := range servers {
		logger.Info("server listening", "addr", listeners[i].Addr().String())
		go func(srv *http.Server, l net.Listener) {
			if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}(srv, listeners[i])
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
		logger.Error("server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			logger.Error("shutdown error", "addr", srv.Addr, "error", serr)
		}
	}
	return err
}

// listenAll binds every server address before any of them starts serving.
// On failure the listeners already opened are closed.
func listenAll(servers []*http.Server) ([]net.Listener, error) {
	listeners := make([]net.Listener, 0, len(servers))
	for _, srv := range servers {
		l, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			for _, opened := range listeners {
				_ = opened.Close()
			}
			return nil, fmt.Errorf("listen %s: %w", srv.Addr, err)
		}
		listeners = append(listeners, l)
	}
	return listeners, nil
}

func newAPIServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	return &http.Server{
		Addr:              cfg.Address,
		Handler:           handler,
		ReadHeaderTimeout: readTimeout,
		ReadTimeout:       readTimeout,
		IdleTimeout:       120 * time.Second,
	}
}

// routes builds the API handler tree, traced with otelhttp.
func (a *app) routes() http.Handler {
	tools := engine.NewToolHandler(engine.ToolHandlerConfig{
		Executor:     a.pipeline,
		Logger:       a.logger,
		MaxBodyBytes: a.cfg.Server.MaxBodyBytes,
	})

	mux := http.NewServeMux()
	mux.Handle(engine.ToolsPath, tools)
	mux.Handle("/api/tools/", tools)
	mux.HandleFunc("GET /api/v1/capabilities", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, a.logger, a.catalog.List())
	})
	mux.HandleFunc("GET /api/v1/executions/recent", func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		writeJSON(w, a.logger, a.recent.Snapshot(limit))
	})
	mux.HandleFunc("GET /api/v1/circuits", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, a.logger, a.pipeline.BreakerStats())
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return otelhttp.NewHandler(mux, "toolnexus.api")
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, body any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}
