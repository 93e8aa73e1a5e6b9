package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/chainforge-ai/chainforge/internal/config"
	"github.com/chainforge-ai/chainforge/internal/observability"
)

// newServeCmd implements `chainforge serve`: mounts the gin HTTP surface
// (internal/httpapi) plus the Prometheus scrape endpoint at /metrics/prom,
// and shuts down on SIGINT/SIGTERM, matching the teacher's orchestrator
// main's signal-driven graceful shutdown.
func newServeCmd(a *app) *cobra.Command {
	var otlpEndpoint string
	var watchConfig bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP surface",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			shutdownTracer, err := observability.InitTracer(ctx, "chainforge", otlpEndpoint)
			if err != nil {
				return fmt.Errorf("chainforge: init tracer: %w", err)
			}
			defer shutdownTracer(context.Background())

			if watchConfig {
				cfgPath := envOrDefault("CHAINFORGE_CONFIG", "./config/agents.yaml")
				watcher, err := config.NewWatcher(cfgPath, a.engine.UpdateConfig, a.log)
				if err != nil {
					return fmt.Errorf("chainforge: watch config: %w", err)
				}
				watchCtx, stopWatch := context.WithCancel(ctx)
				defer stopWatch()
				go watcher.Run(watchCtx)
			}

			router := httpServer(a).Router()
			router.GET("/metrics/prom", gin.WrapH(observability.Handler(a.metricsReg)))

			srv := &http.Server{Addr: a.addr, Handler: router}

			errCh := make(chan error, 1)
			go func() {
				a.log.Info("serve: listening", "addr", a.addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			select {
			case err := <-errCh:
				return fmt.Errorf("chainforge: serve: %w", err)
			case <-sigCtx.Done():
				a.log.Info("serve: shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}
	cmd.Flags().StringVar(&otlpEndpoint, "otlp-endpoint", os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), "OTLP gRPC collector endpoint; empty falls back to stdout tracing")
	cmd.Flags().BoolVar(&watchConfig, "watch-config", false, "hot-reload agent prompts, temperatures, critic weights, and refinement tuning on config file changes (model wiring is never affected)")
	return cmd
}
