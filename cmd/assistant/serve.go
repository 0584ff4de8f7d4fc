package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/snow-ghost/assistant/pkg/config"
	"github.com/snow-ghost/assistant/pkg/httpserver"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if port != "" {
				cfg.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			obs, err := newObservability(cfg)
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				_ = obs.Shutdown(ctx)
			}()

			a, err := newApp(cfg, obs)
			if err != nil {
				return err
			}

			server, err := httpserver.NewServer(cfg.Port, httpserver.Deps{
				Runner:     a.orchestrator,
				Fallback:   a.resolver,
				Detector:   a.detector,
				Classifier: a.classifier,
			}, obs)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := obs.GetLogger()
			logger.Info("Starting assistant",
				"port", cfg.Port,
				"llm_provider", cfg.LLMProvider,
				"fallback_config", a.resolver.Path(),
				"fallback_watch", cfg.FallbackWatch,
			)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(server.Start)
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				logger.Info("Shutting down")
				return server.Shutdown(shutdownCtx)
			})
			if cfg.FallbackWatch && cfg.FallbackConfig != "" {
				g.Go(func() error {
					return a.resolver.Watch(ctx)
				})
			}

			return g.Wait()
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (overrides ASSISTANT_PORT)")
	return cmd
}
