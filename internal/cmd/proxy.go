package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/go24so/internal/proxy"
)

const shutdownTimeout = 10 * time.Second

func newProxyCommand(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Serve the API on a local address",
		Long: `Start a local HTTP server that forwards /api/<path> to the API with
authentication, rate limiting, retries and caching applied.

Endpoints:
  /health   liveness
  /ready    readiness (pings Redis when the redis cache backend is used)
  /metrics  Prometheus metrics
  /api/*    forwarded requests

SIGINT or SIGTERM shuts the server down gracefully.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.Proxy.Addr
			}

			if err := a.cfg.Validate(true); err != nil {
				return err
			}
			rdb := a.cfg.NewRedisClient()
			if rdb != nil {
				defer rdb.Close()
				if err := rdb.Ping(cmd.Context()).Err(); err != nil {
					return err
				}
				a.logger.Info().Str("addr", a.cfg.Cache.RedisAddr).Msg("Connected to Redis")
			}

			c, err := a.buildClient(rdb)
			if err != nil {
				return err
			}
			defer c.Close()

			var ready func(ctx context.Context) error
			if rdb != nil {
				ready = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
			}

			// Forwarded calls may use every retry attempt.
			timeout := time.Duration(max(a.cfg.Retry.MaxAttempts, 1)) * a.cfg.API.Timeout
			srv := &http.Server{
				Addr:              addr,
				Handler:           proxy.New(c, proxy.Config{Timeout: timeout, Ready: ready, Logger: &a.logger}),
				ReadHeaderTimeout: 10 * time.Second,
				IdleTimeout:       120 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info().Str("addr", addr).Str("base_url", c.BaseURL()).Msg("Starting proxy server")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			a.logger.Info().Msg("Shutting down proxy server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			a.logger.Info().Msg("Proxy server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default proxy.addr, :8080)")
	return cmd
}
