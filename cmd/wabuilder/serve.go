package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aretw0/wabuilder/internal/cli"
	httpAdapter "github.com/aretw0/wabuilder/pkg/adapters/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Serves the editor API, the WhatsApp webhook and Prometheus metrics.
Metrics are mounted on /metrics unless metrics_addr names a separate listener.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()

		stack, cfg, logger, err := openStack(sigCtx, cmd)
		if err != nil {
			return err
		}
		defer stack.Close()

		if addr, _ := cmd.Flags().GetString("listen"); addr != "" {
			cfg.ListenAddr = addr
		}

		metrics := promhttp.HandlerFor(stack.Registry, promhttp.HandlerOpts{})
		opts := []httpAdapter.Option{httpAdapter.WithLogger(logger)}
		if cfg.MetricsAddr == "" {
			opts = append(opts, httpAdapter.WithMetricsHandler(metrics))
		}
		handler, err := httpAdapter.NewHandler(stack.Builder, opts...)
		if err != nil {
			return err
		}

		servers := []*http.Server{{
			Addr:              cfg.ListenAddr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}}
		if cfg.MetricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics)
			servers = append(servers, &http.Server{
				Addr:              cfg.MetricsAddr,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			})
		}

		g, ctx := errgroup.WithContext(sigCtx)
		for _, srv := range servers {
			g.Go(func() error {
				logger.Info("listening", "addr", srv.Addr)
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		}
		g.Go(func() error {
			<-ctx.Done()
			logger.Info("shutting down", "signal", sigCtx.Signal())

			// Give outstanding requests a deadline for completion.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			var errs []error
			for _, srv := range servers {
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Warn("graceful shutdown did not complete", "addr", srv.Addr, "error", err)
					errs = append(errs, srv.Close())
				}
			}
			return errors.Join(errs...)
		})

		if err := g.Wait(); err != nil {
			return err
		}
		cli.PrintSystemMessage(cmd.OutOrStdout(), "wabuilder stopped gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("listen", "l", "", "Address to listen on (overrides listen_addr)")
}
