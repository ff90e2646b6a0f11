package cmd

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/jobrunner/internal/api"
	"github.com/nextlevelbuilder/jobrunner/internal/appconfig"
	"github.com/nextlevelbuilder/jobrunner/internal/dispatch"
)

// serveCmd runs the scheduler loop, the agent dispatch sweeper, and the
// HTTP API together until an interrupt signal arrives. On shutdown the loop
// stops firing and in-flight job executions, which run under the same signal
// context, are cancelled at once without being waited for; only the HTTP
// server gets up to 15s to finish open requests.
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler loop, agent dispatch sweeper, and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			sweeper := dispatch.NewSweeper(a.registry, a.jobs, cfg.SweepInterval)

			go a.loop.Run(ctx)
			go sweeper.Run(ctx)
			if cfg.RetentionDays > 0 {
				go runRetention(ctx, a, cfg.RetentionDays)
			}

			srv := &http.Server{Addr: cfg.ListenAddr, Handler: api.NewRouter(a.router())}
			go func() {
				slog.Info("http api listening", "addr", cfg.ListenAddr)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					slog.Error("http server failed", "error", err)
				}
			}()

			<-ctx.Done()
			slog.Info("shutdown signal received, draining")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Warn("http server shutdown did not complete cleanly", "error", err)
			}
			return nil
		},
	}
}

// runRetention periodically prunes terminal execution rows older than the
// configured retention window.
func runRetention(ctx context.Context, a *app, days int) {
	ticker := time.NewTicker(6 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.executions.PruneOlderThan(days)
			if err != nil {
				slog.Error("retention prune failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("retention prune removed executions", "count", n, "retention_days", days)
			}
		}
	}
}
