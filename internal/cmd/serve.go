package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/t77yq/task-roster/internal/monitor"
	"github.com/t77yq/task-roster/internal/scheduler"
)

const (
	extenderJob = "horizon-extender"
	pruneJob    = "history-prune"

	// pruneSchedule runs daily, an hour after the default extender slot
	pruneSchedule = "0 0 3 * * *"
)

var serveShutdownTimeout time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the horizon extender on its schedule and expose metrics",
	Long: `Run the horizon extender on the configured cron schedule, prune old run
history daily, and serve /metrics and /healthz on metrics.addr.

The server shuts down gracefully on SIGINT or SIGTERM: running extender
jobs finish, pending event acknowledgements are awaited, and the database
is closed.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().DurationVar(&serveShutdownTimeout, "shutdown-timeout", 30*time.Second, "Maximum time to wait for jobs and connections to drain")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
		defer cancel()
		a.close(shutdownCtx)
	}()

	registry, metrics := monitor.NewRegistry()
	events, err := a.events()
	if err != nil {
		return err
	}
	engine := scheduler.NewEngine(a.store, a.logger,
		scheduler.WithPublisher(events),
		scheduler.WithRecorder(metrics))

	extender, err := a.extender(engine)
	if err != nil {
		return err
	}

	location, err := a.cfg.Extender.Location()
	if err != nil {
		return err
	}
	cron := scheduler.NewCronScheduler(location, a.logger)
	if err := scheduleJobs(cron, extender, a); err != nil {
		return err
	}
	cron.Start(ctx)
	defer cron.Stop()

	collector := monitor.NewMetricsCollector(metrics, a.cfg.Metrics.SampleInterval, a.logger)
	collector.Start(ctx)
	defer collector.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", monitor.Handler(registry))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.store.Ping(pingCtx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("Serving metrics", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	if a.cfg.Extender.Enabled {
		a.logger.Info("Horizon extender scheduled",
			zap.String("schedule", a.cfg.Extender.Schedule),
			zap.String("timezone", location.String()),
			zap.Time("next_run", cron.NextRun(extenderJob)))
	}

	select {
	case <-ctx.Done():
		a.logger.Info("Received shutdown signal")
	case err, ok := <-serverErr:
		if ok {
			return fmt.Errorf("metrics server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("Metrics server did not shut down cleanly", zap.Error(err))
	}

	a.logger.Info("Server shutting down gracefully")
	return nil
}

func scheduleJobs(cron *scheduler.CronScheduler, extender *scheduler.HorizonExtender, a *app) error {
	if a.cfg.Extender.Enabled {
		err := cron.AddJob(extenderJob, a.cfg.Extender.Schedule, func(ctx context.Context) {
			// Run logs its own outcome.
			_, _ = extender.Run(ctx)
		})
		if err != nil {
			return err
		}
	}

	return cron.AddJob(pruneJob, pruneSchedule, func(ctx context.Context) {
		removed, err := extender.PruneHistory(ctx, a.cfg.History.Retention)
		if err != nil {
			a.logger.Error("Failed to prune extender history", zap.Error(err))
			return
		}
		a.logger.Info("Pruned extender history",
			zap.Int64("removed", removed),
			zap.Duration("retention", a.cfg.History.Retention))
	})
}
