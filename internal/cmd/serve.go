package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/faultwatch/faultwatch/internal/alerting"
	"github.com/faultwatch/faultwatch/internal/api"
	apiv2 "github.com/faultwatch/faultwatch/internal/api/v2"
	"github.com/faultwatch/faultwatch/internal/datastore/v2/repository"
	"github.com/faultwatch/faultwatch/internal/logger"
	"github.com/faultwatch/faultwatch/internal/observability/metrics"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Evaluate all devices periodically and serve the API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	mgr, err := a.openDatabase()
	if err != nil {
		return err
	}
	defer closeDatabase(mgr, a.log)
	db := mgr.DB()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	engine := alerting.Initialize(db, a.settings, metrics.NewAlertingMetrics(registry), a.log)
	defer engine.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		evaluateEvery(ctx, engine, a.settings.Runner.Interval.Std(), a.log)
		return nil
	})

	if a.settings.API.Enabled {
		server := api.NewServer(a.settings.API.Listen, apiv2.Options{
			Alerts:    repository.NewAlertRepository(db),
			Rules:     repository.NewAlertRuleRepository(db),
			Devices:   repository.NewDeviceRepository(db),
			Evaluator: engine,
			Health: func(ctx context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
		}, registry, a.log)
		g.Go(server.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	a.log.Info("faultwatch serving",
		logger.Duration("interval", a.settings.Runner.Interval.Std()),
		logger.Bool("api", a.settings.API.Enabled))
	return g.Wait()
}

// evaluateEvery runs every device immediately and then on each tick until
// ctx is done. A run still in progress delays the next tick.
func evaluateEvery(ctx context.Context, engine *alerting.Engine, interval time.Duration, log logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		start := time.Now()
		summaries, err := engine.RunAll(ctx)
		if err != nil && ctx.Err() == nil {
			log.Error("evaluation run failed", logger.Error(err))
		}
		log.Info("evaluation run completed",
			logger.Int("devices", len(summaries)),
			logger.Duration("duration", time.Since(start)))

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
