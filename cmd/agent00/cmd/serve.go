package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dgr198213-ui/Agent00/internal/core/api"
	"github.com/dgr198213-ui/Agent00/internal/core/config"
	"github.com/dgr198213-ui/Agent00/internal/core/server"
	"github.com/dgr198213-ui/Agent00/internal/core/store"
	"github.com/dgr198213-ui/Agent00/internal/core/sweep"
	"github.com/dgr198213-ui/Agent00/internal/core/telemetry"
	"github.com/dgr198213-ui/Agent00/internal/rules"
)

const shutdownGrace = 10 * time.Second

func newServeCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gRPC decision API",
		Long: `Start the gRPC decision API.

Rules come from the database given by --db-url, or from a YAML file given by
--rules-file. A rule file is watched and reloaded when it changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.load(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}

	cmd.Flags().String("host", "", "host to bind (default 0.0.0.0)")
	cmd.Flags().Int("port", 0, "port to bind (default 50061)")
	cmd.Flags().String("rules-file", "", "serve rules from this YAML file instead of the database")
	cmd.Flags().String("metrics-addr", "", "Prometheus listen address (default :9464)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	// Sources are built before the engine that reads them; store writes and
	// rule file reloads reach the engine through this invalidator.
	var engine *rules.Engine
	invalidate := store.WithInvalidator(store.InvalidatorFunc(func() { engine.InvalidateIndex() }))

	g, ctx := errgroup.WithContext(ctx)

	var (
		source rules.RuleSource
		file   *store.FileSource
	)
	if path := cfg.DecisionAPI.RulesFile; path != "" {
		file = store.NewFileSource(path, invalidate, store.WithLogger(logger))
		source = file
	} else {
		database, rs, err := openStore(cfg, invalidate, store.WithLogger(logger))
		if err != nil {
			return err
		}
		defer database.Close()
		source = rs
	}

	engine = rules.NewEngine(
		rules.WithRuleSource(source),
		rules.WithLogger(logger),
		rules.WithMetricsWindow(cfg.Engine.MetricsWindow),
	)
	if file != nil {
		if _, err := file.Reload(ctx); err != nil {
			return err
		}
		logger.Info("rule file loaded", "path", file.Path(), "fingerprint", fmt.Sprintf("%016x", file.Fingerprint()))
		watcher := store.NewWatcher(file, store.DefaultDebounce)
		g.Go(func() error { return watcher.Watch(ctx) })
	}

	svc, err := api.NewDecisionService(engine, logger)
	if err != nil {
		return err
	}
	grpcServer, err := server.NewGRPCServer(&cfg.DecisionAPI, svc, logger)
	if err != nil {
		return fmt.Errorf("failed to create gRPC server: %w", err)
	}

	g.Go(func() error { return grpcServer.Start(ctx) })
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return grpcServer.Shutdown(shutdownCtx)
	})

	if addr := cfg.Telemetry.MetricsAddr; addr != "" {
		metrics := telemetry.NewServer(addr, telemetry.NewRegistry(engine))
		g.Go(metrics.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return metrics.Shutdown(shutdownCtx)
		})
		logger.Info("metrics endpoint enabled", "addr", addr)
	}

	sweeper := sweep.NewScheduler(engine, cfg.Engine.MetricsMaxAge, cfg.Engine.SweepSchedule, logger)
	g.Go(func() error { return sweeper.Run(ctx) })

	err = g.Wait()
	logger.Info("decision API stopped")
	return err
}
