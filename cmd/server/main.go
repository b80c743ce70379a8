package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jtoloui/motorway-takehome-backend/internal/config"
	"github.com/jtoloui/motorway-takehome-backend/internal/constants"
	"github.com/jtoloui/motorway-takehome-backend/internal/grpcserver"
	"github.com/jtoloui/motorway-takehome-backend/internal/logging"
	"github.com/jtoloui/motorway-takehome-backend/internal/repository"
	"github.com/jtoloui/motorway-takehome-backend/internal/server"
	"github.com/jtoloui/motorway-takehome-backend/internal/tracing"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (overrides CONFIG_FILE)")
	migrate := flag.Bool("migrate", false, "apply database migrations before serving")
	seed := flag.Bool("seed", false, "load the demo dataset before serving")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger, *migrate, *seed); err != nil {
		logger.Fatal(fmt.Sprintf("%s Server stopped", constants.APIName()), zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger, migrate, seed bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info(fmt.Sprintf("%s Starting Vehicle State API server", constants.APIName()),
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store_driver", cfg.Database.Driver),
		zap.String("environment", cfg.Environment),
	)

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, cfg.Environment)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("Failed to flush traces", zap.Error(err))
		}
	}()

	app, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if migrate {
		if err := runMigrations(ctx, app, logger); err != nil {
			return err
		}
	}
	if seed {
		seeder, ok := app.Seeder()
		if !ok {
			return errors.New("store does not support seeding")
		}
		if err := repository.SeedDemo(ctx, seeder); err != nil {
			return fmt.Errorf("failed to seed demo data: %w", err)
		}
		logger.Info(fmt.Sprintf("%s Demo data seeded", constants.APIName()))
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           app.Router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info(fmt.Sprintf("%s Server listening", constants.APIName()), zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info(fmt.Sprintf("%s Shutting down", constants.APIName()))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if cfg.Server.GRPCPort > 0 {
		healthServer, err := grpcserver.New(cfg.Server.GRPCPort, grpcserver.Options{
			Store:  app.Store,
			Cache:  app.Cache,
			Logger: logger,
		})
		if err != nil {
			return err
		}
		g.Go(func() error {
			return healthServer.Serve(gctx)
		})
	}

	return g.Wait()
}

func runMigrations(ctx context.Context, app *server.App, logger *zap.Logger) error {
	pg, ok := app.Store.(*repository.PostgresStore)
	if !ok {
		// The embedded store applies its schema when it is opened.
		return nil
	}
	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := repository.MigratePostgres(migrateCtx, pg.Pool(), logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("Database migrations completed")
	return nil
}
