package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/jtoloui/motorway-takehome-backend/internal/config"
	"github.com/jtoloui/motorway-takehome-backend/internal/constants"
	lambdaadapter "github.com/jtoloui/motorway-takehome-backend/internal/lambda"
	"github.com/jtoloui/motorway-takehome-backend/internal/logging"
	"github.com/jtoloui/motorway-takehome-backend/internal/repository"
	"github.com/jtoloui/motorway-takehome-backend/internal/server"
	"github.com/jtoloui/motorway-takehome-backend/internal/tracing"
	"go.uber.org/zap"
)

// main runs once per cold start; the adapter and its pool are reused across
// invocations of the same container.
func main() {
	cfg, err := config.LoadLambdaConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load Lambda config: %v", err))
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}

	adapter, err := newAdapter(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Lambda handler", zap.Error(err))
	}

	logger.Info(fmt.Sprintf("%s Lambda handler initialized", constants.APIName()))
	lambda.Start(adapter.Handle)
}

func newAdapter(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*lambdaadapter.Adapter, error) {
	// Spans are exported by the batcher between invocations; the provider
	// lives as long as the container.
	if _, err := tracing.Setup(ctx, cfg.Tracing, cfg.Environment); err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}

	var opts []server.Option
	if cfg.Database.Driver == repository.DriverPostgres {
		pool, err := lambdaadapter.GetConnectionPool(cfg.PostgresConfig(), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize connection pool: %w", err)
		}
		opts = append(opts, server.WithPool(pool))
	}

	app, err := server.NewApp(ctx, cfg, logger, opts...)
	if err != nil {
		return nil, err
	}

	if cfg.Database.Driver == repository.DriverSQLite {
		// The embedded store starts empty in every container.
		if seeder, ok := app.Seeder(); ok {
			if err := repository.SeedDemo(ctx, seeder); err != nil {
				return nil, fmt.Errorf("failed to seed demo data: %w", err)
			}
		}
	}
	return lambdaadapter.NewAdapter(app.Router), nil
}
