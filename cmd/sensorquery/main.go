package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vjranagit/sensorquery/internal/config"
	"github.com/vjranagit/sensorquery/internal/logging"
	"github.com/vjranagit/sensorquery/pkg/search"
	"github.com/vjranagit/sensorquery/pkg/storage"
	"go.uber.org/zap"
)

const (
	version     = "0.3.0"
	serviceName = "sensorquery"
)

var rootCmd = &cobra.Command{
	Use:     "sensorquery",
	Short:   "Query sensor telemetry stored in daily measurement partitions",
	Version: version,
	Long: `sensorquery lists raw sensor measurements and averages them per sensor
type over a time window. The backing store is selected with SEARCH_BACKEND.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger shared by all commands
func setup() (*config.Config, *zap.Logger, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return cfg, logger, nil
}

// openBackend creates the single backend handle used for the process lifetime
func openBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (search.Backend, error) {
	switch cfg.Backend.Kind {
	case config.BackendElasticsearch:
		logger.Info("using elasticsearch backend", zap.String("address", cfg.Backend.ElasticAddress()))
		return search.NewElasticBackend(cfg.Backend.ToElasticConfig(), logger)

	case config.BackendMongo:
		logger.Info("using mongo backend",
			zap.String("database", cfg.Backend.MongoDatabase),
			zap.String("collection", cfg.Backend.MongoCollection))
		client, err := search.NewMongoConnection(ctx, cfg.Backend.MongoURI)
		if err != nil {
			return nil, err
		}
		return search.NewMongoBackend(ctx, client, cfg.Backend.MongoDatabase, cfg.Backend.MongoCollection, logger)

	case config.BackendEmbedded:
		logger.Info("using embedded backend", zap.String("path", cfg.Backend.StoragePath))
		return storage.NewStore(cfg.Backend.ToStorageConfig(), logger)
	}

	return nil, fmt.Errorf("unknown search backend %q", cfg.Backend.Kind)
}
