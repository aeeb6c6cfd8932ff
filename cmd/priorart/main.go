// Command priorart runs one prior-art search from the command line.
package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"

	"github.com/turtacn/KeyIP-PriorArt/internal/bootstrap"
	"github.com/turtacn/KeyIP-PriorArt/internal/config"
	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-PriorArt/internal/interfaces/cli"
)

// Build-time variables injected via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func init() {
	cli.Version = version
	cli.GitCommit = commit
	cli.BuildDate = buildDate
}

func main() {
	// A missing .env is normal.
	_ = godotenv.Load()

	os.Exit(cli.Execute(cli.Dependencies{
		NewSearcher: newSearcher,
		FlushCache:  bootstrap.FlushEmbeddingCache,
	}))
}

func newSearcher(ctx context.Context, cfg *config.Config, logger logging.Logger) (cli.IdeaSearcher, func(), error) {
	components, err := bootstrap.Build(ctx, cfg, nil, logger)
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		components.Close(context.Background())
		_ = logger.Sync()
	}
	return components.Pipeline, release, nil
}
