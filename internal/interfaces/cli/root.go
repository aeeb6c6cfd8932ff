// Package cli implements the priorart command-line interface.
package cli

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	domain "github.com/turtacn/KeyIP-PriorArt/internal/domain/priorart"
	"github.com/turtacn/KeyIP-PriorArt/internal/config"
	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-PriorArt/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// ErrRunFailed is returned by commands whose outcome was already printed but
// must still exit non-zero.
var ErrRunFailed = stderrors.New("run failed")

type cliContextKey struct{}

// IdeaSearcher runs one prior-art search.
type IdeaSearcher interface {
	RunIdeaSearch(ctx context.Context, ideaText string) domain.PipelineOutcome
}

// SearcherFactory builds the pipeline from configuration. The returned
// release function closes every resource the searcher holds.
type SearcherFactory func(ctx context.Context, cfg *config.Config, logger logging.Logger) (IdeaSearcher, func(), error)

// ConfigLoader loads configuration; an empty path means no file was found.
type ConfigLoader func(path string) (*config.Config, error)

// CacheFlusher drops cached query vectors and reports how many were removed.
type CacheFlusher func(ctx context.Context, cfg *config.Config, logger logging.Logger) (int64, error)

// Dependencies are injected by main.
type Dependencies struct {
	NewSearcher SearcherFactory
	FlushCache  CacheFlusher
	// LoadConfig defaults to config.Load, or config.LoadFromEnv without a file.
	LoadConfig ConfigLoader
}

// RootOptions holds global CLI flags.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	Verbose    bool
	NoColor    bool
	Timeout    time.Duration
}

// CLIContext carries initialized dependencies through the command tree.
type CLIContext struct {
	Config  *config.Config
	Logger  logging.Logger
	Timeout time.Duration
}

// NewRootCommand creates the root command with its global flags and
// subcommands.
func NewRootCommand(deps Dependencies) *cobra.Command {
	if deps.LoadConfig == nil {
		deps.LoadConfig = loadConfig
	}
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "priorart",
		Short:   "Prior-art patent search for invention ideas",
		Long:    "priorart checks whether an invention idea is specific enough to search,\nretrieves similar patents from the vector store, scores each one and\nwrites a Korean prior-art report.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return persistentPreRun(cmd, opts, deps.LoadConfig)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: ./priorart.yaml)")
	pf.StringVar(&opts.LogLevel, "log-level", "", "log level override (debug, info, warn, error)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVar(&opts.NoColor, "no-color", false, "disable colored output")
	pf.DurationVar(&opts.Timeout, "timeout", 0, "overall run timeout (0 uses the per-stage timeouts only)")

	cmd.AddCommand(
		NewSearchCmd(deps.NewSearcher),
		NewCacheCmd(deps.FlushCache),
		newVersionCmd(),
	)
	return cmd
}

func persistentPreRun(cmd *cobra.Command, opts *RootOptions, load ConfigLoader) error {
	if opts.NoColor {
		color.NoColor = true
	}

	path := opts.ConfigPath
	if path == "" {
		path = findConfigFile()
	}
	cfg, err := load(path)
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	logger, err := initLogger(cfg, opts)
	if err != nil {
		return fmt.Errorf("logger initialization failed: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, &CLIContext{
		Config:  cfg,
		Logger:  logger,
		Timeout: opts.Timeout,
	}))
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadFromEnv()
	}
	return config.Load(path)
}

// findConfigFile returns the first existing default config path, or "".
func findConfigFile() string {
	candidates := []string{"./priorart.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".priorart", "config.yaml"))
	}
	candidates = append(candidates, "/etc/priorart/config.yaml")

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// initLogger writes to stderr so stdout carries only command output.
func initLogger(cfg *config.Config, opts *RootOptions) (logging.Logger, error) {
	level := cfg.Log.Level
	if opts.LogLevel != "" {
		level = strings.ToLower(opts.LogLevel)
	}
	if opts.Verbose {
		level = logging.LevelDebug
	}
	if level == "" {
		level = logging.LevelWarn
	}

	return logging.NewLogger(logging.LogConfig{
		Level:            level,
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	})
}

// GetCLIContext extracts the CLIContext stored by the root command.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, errors.New(errors.ErrCodeInternal, "command context is nil")
	}
	cliCtx, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, errors.New(errors.ErrCodeInternal, "CLI context not initialized")
	}
	return cliCtx, nil
}

// Execute runs the CLI and returns the process exit code.
func Execute(deps Dependencies) int {
	rootCmd := NewRootCommand(deps)
	if err := rootCmd.Execute(); err != nil {
		if !stderrors.Is(err, ErrRunFailed) {
			PrintError(rootCmd, err)
		}
		return 1
	}
	return 0
}

// PrintError writes a formatted error message to stderr.
func PrintError(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", color.RedString("Error:"), err.Error())
}

func printJSON(cmd *cobra.Command, data interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(data)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		// Version needs no configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "priorart %s\ncommit: %s\nbuilt:  %s\n", Version, GitCommit, BuildDate)
			return nil
		},
	}
}
