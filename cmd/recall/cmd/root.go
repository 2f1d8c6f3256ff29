// Package cmd provides the CLI commands for recall.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/sessionrecall/internal/config"
	recallerrors "github.com/Aman-CERP/sessionrecall/internal/errors"
	"github.com/Aman-CERP/sessionrecall/internal/logging"
	"github.com/Aman-CERP/sessionrecall/internal/output"
	"github.com/Aman-CERP/sessionrecall/internal/recall"
	"github.com/Aman-CERP/sessionrecall/pkg/version"
)

// closeTimeout bounds how long a command waits for pending embeddings
// and the final save on exit.
const closeTimeout = 30 * time.Second

// Debug logging flag
var (
	debugMode      bool
	loggingCleanup func()
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	projectDir  string
	sessionsDir string
	dataDir     string
	embedder    string
	format      string
}

var global globalOptions

// NewRootCmd creates the root command for the recall CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recall",
		Short: "Find relevant past work sessions",
		Long: `recall ranks past work sessions against a query or the current context.

Each session is a markdown note. Results combine BM25 keyword relevance,
embedding similarity and recency into one score between 0 and 1.

The index lives next to the session files and is kept in sync
automatically; 'recall watch' and 'recall serve' follow changes live.`,
		Version:       version.Get().Version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.SetVersionTemplate("recall version {{.Version}}\n")

	pf := cmd.PersistentFlags()
	pf.StringVarP(&global.projectDir, "dir", "C", ".", "Project directory (for .recall.yaml and relative paths)")
	pf.StringVar(&global.sessionsDir, "sessions-dir", "", "Session files directory (overrides config)")
	pf.StringVar(&global.dataDir, "data-dir", "", "Index directory (overrides config)")
	pf.StringVar(&global.embedder, "embedder", "", "Embedding provider: static, openai, ollama, none")
	pf.StringVarP(&global.format, "format", "f", "text", "Output format: text, json")
	pf.BoolVar(&debugMode, "debug", false, "Enable debug logging to stderr and ~/.sessionrecall/logs/")

	cmd.PersistentPreRunE = startDebugLogging
	cmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		stopLogging()
		return nil
	}

	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newRecallCmd())
	cmd.AddCommand(newRelatedCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newRebuildCmd())
	cmd.AddCommand(newRemoveCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and prints failures in CLI form.
func Execute() error {
	cmd := NewRootCmd()
	err := cmd.Execute()
	if err != nil {
		_, _ = fmt.Fprint(cmd.ErrOrStderr(), recallerrors.FormatForCLI(err))
	}
	stopLogging()
	return err
}

// startDebugLogging installs the debug logger before any command runs.
// The MCP server keeps stderr clear, so serve logs to the file only.
func startDebugLogging(cmd *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	cfg := logging.DefaultConfig()
	cfg.Level = "debug"
	cfg.WriteToStderr = cmd.Name() != "serve"
	if err := installLogger(cfg); err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	slog.Debug("debug_logging_enabled",
		slog.String("log_file", cfg.FilePath),
		slog.String("version", version.Get().Version))
	return nil
}

// setupLogging installs the configured file logger unless --debug already
// installed one.
func setupLogging(cfg *config.Config, serve bool) error {
	if loggingCleanup != nil {
		return nil
	}
	lc := cfg.Logging()
	if serve {
		path := lc.FilePath
		lc = logging.StdioConfig(cfg.Server.LogLevel)
		lc.FilePath = path
	}
	return installLogger(lc)
}

func installLogger(cfg logging.Config) error {
	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return err
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func stopLogging() {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
}

// loadConfig loads the project configuration and applies flag overrides.
func loadConfig() (*config.Config, error) {
	dir, err := filepath.Abs(global.projectDir)
	if err != nil {
		return nil, recallerrors.New(recallerrors.ErrCodeInvalidInput, "invalid project directory", err).
			WithDetail("dir", global.projectDir)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	if global.sessionsDir != "" {
		if cfg.Paths.SessionsDir, err = filepath.Abs(global.sessionsDir); err != nil {
			return nil, err
		}
	}
	if global.dataDir != "" {
		if cfg.Paths.DataDir, err = filepath.Abs(global.dataDir); err != nil {
			return nil, err
		}
	}
	if global.embedder != "" {
		cfg.Embeddings.Provider = global.embedder
	}
	return cfg, nil
}

// openService loads the configuration, sets up logging and opens the
// session index.
func openService(ctx context.Context, serve bool, opts ...recall.Option) (*recall.Service, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := setupLogging(cfg, serve); err != nil {
		return nil, nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	svc, err := recall.Open(ctx, cfg, append([]recall.Option{recall.WithLogger(slog.Default())}, opts...)...)
	if err != nil {
		return nil, nil, err
	}
	return svc, cfg, nil
}

// closeService drains pending embeddings and saves. Failures are logged;
// the command's own result has already been written.
func closeService(svc *recall.Service) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := svc.Close(ctx); err != nil {
		slog.Warn("close_failed", recallerrors.LogAttrs(err)...)
	}
}

// newWriter builds the output writer for the --format flag.
func newWriter(cmd *cobra.Command) (*output.Writer, error) {
	format, err := output.ParseFormat(global.format)
	if err != nil {
		return nil, err
	}
	return output.NewWithFormat(cmd.OutOrStdout(), format), nil
}
