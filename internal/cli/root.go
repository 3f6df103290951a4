// Package cli implements the rerun-search command line: inspecting the schema
// of a dataset search and printing its results.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ErakhtinB/rerun"
)

// Version is set at build time.
var Version = "dev"

type options struct {
	configPath string
	endpoint   string
	token      string
	tls        bool
	logLevel   string

	dataset string
	column  string
}

// app holds what the commands share. newClient is replaced in tests.
type app struct {
	opts      options
	cfg       *rerun.Config
	newClient func(cfg *rerun.Config, logger *zap.Logger) (*rerun.Client, error)
}

func defaultClient(cfg *rerun.Config, logger *zap.Logger) (*rerun.Client, error) {
	return rerun.NewClient(cfg, rerun.WithClientLogger(logger))
}

// NewRootCommand builds the rerun-search command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{newClient: defaultClient})
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "rerun-search",
		Short:         "Search datasets and read the results as tables",
		Long:          `rerun-search issues dataset searches against a search service and prints the result schema or rows.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			logger, err := rerun.NewLogger(cfg.Logging.Env, cfg.Logging.Level)
			if err != nil {
				return err
			}
			a.cfg = cfg
			cmd.SetContext(rerun.ContextWithLogger(cmd.Context(), logger))
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.opts.configPath, "config", "", "Path to a YAML config file")
	flags.StringVar(&a.opts.endpoint, "endpoint", "", "Search service address (overrides config and RERUN_ENDPOINT)")
	flags.StringVar(&a.opts.token, "token", "", "Bearer token (overrides config and RERUN_TOKEN)")
	flags.BoolVar(&a.opts.tls, "tls", false, "Use TLS")
	flags.StringVar(&a.opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&a.opts.dataset, "dataset", "", "Dataset to search")
	flags.StringVar(&a.opts.column, "column", "", "Indexed column to search against")

	root.AddCommand(newSchemaCommand(a), newSearchCommand(a))
	return root
}

// Execute runs the CLI and exits on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, presentError(err))
		os.Exit(1)
	}
}

// config resolves the configuration: file or environment first, then flags.
func (a *app) config() (*rerun.Config, error) {
	var cfg *rerun.Config
	if a.opts.configPath != "" {
		loaded, err := rerun.LoadConfig(a.opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if cfg == nil {
		cfg = rerun.ConfigFromEnv()
	}
	if cfg == nil {
		cfg = &rerun.Config{}
	}

	if a.opts.endpoint != "" {
		cfg.Endpoint = a.opts.endpoint
	}
	if a.opts.token != "" {
		cfg.Token = a.opts.token
	}
	if a.opts.tls {
		cfg.TLS = true
	}
	if a.opts.logLevel != "" {
		cfg.Logging.Level = a.opts.logLevel
	}
	if cfg.Logging.Env == "" {
		// Console output reads better in a terminal.
		cfg.Logging.Env = "local"
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (a *app) client(cmd *cobra.Command) (*rerun.Client, error) {
	if strings.TrimSpace(a.opts.dataset) == "" {
		return nil, fmt.Errorf("--dataset is required")
	}
	return a.newClient(a.cfg, rerun.LoggerFromContext(cmd.Context()))
}
