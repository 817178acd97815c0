package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/prscore/internal/config"
	"github.com/joescharf/prscore/internal/evaluate"
	"github.com/joescharf/prscore/internal/github"
	"github.com/joescharf/prscore/internal/llm"
	"github.com/joescharf/prscore/internal/output"
	"github.com/joescharf/prscore/internal/scoring"
	"github.com/joescharf/prscore/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool
	jsonOut bool
)

// Set from main via Execute.
var (
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "prscore",
	Short: "Score pull requests by CI results and AI code review",
	Long: `prscore grades GitHub pull requests submitted for coding assignments.

It combines the pass rate of the head commit's CI check runs with an
AI review of the changed code into a single 0-100 score, and keeps
submissions ranked per assignment. Run 'prscore serve' for the HTTP API
or 'prscore mcp' for the MCP stdio server.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(ui.Out, "prscore %s (commit %s, built %s)\n", buildVersion, buildCommit, buildDate)
	},
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	err := rootCmd.Execute()
	if dataStore != nil {
		_ = dataStore.Close()
	}
	if err != nil {
		if ui != nil {
			ui.Error("%v", err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/prscore/config.yaml)")
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	// A .env in the working directory is optional.
	_ = godotenv.Load()

	dir, err := configDirFunc()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
		os.Exit(1)
	}

	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	config.SetDefaults(viper.GetViper(), dir)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// The store and API clients are built lazily so that config and
	// version run without credentials or a database.
}

// getConfig resolves and validates the effective configuration.
func getConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. --verbose forces debug level.
func newLogger(cfg *config.Config) (*slog.Logger, error) {
	l := cfg.Log
	if verbose {
		l.Level = "debug"
	}
	return l.NewLogger(os.Stderr)
}

// getStore returns the shared store, initializing it on first call.
func getStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	var (
		s   store.Store
		err error
	)
	switch cfg.DB.Driver {
	case "postgres":
		s, err = store.NewPostgresStore(ctx, cfg.DB.DSN)
	default:
		s, err = store.NewSQLiteStore(cfg.DB.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// newService wires the GitHub client, the evaluator and the store into a
// scoring service.
func newService(ctx context.Context, cfg *config.Config, log *slog.Logger) (*scoring.Service, error) {
	st, err := getStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	api, err := github.NewClient(ctx, github.Options{
		Token:   cfg.GitHub.Token,
		BaseURL: cfg.GitHub.BaseURL,
		Timeout: cfg.GitHub.Timeout,
	})
	if err != nil {
		return nil, err
	}
	if cfg.GitHub.Token == "" {
		log.Warn("no GitHub token configured; requests are unauthenticated and rate limited")
	}

	gen, err := llm.New(cfg.LLMConfig())
	if err != nil {
		return nil, err
	}
	if cfg.LLM.APIKey == "" {
		log.Warn("no LLM API key configured; evaluations will fail", slog.String("provider", string(cfg.LLM.Provider)))
	}
	log.Debug("evaluation model", slog.String("provider", string(cfg.LLM.Provider)), slog.String("model", gen.Model()))

	eval := evaluate.NewEvaluator(gen,
		evaluate.WithLogger(log),
		evaluate.WithStrictRanges(cfg.StrictRanges),
	)

	return scoring.NewService(api, eval, st,
		scoring.WithLogger(log),
		scoring.WithTimeouts(cfg.GitHub.Timeout, cfg.LLM.Timeout),
	), nil
}

// setup loads config, logger and service for commands that talk to GitHub
// or the database.
func setup(ctx context.Context) (*config.Config, *slog.Logger, *scoring.Service, error) {
	cfg, err := getConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	svc, err := newService(ctx, cfg, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, log, svc, nil
}
