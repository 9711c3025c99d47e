package cmd

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/dgr198213-ui/Agent00/internal/core/config"
	"github.com/dgr198213-ui/Agent00/internal/core/db"
	"github.com/dgr198213-ui/Agent00/internal/core/logging"
	"github.com/dgr198213-ui/Agent00/internal/core/store"
)

// Version is the release version reported by the CLI.
const Version = "0.1.0"

// globalFlags holds the persistent flag values shared by every command.
type globalFlags struct {
	configFile string
	dbURL      string
	logLevel   string
	logFormat  string
}

// newRootCmd builds the command tree. A fresh tree per invocation keeps flag
// state out of package globals.
func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "agent00",
		Short:         "Agent00 rule-based decision engine",
		Long:          `Agent00 evaluates declarative rules against runtime contexts and returns ranked decisions.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&g.configFile, "config", "", "config file path")
	root.PersistentFlags().StringVar(&g.dbURL, "db-url", "", "database connection URL (sqlite://path or postgres://...)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "text", "log format (text, json, logfmt)")

	root.AddCommand(
		newServeCmd(g),
		newMigrateCmd(g),
		newValidateCmd(),
		newEvalCmd(g),
		newRulesCmd(g),
	)
	return root
}

// Execute runs the CLI.
func Execute() error {
	root := newRootCmd()
	err := root.Execute()
	if err != nil && !errors.Is(err, errInvalidCondition) {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
	}
	return err
}

// load resolves configuration for cmd and builds the logger it describes.
// Logs go to stderr so command output on stdout stays machine-readable.
func (g *globalFlags) load(cmd *cobra.Command) (*config.Config, *log.Logger, error) {
	cfg, err := config.LoadConfig(g.configFile, cmd.Flags())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr()), nil
}

// openDatabase opens cfg.DatabaseURL.
func openDatabase(cfg *config.Config) (*sqlx.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("--db-url or AGENT00_DATABASE_URL required")
	}
	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}

// openStore opens the database, checks the schema is current and returns a
// rule store over it. The caller closes the returned database.
func openStore(cfg *config.Config, opts ...store.Option) (*sqlx.DB, *store.SQLStore, error) {
	database, err := openDatabase(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := db.RequireMigrated(database); err != nil {
		database.Close()
		return nil, nil, err
	}
	queries, err := db.LoadQueries(database)
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to load queries: %w", err)
	}
	return database, store.NewSQLStore(queries, opts...), nil
}
