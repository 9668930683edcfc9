package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/querychat/querychat/internal/app"
	"github.com/querychat/querychat/internal/config"
	"github.com/querychat/querychat/internal/observability"
	"github.com/querychat/querychat/internal/query/sqlgateway"
	"github.com/querychat/querychat/internal/session"
	"github.com/querychat/querychat/internal/shell"
)

// reportedError marks a failure that has already been printed.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }

func (e *reportedError) Unwrap() error { return e.err }

type rootOptions struct {
	debug   bool
	rag     bool
	verbose bool

	driver   string
	host     string
	port     string
	user     string
	database string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "querychat",
		Short:         "Ask questions about your database in plain English",
		Long:          `querychat turns English questions into SQL, runs them against your database and explains the result.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runShell(cmd, opts)
		},
	}

	flags := root.PersistentFlags()
	flags.BoolVar(&opts.debug, "debug", false, "Show the generated SQL and the result rows (default from QUERYCHAT_PIPELINE_SHOW_QUERY)")
	flags.BoolVar(&opts.rag, "rag", false, "Retrieve relevant schema details before generating SQL (default from QUERYCHAT_RAG_ENABLED)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Write application logs to stderr at the configured level")
	flags.StringVar(&opts.driver, "driver", "", "Database driver: mysql, postgres or duckdb")
	flags.StringVar(&opts.host, "host", "", "Database host")
	flags.StringVar(&opts.port, "port", "", "Database port")
	flags.StringVar(&opts.user, "user", "", "Database user")
	flags.StringVar(&opts.database, "database", "", "Database name")

	root.AddCommand(
		&cobra.Command{
			Use:   "shell",
			Short: "Start the interactive question shell",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runShell(cmd, opts)
			},
		},
		&cobra.Command{
			Use:   "ask <question>",
			Short: "Answer one question and exit",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runAsk(cmd, opts, strings.Join(args, " "))
			},
		},
		&cobra.Command{
			Use:   "test-connection",
			Short: "Connect to the database with the current settings and disconnect again",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runTestConnection(cmd, opts)
			},
		},
		&cobra.Command{
			Use:   "schema",
			Short: "Print the schema catalog given to the model",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runSchema(cmd)
			},
		},
	)
	return root
}

func runShell(cmd *cobra.Command, opts *rootOptions) error {
	sh, closeApp, err := buildShell(cmd, opts)
	if err != nil {
		return err
	}
	defer closeApp()
	return sh.Run(cmd.Context())
}

func runAsk(cmd *cobra.Command, opts *rootOptions, question string) error {
	sh, closeApp, err := buildShell(cmd, opts)
	if err != nil {
		return err
	}
	defer closeApp()
	if err := sh.Ask(cmd.Context(), question); err != nil {
		return &reportedError{err: err}
	}
	return nil
}

func runTestConnection(cmd *cobra.Command, opts *rootOptions) error {
	cfg, logger, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	gateway := sqlgateway.New(sqlgateway.Config{Logger: logger})
	params := opts.connection(cfg)
	if err := gateway.TestConnection(cmd.Context(), params); err != nil {
		return fmt.Errorf("database connection failed: %s", observability.Mask(err.Error()))
	}
	pterm.Fprintln(cmd.OutOrStdout(), pterm.Green(fmt.Sprintf("✓ Connected to the database %s successfully!", params.Database)))
	return nil
}

func runSchema(cmd *cobra.Command) error {
	cfg, err := config.LoadFromEnv("querychat")
	if err != nil {
		return err
	}
	catalog, err := app.LoadCatalog(cfg.Schema)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Database: %s (%s)\n", catalog.Database, catalog.Dialect)
	for _, table := range catalog.Tables {
		fmt.Fprintf(out, "\nTable: %s\n", table.Name)
		tw := tablewriter.NewWriter(out)
		tw.SetAutoFormatHeaders(false)
		tw.SetAutoWrapText(false)
		tw.SetHeader([]string{"Column", "Description"})
		for _, column := range table.Columns {
			tw.Append([]string{column.Name, column.Description})
		}
		tw.Render()
	}
	return nil
}

func buildShell(cmd *cobra.Command, opts *rootOptions) (*shell.Shell, func(), error) {
	cfg, logger, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, nil, err
	}
	debug := cfg.Pipeline.ShowQuery
	if cmd.Flags().Changed("debug") {
		debug = opts.debug
	}

	a, err := app.New(cmd.Context(), cfg, app.Options{Logger: logger})
	if err != nil {
		return nil, nil, err
	}
	sh, err := shell.New(shell.Options{
		In:          cmd.InOrStdin(),
		Out:         cmd.OutOrStdout(),
		Pipeline:    a.Pipeline,
		Connections: a.Gateway,
		Store:       session.NewStore(opts.connection(cfg)),
		Debug:       debug,
		RAG:         cfg.RAG.Enabled,
		Spinner:     term.IsTerminal(int(os.Stdout.Fd())),
		Interrupts:  []os.Signal{os.Interrupt},
		Logger:      logger,
	})
	if err != nil {
		_ = a.Close()
		return nil, nil, err
	}
	return sh, func() { _ = a.Close() }, nil
}

// loadConfig reads the environment and applies command-line overrides. Logs
// go to stderr at warn level unless --verbose is set.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (config.Config, *slog.Logger, error) {
	cfg, err := config.LoadFromEnv("querychat")
	if err != nil {
		return config.Config{}, nil, err
	}
	if cmd.Flags().Changed("rag") {
		cfg.RAG.Enabled = opts.rag
	}
	logCfg := cfg
	if !opts.verbose {
		logCfg.Observability.LogLevel = slog.LevelWarn
	}
	return cfg, observability.NewLogger(logCfg, os.Stderr), nil
}

func (o *rootOptions) connection(cfg config.Config) session.Params {
	return cfg.Database.Params().Merge(session.Params{
		Driver:   o.driver,
		Host:     o.host,
		Port:     o.port,
		User:     o.user,
		Database: o.database,
	}, false)
}
