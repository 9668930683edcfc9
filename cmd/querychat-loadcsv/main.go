package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/querychat/querychat/internal/app"
	"github.com/querychat/querychat/internal/config"
	"github.com/querychat/querychat/internal/csvload"
	"github.com/querychat/querychat/internal/demo/salesdata"
	"github.com/querychat/querychat/internal/observability"
	"github.com/querychat/querychat/internal/query/sqlgateway"
	"github.com/querychat/querychat/internal/session"
	"github.com/querychat/querychat/internal/storage"
)

type loadOptions struct {
	file     string
	rows     int
	seed     int64
	encoding string
	table    string
	driver   string
	host     string
	port     string
	user     string
	database string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		pterm.Fprintln(os.Stderr, pterm.Red("✗ "+err.Error()))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &loadOptions{}
	root := &cobra.Command{
		Use:           "querychat-loadcsv --file <path|s3://bucket/key>",
		Short:         "Create a table from a CSV file and insert its rows",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLoad(cmd, opts)
		},
	}
	root.PersistentFlags().StringVarP(&opts.file, "file", "f", "", "CSV file: a local path or s3://bucket/key")
	root.Flags().StringVar(&opts.encoding, "encoding", csvload.DefaultEncoding, "Character encoding of the file")
	root.Flags().StringVar(&opts.table, "table", csvload.DefaultTable, "Target table")
	root.Flags().StringVar(&opts.driver, "driver", "", "Database driver: mysql, postgres or duckdb")
	root.Flags().StringVar(&opts.host, "host", "", "Database host")
	root.Flags().StringVar(&opts.port, "port", "", "Database port")
	root.Flags().StringVar(&opts.user, "user", "", "Database user")
	root.Flags().StringVar(&opts.database, "database", "", "Database name")
	_ = root.MarkPersistentFlagRequired("file")

	root.AddCommand(&cobra.Command{
		Use:   "detect-encoding",
		Short: "Report the probable character encoding of the file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDetect(cmd, opts)
		},
	})
	demo := &cobra.Command{
		Use:   "demo",
		Short: "Write a synthetic sales dataset to the file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(cmd, opts)
		},
	}
	demo.Flags().IntVar(&opts.rows, "rows", 2823, "Number of orders to generate")
	demo.Flags().Int64Var(&opts.seed, "seed", 1, "Random seed")
	demo.Flags().StringVar(&opts.encoding, "encoding", csvload.DefaultEncoding, "Character encoding of the file")
	root.AddCommand(demo)
	return root
}

func runLoad(cmd *cobra.Command, opts *loadOptions) error {
	cfg, err := config.LoadFromEnv("querychat-loadcsv")
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg, os.Stderr)
	ctx := cmd.Context()

	data, err := readTable(ctx, cfg, opts.file, opts.encoding)
	if err != nil {
		return err
	}

	params := cfg.Database.Params().Merge(session.Params{
		Driver:   opts.driver,
		Host:     opts.host,
		Port:     opts.port,
		User:     opts.user,
		Database: opts.database,
	}, false)
	gateway := sqlgateway.New(sqlgateway.Config{Logger: logger})
	db, err := gateway.Open(ctx, params)
	if err != nil {
		return fmt.Errorf("database connection failed: %s", observability.Mask(err.Error()))
	}
	defer func() { _ = db.Close() }()

	loader, err := csvload.NewLoader(db, params.DriverName(), logger)
	if err != nil {
		return err
	}
	summary, err := loader.Load(ctx, opts.table, data)
	if err != nil {
		return err
	}
	pterm.Fprintln(cmd.OutOrStdout(), pterm.Green(fmt.Sprintf("✓ Loaded %d rows into %s (%d columns) in %s",
		summary.Rows, summary.Table, summary.Columns, summary.Duration.Round(time.Millisecond))))
	return nil
}

func runDetect(cmd *cobra.Command, opts *loadOptions) error {
	cfg, err := config.LoadFromEnv("querychat-loadcsv")
	if err != nil {
		return err
	}
	source, err := openSource(cmd.Context(), cfg, opts.file)
	if err != nil {
		return err
	}
	defer func() { _ = source.Close() }()

	detection, err := csvload.DetectEncoding(source)
	if err != nil {
		return fmt.Errorf("detect encoding: %w", err)
	}
	certainty := "probable"
	if detection.Certain {
		certainty = "certain"
	}
	pterm.Fprintln(cmd.OutOrStdout(), fmt.Sprintf("%s (%s)", detection.Encoding, certainty))
	return nil
}

func runDemo(cmd *cobra.Command, opts *loadOptions) error {
	if opts.rows <= 0 {
		return fmt.Errorf("--rows must be > 0")
	}
	ctx := cmd.Context()
	generator := salesdata.NewGenerator(opts.seed)

	if storage.IsObjectURI(opts.file) {
		uri, err := storage.ParseObjectURI(opts.file)
		if err != nil {
			return err
		}
		cfg, err := config.LoadFromEnv("querychat-loadcsv")
		if err != nil {
			return err
		}
		store, err := app.OpenS3(ctx, cfg.ObjectStore)
		if err != nil {
			return err
		}
		scoped, err := store.InBucket(uri.Bucket)
		if err != nil {
			return err
		}
		if _, err := salesdata.Upload(ctx, scoped, uri.Key, generator, opts.rows, opts.encoding); err != nil {
			return err
		}
	} else {
		file, err := os.Create(opts.file)
		if err != nil {
			return err
		}
		if err := salesdata.Write(file, generator, opts.rows, opts.encoding); err != nil {
			_ = file.Close()
			return err
		}
		if err := file.Close(); err != nil {
			return err
		}
	}
	pterm.Fprintln(cmd.OutOrStdout(), pterm.Green(fmt.Sprintf("✓ Wrote %d orders to %s", opts.rows, opts.file)))
	return nil
}

func readTable(ctx context.Context, cfg config.Config, path, encoding string) (csvload.Table, error) {
	source, err := openSource(ctx, cfg, path)
	if err != nil {
		return csvload.Table{}, err
	}
	defer func() { _ = source.Close() }()
	data, err := csvload.ReadCSV(source, encoding)
	if err != nil {
		return csvload.Table{}, fmt.Errorf("%s: %w", path, err)
	}
	return data, nil
}

// openSource connects to object storage only for s3:// inputs.
func openSource(ctx context.Context, cfg config.Config, path string) (io.ReadCloser, error) {
	var opener csvload.ObjectOpener
	if storage.IsObjectURI(path) {
		store, err := app.OpenS3(ctx, cfg.ObjectStore)
		if err != nil {
			return nil, err
		}
		opener = store
	}
	source, err := csvload.OpenSource(ctx, path, opener)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return source, nil
}
