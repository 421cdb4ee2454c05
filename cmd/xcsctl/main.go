package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"xcsgo/internal/storage"
	xcsapi "xcsgo/pkg/xcsgo"
)

const (
	runsDir    = "runs"
	exportsDir = "exports"
)

type globalOptions struct {
	store       string
	dbPath      string
	runsDir     string
	exportsDir  string
	verbose     bool
	metricsAddr string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	root := newRootCmd(out)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "xcsctl",
		Short:         "Run XCS learning classifier system experiments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	flags := root.PersistentFlags()
	flags.StringVar(&opts.store, "store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	flags.StringVar(&opts.dbPath, "db-path", storage.DefaultSQLitePath, "sqlite database path")
	flags.StringVar(&opts.runsDir, "runs-dir", runsDir, "run artifacts directory")
	flags.StringVar(&opts.exportsDir, "exports-dir", exportsDir, "default export directory")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log every problem")

	root.AddCommand(
		newRunCmd(opts),
		newCheckConfigCmd(opts),
		newRunsCmd(opts),
		newPopulationCmd(opts),
		newPerformanceCmd(opts),
		newSummaryCmd(opts),
		newExportCmd(opts),
	)
	return root
}

// newLogger writes JSON logs to stderr: warnings by default, everything
// with --verbose.
func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.Sampling = nil
	return cfg.Build()
}

func openClient(opts *globalOptions) (*xcsapi.Client, *zap.Logger, error) {
	log, err := newLogger(opts.verbose)
	if err != nil {
		return nil, nil, err
	}
	client, err := xcsapi.New(xcsapi.Options{
		StoreKind:   opts.store,
		DBPath:      opts.dbPath,
		RunsDir:     opts.runsDir,
		ExportsDir:  opts.exportsDir,
		Logger:      log,
		MetricsAddr: opts.metricsAddr,
	})
	if err != nil {
		_ = log.Sync()
		return nil, nil, err
	}
	return client, log, nil
}

// withClient opens a client for the duration of fn.
func withClient(opts *globalOptions, fn func(*xcsapi.Client) error) error {
	client, log, err := openClient(opts)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
		_ = log.Sync()
	}()
	return fn(client)
}
