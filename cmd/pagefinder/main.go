// PageFinder locates tables in PDF collections by fuzzy matching of their
// expected text
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/viant/afs"

	"github.com/nainya/pagefinder/internal/config"
	"github.com/nainya/pagefinder/internal/logger"
	"github.com/nainya/pagefinder/internal/metrics"
	"github.com/nainya/pagefinder/pkg/fuzzy"
	"github.com/nainya/pagefinder/pkg/tables"
	"github.com/nainya/pagefinder/pkg/textstore"
)

const usage = `Usage: pagefinder <command> [flags]

Commands:
  ingest   extract page text from the PDFs at a location into the store
  find     search stored documents for the configured tables
  export   search and write results as JSON or XLSX
  analyze  consolidate a JSON export into one detection per document and table
  dump     write every stored page to an XLSX workbook
  serve    run the gRPC and HTTP APIs

Run "pagefinder <command> -h" for command flags.
`

type command func(ctx context.Context, app *app, args []string) error

var commands = map[string]command{
	"ingest":  runIngest,
	"find":    runFind,
	"export":  runExport,
	"analyze": runAnalyze,
	"dump":    runDump,
	"serve":   runServe,
}

// app holds the process-wide dependencies every command shares.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	metrics *metrics.Metrics
	fs      afs.Service

	store   *textstore.Store
	closers []func()
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.InitGlobalLogger(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	a := &app{
		cfg:     cfg,
		log:     logger.GetGlobalLogger(),
		metrics: metrics.NewMetrics(),
		fs:      afs.New(),
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd(ctx, a, os.Args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		a.log.Error("Command failed").Str("command", os.Args[1]).Err(err).Send()
		a.close()
		os.Exit(1)
	}
}

// openStore opens the text store at the configured path on first use.
func (a *app) openStore() (*textstore.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	if err := os.MkdirAll(filepath.Dir(a.cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	store, err := textstore.Open(a.cfg.DBPath,
		textstore.WithLogger(a.log.StoreLogger("textstore").Zerolog()),
		textstore.WithObserver(a.metrics),
	)
	if err != nil {
		return nil, err
	}
	a.store = store
	return store, nil
}

// newEngine loads the table definitions and builds a search engine over
// the store.
func (a *app) newEngine(ctx context.Context) (*tables.Engine, error) {
	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	defs, err := tables.LoadDefinitions(ctx, a.fs, a.cfg.TablesConfig)
	if err != nil {
		return nil, err
	}
	a.log.Info("Table definitions loaded").
		Str("source", a.cfg.TablesConfig).
		Int("tables", len(defs)).
		Send()

	opts := []tables.EngineOption{
		tables.WithLogger(a.log.SearchLogger("engine").Zerolog()),
		tables.WithSearchObserver(a.metrics),
		tables.WithMatcherOptions(
			fuzzy.WithWindowMargin(a.cfg.WindowMargin),
			fuzzy.WithMaxHypotheses(a.cfg.MaxHypotheses),
		),
	}
	if a.cfg.SearchWorkers > 0 {
		opts = append(opts, tables.WithParallelism(a.cfg.SearchWorkers))
	}
	return tables.NewEngine(store, defs, opts...), nil
}

func (a *app) close() {
	for _, c := range a.closers {
		c()
	}
	a.closers = nil
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		a.log.Error("Failed to close store").Err(err).Send()
	}
	a.store = nil
}
