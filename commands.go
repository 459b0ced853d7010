package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"flat-aggregator/config"
	"flat-aggregator/models"
	"flat-aggregator/scraper"
	"flat-aggregator/scraper/html"
	"flat-aggregator/services"
	"flat-aggregator/storage"
	"flat-aggregator/utils"
	"flat-aggregator/web"
)

// pipeline holds the collaborators shared by every command.
type pipeline struct {
	cfg      *config.Config
	logger   *utils.Logger
	store    *storage.CanonicalStore
	merger   *services.Merger
	insights *services.InsightService
	postgres *storage.PostgresWriter

	closers []func()
}

func newPipeline(c *cli.Context) (*pipeline, error) {
	cfg := loadConfig(c)
	logger, fluentClient := newLogger(cfg)

	p := &pipeline{
		cfg:      cfg,
		logger:   logger,
		store:    storage.NewCanonicalStore(cfg.MergedPath()),
		insights: services.NewInsightService(logger, os.Stdout),
	}
	if fluentClient != nil {
		p.closers = append(p.closers, func() { fluentClient.Close() })
	}

	reader, err := storage.NewBatchReader(cfg.DataDir, cfg.MergedFilename)
	if err != nil {
		p.Close()
		return nil, err
	}

	var exports []services.Export
	if cfg.CSVOutputPath != "" {
		exports = append(exports, services.Export{
			Name:  "csv",
			Write: func(l []*models.Listing) error { return storage.ExportCSV(cfg.CSVOutputPath, l) },
		})
	}
	if cfg.PostgresEnabled {
		pg, err := storage.NewPostgresWriter(c.Context, cfg.DSN(), logger)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.postgres = pg
		p.closers = append(p.closers, func() { pg.Close() })
		exports = append(exports, services.Export{Name: "postgres", Write: pg.Write})
	}

	deleteConsumed := cfg.DeleteConsumed
	if c.IsSet("keep-batches") {
		deleteConsumed = !c.Bool("keep-batches")
	}
	p.merger = services.NewMerger(reader, p.store, logger, services.MergerOptions{
		DeleteConsumed: deleteConsumed,
		Exports:        exports,
	})
	return p, nil
}

// Close releases connections in reverse order of opening.
func (p *pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
}

// scrape runs every configured source and prints the per-source summary.
func (p *pipeline) scrape(ctx context.Context) error {
	defs, err := config.LoadSources(p.cfg.SourcesFile)
	if err != nil {
		return err
	}
	sources, closeSources, err := html.NewSources(defs, p.cfg, p.logger)
	if err != nil {
		return err
	}
	defer closeSources()

	retry := &utils.RetryConfig{MaxAttempts: p.cfg.MaxRetries, BaseDelay: 2 * time.Second, Logger: p.logger}
	runner := scraper.NewRunner(p.cfg.DataDir, sources, retry, p.logger)
	results, err := runner.Run(ctx)
	runner.PrintSummary(results)
	return err
}

// merge runs one merge and prints its summary.
func (p *pipeline) merge() error {
	summary, err := p.merger.Run()
	if err != nil {
		return err
	}
	p.insights.PrintMerge(summary)
	if summary.WriteErr != nil {
		return summary.WriteErr
	}
	return nil
}

func (p *pipeline) report(fromPostgres bool) error {
	load := p.store.Load
	if fromPostgres {
		if p.postgres == nil {
			return fmt.Errorf("report: postgres is not enabled (POSTGRES_ENABLED)")
		}
		load = p.postgres.FetchAll
	}
	listings, err := load()
	if err != nil {
		return err
	}
	p.insights.Print(p.insights.Generate(listings))
	return nil
}

func keepBatchesFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "keep-batches",
		Usage: "Leave source batch files in place after a successful merge",
	}
}

func mergeCommand() *cli.Command {
	return &cli.Command{
		Name:  "merge",
		Usage: "Merge every batch in the data directory into the canonical dataset",
		Flags: []cli.Flag{
			keepBatchesFlag(),
			&cli.BoolFlag{Name: "report", Usage: "Print dataset insights after merging"},
		},
		Action: func(c *cli.Context) error {
			p, err := newPipeline(c)
			if err != nil {
				return err
			}
			defer p.Close()

			if err := p.merge(); err != nil {
				return err
			}
			if c.Bool("report") {
				return p.report(false)
			}
			return nil
		},
	}
}

func scrapeCommand() *cli.Command {
	return &cli.Command{
		Name:  "scrape",
		Usage: "Run every configured source and write one batch per source",
		Flags: []cli.Flag{
			keepBatchesFlag(),
			&cli.BoolFlag{Name: "merge", Usage: "Merge the new batches afterwards"},
		},
		Action: func(c *cli.Context) error {
			p, err := newPipeline(c)
			if err != nil {
				return err
			}
			defer p.Close()

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := p.scrape(ctx); err != nil {
				return err
			}
			if c.Bool("merge") {
				return p.merge()
			}
			return nil
		},
	}
}

func reportCommand() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Print insights about the canonical dataset",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "from-postgres", Usage: "Read the dataset back from the PostgreSQL mirror"},
		},
		Action: func(c *cli.Context) error {
			p, err := newPipeline(c)
			if err != nil {
				return err
			}
			defer p.Close()
			return p.report(c.Bool("from-postgres"))
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the listing page and API",
		Flags: []cli.Flag{
			keepBatchesFlag(),
			&cli.StringFlag{Name: "addr", Usage: "Listen address", EnvVars: []string{"HTTP_ADDR"}},
			&cli.StringFlag{Name: "static-dir", Usage: "Directory served under /static/", EnvVars: []string{"STATIC_DIR"}},
			&cli.BoolFlag{Name: "no-refresh", Usage: "Disable POST /run-scrape"},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	p, err := newPipeline(c)
	if err != nil {
		return err
	}
	defer p.Close()
	cfg, logger := p.cfg, p.logger

	sections, err := config.LoadSections(cfg.SectionsFile)
	if err != nil {
		return err
	}
	catalog := services.NewCatalog(p.store, services.NewViewBuilder(sections), logger)
	if _, err := catalog.Reload(); err != nil {
		logger.Warn("[main] Starting with an empty catalog: %v", err)
	}

	var refresher web.Refresher
	if !c.Bool("no-refresh") {
		refresher = services.NewRefresher(p.scrape, p.merger, catalog, p.insights, logger)
	}

	opts := web.Options{Addr: cfg.HTTPAddr, StaticDir: cfg.StaticDir, CORSOrigins: cfg.CORSOrigins}
	if c.IsSet("addr") {
		opts.Addr = c.String("addr")
	}
	if c.IsSet("static-dir") {
		opts.StaticDir = c.String("static-dir")
	}
	server := web.NewServer(opts, catalog, refresher, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("[main] Shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info("[main] Server stopped")
	return nil
}
