package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fluent/fluent-logger-golang/fluent"
	"github.com/urfave/cli/v2"

	"flat-aggregator/config"
	"flat-aggregator/utils"
)

func main() {
	app := &cli.App{
		Name:  "flat-aggregator",
		Usage: "Scrape flat listings, merge them into one dataset and serve it",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "data-dir",
				Usage:   "Directory holding source batches and the merged dataset",
				EnvVars: []string{"DATA_DIR"},
			},
			&cli.StringFlag{
				Name:    "sections",
				Usage:   "Section definitions (YAML)",
				EnvVars: []string{"SECTIONS_FILE"},
			},
			&cli.StringFlag{
				Name:    "sources",
				Usage:   "Source definitions (YAML)",
				EnvVars: []string{"SOURCES_FILE"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			mergeCommand(),
			scrapeCommand(),
			serveCommand(),
			reportCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies global flag overrides.
func loadConfig(c *cli.Context) *config.Config {
	cfg := config.Load()
	if c.IsSet("data-dir") {
		cfg.DataDir = c.String("data-dir")
	}
	if c.IsSet("sections") {
		cfg.SectionsFile = c.String("sections")
	}
	if c.IsSet("sources") {
		cfg.SourcesFile = c.String("sources")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	return cfg
}

// newLogger builds the console logger and, when enabled, ships records to
// Fluent Bit as well. The returned client is nil without Fluent Bit.
func newLogger(cfg *config.Config) (*utils.Logger, *fluent.Fluent) {
	level, ok := utils.ParseLevel(cfg.LogLevel)

	opts := utils.LoggerOptions{Level: level}
	var client *fluent.Fluent
	var fluentErr error
	if cfg.FluentBitEnabled {
		fluentLevel, _ := utils.ParseLevel(cfg.FluentBitLevel)
		var h slog.Handler
		h, client, fluentErr = utils.NewFluentHandler(utils.FluentConfig{
			Host:      cfg.FluentBitHost,
			Port:      cfg.FluentBitPort,
			TagPrefix: cfg.AppName,
			Level:     fluentLevel,
		})
		if fluentErr == nil {
			opts.Extra = append(opts.Extra, h)
		}
	}

	logger := utils.NewLoggerWithOptions(opts)
	if !ok {
		logger.Warn("[main] Unknown LOG_LEVEL %q, using info", cfg.LogLevel)
	}
	if fluentErr != nil {
		logger.Warn("[main] Fluent Bit disabled: %v", fluentErr)
	}
	return logger, client
}
