package scraper

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"flat-aggregator/models"
	"flat-aggregator/storage"
	"flat-aggregator/utils"
)

// Source produces the listings of one website.
type Source interface {
	Name() string
	Scrape(ctx context.Context) ([]*models.Listing, error)
}

// Result describes one source's run.
type Result struct {
	Source  string
	Rows    int
	Path    string
	Elapsed time.Duration
	Err     error
}

// Runner executes sources one after another and writes each one's listings
// as a batch file for the next merge.
type Runner struct {
	dataDir string
	sources []Source
	retry   *utils.RetryConfig
	logger  *utils.Logger
	out     io.Writer
}

// NewRunner creates a Runner writing batches into dataDir.
func NewRunner(dataDir string, sources []Source, retry *utils.RetryConfig, logger *utils.Logger) *Runner {
	return &Runner{dataDir: dataDir, sources: sources, retry: retry, logger: logger, out: os.Stdout}
}

// SetOutput redirects the printed summary.
func (r *Runner) SetOutput(w io.Writer) { r.out = w }

// Run scrapes every source. A failing source is logged and skipped; only a
// cancelled context stops the run early.
func (r *Runner) Run(ctx context.Context) ([]Result, error) {
	results := make([]Result, 0, len(r.sources))
	for _, src := range r.sources {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("scraper: run cancelled: %w", err)
		}
		results = append(results, r.runOne(ctx, src))
	}
	r.logger.Info("[scraper] All sources finished")
	return results, nil
}

func (r *Runner) runOne(ctx context.Context, src Source) Result {
	res := Result{Source: src.Name()}
	start := time.Now()
	r.logger.Info("[scraper] Starting %s", res.Source)

	var listings []*models.Listing
	err := r.retry.Do(ctx, "scrape "+res.Source, func() error {
		var err error
		listings, err = src.Scrape(ctx)
		return err
	})
	res.Elapsed = time.Since(start)
	if err != nil {
		r.logger.Error("[scraper] %s failed: %v", res.Source, err)
		res.Err = err
		return res
	}

	for i, l := range listings {
		l.UID = i + 1
		l.Source = res.Source
	}
	path, err := storage.WriteBatch(r.dataDir, res.Source, listings)
	if err != nil {
		r.logger.Error("[scraper] %s: %v", res.Source, err)
		res.Err = err
		return res
	}

	res.Rows = len(listings)
	res.Path = path
	r.logger.Info("[scraper] Finished %s in %.1f s -> %d rows", res.Source, res.Elapsed.Seconds(), res.Rows)
	return res
}

// PrintSummary prints per-source row counts and the total.
func (r *Runner) PrintSummary(results []Result) {
	fmt.Fprintf(r.out, "\n===== SCRAPE SUMMARY =====\n")
	total := 0
	for _, res := range results {
		total += res.Rows
		status := ""
		if res.Err != nil {
			status = "  (failed)"
		}
		fmt.Fprintf(r.out, "• %-12s: %4d ads%s\n", res.Source, res.Rows, status)
	}
	fmt.Fprintf(r.out, "---------------------------\n")
	fmt.Fprintf(r.out, "TOTAL          : %4d ads\n", total)
	fmt.Fprintf(r.out, "===========================\n\n")
}
