package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"flat-aggregator/utils"
)

// ErrRefreshInProgress is returned when a refresh is requested while another
// one is still running.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// ScrapeFunc runs every configured source and leaves its batch files in the
// data directory.
type ScrapeFunc func(ctx context.Context) error

// Refresher runs scrape, merge and reload as one operation, one at a time.
type Refresher struct {
	mu       sync.Mutex
	scrape   ScrapeFunc
	merger   *Merger
	catalog  *Catalog
	insights *InsightService
	logger   *utils.Logger
}

// NewRefresher wires a Refresher. scrape may be nil, in which case only the
// merge and reload steps run.
func NewRefresher(scrape ScrapeFunc, merger *Merger, catalog *Catalog, insights *InsightService, logger *utils.Logger) *Refresher {
	return &Refresher{
		scrape:   scrape,
		merger:   merger,
		catalog:  catalog,
		insights: insights,
		logger:   logger,
	}
}

// Run refreshes the served data. A failure at any step leaves the currently
// published snapshot untouched.
func (r *Refresher) Run(ctx context.Context) (*MergeSummary, error) {
	if !r.mu.TryLock() {
		return nil, ErrRefreshInProgress
	}
	defer r.mu.Unlock()

	r.logger.Info("[refresh] Starting full scrape and merge pipeline")

	if r.scrape != nil {
		if err := r.scrape(ctx); err != nil {
			return nil, fmt.Errorf("refresh: scrape: %w", err)
		}
	}

	summary, err := r.merger.Run()
	if err != nil {
		return summary, fmt.Errorf("refresh: merge: %w", err)
	}
	if r.insights != nil {
		r.insights.PrintMerge(summary)
	}
	if summary.WriteErr != nil {
		return summary, fmt.Errorf("refresh: merge: %w", summary.WriteErr)
	}

	if _, err := r.catalog.Reload(); err != nil {
		return summary, fmt.Errorf("refresh: %w", err)
	}

	r.logger.Info("[refresh] Pipeline completed")
	return summary, nil
}
