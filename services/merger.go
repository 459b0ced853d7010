package services

import (
	"time"

	"github.com/google/uuid"

	"flat-aggregator/models"
	"flat-aggregator/storage"
	"flat-aggregator/utils"
)

// Export is a secondary destination the canonical dataset is copied to after
// a successful write.
type Export struct {
	Name  string
	Write func(listings []*models.Listing) error
}

// MergeSummary reports what one merge run did.
type MergeSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	Batches        int
	SkippedBatches []string

	OriginalTotal     int
	DuplicatesRemoved int
	FilteredOut       int
	FinalTotal        int
	PriceOnRequest    int
	PriceWeird        int

	IntegrityOK    bool
	Written        bool
	WriteErr       error
	DeletedBatches int
	FailedExports  []string
}

// Integrity reports whether every input record is accounted for.
func (s *MergeSummary) Integrity() bool {
	return s.OriginalTotal == s.FinalTotal+s.DuplicatesRemoved+s.FilteredOut
}

// MergerOptions tunes a Merger.
type MergerOptions struct {
	// DeleteConsumed removes the batch files after the dataset is written.
	DeleteConsumed bool
	Exports        []Export
}

// Merger folds every batch file in the data directory into the canonical
// dataset.
type Merger struct {
	reader  *storage.BatchReader
	store   *storage.CanonicalStore
	cleaner *Cleaner
	opts    MergerOptions
	logger  *utils.Logger
}

// NewMerger wires a Merger.
func NewMerger(reader *storage.BatchReader, store *storage.CanonicalStore, logger *utils.Logger, opts MergerOptions) *Merger {
	return &Merger{
		reader:  reader,
		store:   store,
		cleaner: NewCleaner(logger),
		opts:    opts,
		logger:  logger,
	}
}

// Ingest reads every batch in order and concatenates their records. A batch
// that cannot be read or is not an array of records is skipped whole.
func (m *Merger) Ingest(paths []string) ([]*models.Listing, []string) {
	var all []*models.Listing
	var skipped []string
	for _, p := range paths {
		b, err := m.reader.Read(p)
		if err != nil {
			m.logger.Warn("[merge] Skipping batch: %v", err)
			skipped = append(skipped, p)
			continue
		}
		all = append(all, b.Listings...)
	}
	return all, skipped
}

// Process runs the cleaning stages over listings and fills in the counters
// of summary. It does no IO.
func (m *Merger) Process(listings []*models.Listing, summary *MergeSummary) []*models.Listing {
	summary.OriginalTotal = len(listings)

	listings, summary.DuplicatesRemoved = m.cleaner.Deduplicate(listings)
	listings, summary.FilteredOut = m.cleaner.FilterByType(listings)
	summary.PriceOnRequest, summary.PriceWeird = m.cleaner.NormalizePrices(listings)
	AssignUIDs(listings)

	summary.FinalTotal = len(listings)
	summary.IntegrityOK = summary.Integrity()
	return listings
}

// Run performs a full merge. Only failing to discover batches is returned as
// an error; a failed dataset write is reported through the summary and
// leaves the previous dataset and the batch files in place.
func (m *Merger) Run() (*MergeSummary, error) {
	summary := &MergeSummary{RunID: uuid.NewString(), StartedAt: time.Now()}
	runLog := m.logger.With("run_id", summary.RunID)
	defer func() { summary.FinishedAt = time.Now() }()

	paths, err := m.reader.List()
	if err != nil {
		return summary, err
	}
	summary.Batches = len(paths)
	if len(paths) == 0 {
		runLog.Info("[merge] No batch files found to merge")
		summary.IntegrityOK = true
		return summary, nil
	}

	runLog.Info("[merge] Found %d batch files. Loading listings...", len(paths))
	listings, skipped := m.Ingest(paths)
	summary.SkippedBatches = skipped
	runLog.Info("[merge] Loaded %d listings in total", len(listings))

	listings = m.Process(listings, summary)
	if !summary.IntegrityOK {
		runLog.Warn("[merge] Integrity mismatch (orig=%d, merged=%d, dupes=%d, filtered=%d)",
			summary.OriginalTotal, summary.FinalTotal, summary.DuplicatesRemoved, summary.FilteredOut)
	}

	if err := m.store.Save(listings); err != nil {
		runLog.Error("[merge] Failed to write merged listings: %v", err)
		summary.WriteErr = err
		return summary, nil
	}
	summary.Written = true
	runLog.Info("[merge] Wrote %d listings to %s", len(listings), m.store.Path())

	for _, e := range m.opts.Exports {
		if err := e.Write(listings); err != nil {
			runLog.Error("[merge] Export %s failed: %v", e.Name, err)
			summary.FailedExports = append(summary.FailedExports, e.Name)
			continue
		}
		runLog.Info("[merge] Exported %d listings to %s", len(listings), e.Name)
	}

	if m.opts.DeleteConsumed {
		deleted, errs := storage.DeleteBatches(paths)
		for _, err := range errs {
			runLog.Error("[merge] %v", err)
		}
		summary.DeletedBatches = deleted
	}
	return summary, nil
}
