package services

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"flat-aggregator/models"
	"flat-aggregator/utils"
)

type InsightService struct {
	logger *utils.Logger
	out    io.Writer
}

// NewInsightService creates an InsightService printing to out, or to stdout
// when out is nil.
func NewInsightService(logger *utils.Logger, out io.Writer) *InsightService {
	if out == nil {
		out = os.Stdout
	}
	return &InsightService{logger: logger, out: out}
}

func (s *InsightService) Generate(listings []*models.Listing) *models.InsightReport {
	report := &models.InsightReport{
		ListingsBySource: make(map[string]int),
		ListingsByType:   make(map[string]int),
		ListingsByBucket: make(map[string]int),
		SentinelCounts:   make(map[string]int),
	}

	if len(listings) == 0 {
		return report
	}

	report.TotalListings = len(listings)

	var total int64
	for _, l := range listings {
		report.ListingsBySource[l.Source]++
		report.ListingsByType[l.TypeOfFlat]++
		report.ListingsByBucket[DeriveView(l).Bucket]++
		if l.Price.IsSentinel() {
			report.SentinelCounts[l.Price.Label()]++
		}

		if l.Price.Kind != models.PriceNumeric {
			continue
		}
		amount := l.Price.Amount
		if report.PricedListings == 0 || amount > report.MaxPrice {
			report.MaxPrice = amount
			report.MostExpensive = l
		}
		if report.PricedListings == 0 || amount < report.MinPrice {
			report.MinPrice = amount
			report.Cheapest = l
		}
		total += amount
		report.PricedListings++
	}

	if report.PricedListings > 0 {
		report.AveragePrice = total / int64(report.PricedListings)
	}
	s.logger.Debug("[insights] %d listings, %d with a numeric price", report.TotalListings, report.PricedListings)
	return report
}

func (s *InsightService) Print(r *models.InsightReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)
	w := s.out

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  📊 LISTING INSIGHTS\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Total listings         : \033[1m%d\033[0m\n", r.TotalListings)
	fmt.Fprintf(w, "  With a numeric price   : \033[1m%d\033[0m\n", r.PricedListings)
	for _, label := range []string{models.PriceOnRequestLabel, models.PriceAnomalousLabel} {
		fmt.Fprintf(w, "  %-22s : %d\n", truncate(label, 22), r.SentinelCounts[label])
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Price Statistics\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if r.PricedListings > 0 {
		fmt.Fprintf(w, "  Average price : \033[1;32m%s\033[0m\n", ShortPrice(r.AveragePrice))
		fmt.Fprintf(w, "  Minimum price : \033[1;32m%s\033[0m\n", ShortPrice(r.MinPrice))
		fmt.Fprintf(w, "  Maximum price : \033[1;32m%s\033[0m\n", ShortPrice(r.MaxPrice))
	} else {
		fmt.Fprintf(w, "  No price data available\n")
	}
	fmt.Fprintln(w)

	if r.MostExpensive != nil {
		fmt.Fprintf(w, "\033[1;33m  Most Expensive Listing\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		fmt.Fprintf(w, "  %s\n", truncate(r.MostExpensive.Locality, 50))
		fmt.Fprintf(w, "  Type     : %s, %s m²\n", r.MostExpensive.TypeOfFlat, r.MostExpensive.Size)
		fmt.Fprintf(w, "  Price    : \033[1;31m%s\033[0m\n", ShortPrice(r.MostExpensive.Price.Amount))
		fmt.Fprintln(w)
	}

	s.printCounts("Listings by Source", r.ListingsBySource, byCount)
	s.printCounts("Listings by Flat Type", r.ListingsByType, byCount)
	s.printCounts("Listings by Bucket", r.ListingsByBucket, byBucket)

	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)
}

type labelCount struct {
	label string
	count int
}

func byCount(items []labelCount) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].count != items[j].count {
			return items[i].count > items[j].count
		}
		return items[i].label < items[j].label
	})
}

func byBucket(items []labelCount) {
	set := make(map[string]struct{}, len(items))
	counts := make(map[string]int, len(items))
	for _, it := range items {
		set[it.label] = struct{}{}
		counts[it.label] = it.count
	}
	for i, b := range SortBuckets(set) {
		items[i] = labelCount{b, counts[b]}
	}
}

func (s *InsightService) printCounts(title string, m map[string]int, order func([]labelCount)) {
	w := s.out
	fmt.Fprintf(w, "\033[1;33m  %s\033[0m\n", title)
	fmt.Fprintf(w, "  %s\n", strings.Repeat("─", 54))
	if len(m) == 0 {
		fmt.Fprintf(w, "  No data\n\n")
		return
	}
	items := make([]labelCount, 0, len(m))
	for label, n := range m {
		items = append(items, labelCount{label, n})
	}
	order(items)
	for _, it := range items {
		label := it.label
		if label == "" {
			label = "(empty)"
		}
		bar := strings.Repeat("█", min(it.count, 30))
		fmt.Fprintf(w, "  %-20s %s (%d)\n", truncate(label, 18), bar, it.count)
	}
	fmt.Fprintln(w)
}

// PrintMerge prints the summary of a merge run.
func (s *InsightService) PrintMerge(m *MergeSummary) {
	w := s.out
	fmt.Fprintf(w, "\n===== MERGE SUMMARY =====\n")
	fmt.Fprintf(w, "Run: %s (%s)\n", m.RunID, m.FinishedAt.Sub(m.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(w, "Batches: %d (skipped %d)\n", m.Batches, len(m.SkippedBatches))
	fmt.Fprintf(w, "Original listings: %d\n", m.OriginalTotal)
	fmt.Fprintf(w, "Listings after merge: %d\n\n", m.FinalTotal)
	fmt.Fprintf(w, "Duplicates removed: %d\n", m.DuplicatesRemoved)
	fmt.Fprintf(w, "Filtered out by flat type: %d\n", m.FilteredOut)
	fmt.Fprintf(w, "Price set to '%s': %d\n", models.PriceOnRequestLabel, m.PriceOnRequest)
	fmt.Fprintf(w, "Price set to '%s': %d\n", models.PriceAnomalousLabel, m.PriceWeird)

	switch {
	case m.IntegrityOK:
		fmt.Fprintf(w, "Integrity check: OK\n")
	default:
		fmt.Fprintf(w, "Integrity check: Mismatch (orig=%d, merged=%d, dupes=%d, filtered=%d)\n",
			m.OriginalTotal, m.FinalTotal, m.DuplicatesRemoved, m.FilteredOut)
	}
	if m.WriteErr != nil {
		fmt.Fprintf(w, "Write failed: %v (previous dataset kept)\n", m.WriteErr)
	}
	fmt.Fprintf(w, "Deleted %d source JSON file(s).\n", m.DeletedBatches)
	fmt.Fprintf(w, "=========================\n\n")
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
