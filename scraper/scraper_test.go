package scraper

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"flat-aggregator/models"
	"flat-aggregator/storage"
	"flat-aggregator/utils"
)

type fakeSource struct {
	name     string
	listings []*models.Listing
	failures int
	calls    int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Scrape(context.Context) ([]*models.Listing, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("temporary failure")
	}
	return f.listings, nil
}

func newTestRunner(dir string, sources ...Source) (*Runner, *bytes.Buffer) {
	logger := utils.NewDiscardLogger()
	retry := &utils.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, Logger: logger}
	r := NewRunner(dir, sources, retry, logger)
	var buf bytes.Buffer
	r.SetOutput(&buf)
	return r, &buf
}

func TestRunnerWritesBatches(t *testing.T) {
	dir := t.TempDir()
	a := &fakeSource{name: "alpha", listings: []*models.Listing{
		{Locality: "Brno", TypeOfFlat: "2+kk", UID: 99},
		{Locality: "Brno", TypeOfFlat: "3+1"},
	}}
	b := &fakeSource{name: "beta", failures: 1, listings: []*models.Listing{{Locality: "Bystrc"}}}
	c := &fakeSource{name: "gamma", failures: 5}

	r, out := newTestRunner(dir, a, b, c)
	results, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].Rows != 2 || results[1].Rows != 1 || results[2].Err == nil {
		t.Errorf("unexpected results: %+v", results)
	}
	if b.calls != 2 {
		t.Errorf("beta should have been retried once, calls = %d", b.calls)
	}
	if results[2].Path != "" {
		t.Errorf("failed source should not write a batch")
	}

	reader, _ := storage.NewBatchReader(dir, "")
	batch, err := reader.Read(results[0].Path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	for i, l := range batch.Listings {
		if l.UID != i+1 || l.Source != "alpha" {
			t.Errorf("listing %d: uid=%d source=%q", i, l.UID, l.Source)
		}
	}

	r.PrintSummary(results)
	summary := out.String()
	for _, want := range []string{"SCRAPE SUMMARY", "alpha", "(failed)", "TOTAL          :    3 ads"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
}

func TestRunnerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r, _ := newTestRunner(t.TempDir(), &fakeSource{name: "alpha"})
	if _, err := r.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
