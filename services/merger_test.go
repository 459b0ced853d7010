package services

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"flat-aggregator/models"
	"flat-aggregator/storage"
)

const mergedName = "MERGED_LISTINGS.json"

func writeBatch(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func newTestMerger(t *testing.T, dir string, opts MergerOptions) (*Merger, *storage.CanonicalStore) {
	t.Helper()
	reader, err := storage.NewBatchReader(dir, mergedName)
	if err != nil {
		t.Fatalf("NewBatchReader: %v", err)
	}
	store := storage.NewCanonicalStore(filepath.Join(dir, mergedName))
	return NewMerger(reader, store, newTestLogger(), opts), store
}

const batchA = `[
  {"image":"a1.jpg","locality":"Brno - Řečkovice","type_of_flat":"2+kk","size":"55","price":4500000,"link":"https://a/1","uid":1,"source":"a"},
  {"image":"a2.jpg","locality":"Brno - Medlánky","type_of_flat":"3+1","size":"80","price":0,"link":"https://a/2","uid":2,"source":"a"}
]`

const batchB = `[
  {"image":"b1.jpg","locality":"Brno - Řečkovice","type_of_flat":"2+kk","size":"55","price":4500000,"link":"https://b/1","uid":1,"source":"b"},
  {"image":"b2.jpg","locality":"Brno - Líšeň","type_of_flat":"4+kk","size":"95","price":8900000,"link":"https://b/2","uid":2,"source":"b"},
  {"image":"N/A","locality":"Brno - Bystrc","type_of_flat":"2+1","size":"61","price":1200000,"link":"https://b/3","uid":3,"source":"b"}
]`

func TestMergeEndToEnd(t *testing.T) {
	dir := t.TempDir()
	pa := writeBatch(t, dir, "a.json", batchA)
	pb := writeBatch(t, dir, "b.json", batchB)

	m, store := newTestMerger(t, dir, MergerOptions{DeleteConsumed: true})
	summary, err := m.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.OriginalTotal != 5 {
		t.Errorf("OriginalTotal = %d, want 5", summary.OriginalTotal)
	}
	if summary.DuplicatesRemoved != 1 {
		t.Errorf("DuplicatesRemoved = %d, want 1", summary.DuplicatesRemoved)
	}
	if summary.FilteredOut != 1 {
		t.Errorf("FilteredOut = %d, want 1", summary.FilteredOut)
	}
	if summary.FinalTotal != 3 {
		t.Errorf("FinalTotal = %d, want 3", summary.FinalTotal)
	}
	if summary.PriceOnRequest != 1 || summary.PriceWeird != 1 {
		t.Errorf("sentinels = %d,%d; want 1,1", summary.PriceOnRequest, summary.PriceWeird)
	}
	if !summary.IntegrityOK || !summary.Written {
		t.Errorf("IntegrityOK=%v Written=%v", summary.IntegrityOK, summary.Written)
	}
	if summary.DeletedBatches != 2 {
		t.Errorf("DeletedBatches = %d, want 2", summary.DeletedBatches)
	}
	if summary.RunID == "" {
		t.Error("RunID is empty")
	}
	for _, p := range []string{pa, pb} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s was not deleted", p)
		}
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d listings, want 3", len(got))
	}
	wantLinks := []string{"https://a/1", "https://a/2", "https://b/3"}
	for i, l := range got {
		if l.UID != i+1 {
			t.Errorf("listing %d uid = %d", i, l.UID)
		}
		if l.Link != wantLinks[i] {
			t.Errorf("listing %d link = %q, want %q", i, l.Link, wantLinks[i])
		}
	}
	if got[1].Price.Kind != models.PriceOnRequest {
		t.Errorf("price 0 should become on-request, got %v", got[1].Price.Kind)
	}
	if got[2].Price.Kind != models.PriceAnomalous {
		t.Errorf("price 1.2M should become anomalous, got %v", got[2].Price.Kind)
	}
}

func TestMergeSkipsMalformedBatch(t *testing.T) {
	dir := t.TempDir()
	writeBatch(t, dir, "a.json", batchA)
	writeBatch(t, dir, "broken.json", `{"not":"a list"}`)
	writeBatch(t, dir, "garbage.json", `[{"price":`)

	m, store := newTestMerger(t, dir, MergerOptions{})
	summary, err := m.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.SkippedBatches) != 2 {
		t.Errorf("SkippedBatches = %v, want 2", summary.SkippedBatches)
	}
	if summary.OriginalTotal != 2 || summary.FinalTotal != 2 {
		t.Errorf("totals = %d/%d, want 2/2", summary.OriginalTotal, summary.FinalTotal)
	}
	if summary.DeletedBatches != 0 {
		t.Errorf("nothing should be deleted without DeleteConsumed")
	}
	got, _ := store.Load()
	if len(got) != 2 {
		t.Errorf("stored %d listings, want 2", len(got))
	}
}

func TestMergeKeepsRecordsWithNonScalarFields(t *testing.T) {
	dir := t.TempDir()
	writeBatch(t, dir, "a.json", `[
  {"locality":"Brno - Řečkovice","type_of_flat":"2+kk","size":"55","price":5000000,"link":"https://a/1"},
  {"locality":"Brno - Bystrc","type_of_flat":"3+kk","size":{"m2":70},"price":{"amount":5},"link":"https://a/2"}
]`)

	m, store := newTestMerger(t, dir, MergerOptions{})
	summary, err := m.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.SkippedBatches) != 0 {
		t.Fatalf("batch should not be skipped: %v", summary.SkippedBatches)
	}
	if summary.OriginalTotal != 2 || summary.FinalTotal != 2 {
		t.Errorf("totals = %d/%d, want 2/2", summary.OriginalTotal, summary.FinalTotal)
	}

	got, err := store.Load()
	if err != nil || len(got) != 2 {
		t.Fatalf("stored %d listings (err %v), want 2", len(got), err)
	}
	if n, ok := got[0].Price.Number(); !ok || n != 5_000_000 {
		t.Errorf("valid price = %d,%v", n, ok)
	}
	if got[1].Price.Kind != models.PriceUnparsed || got[1].Price.Text() != `{"amount":5}` {
		t.Errorf("object price should stay unparsed, got %v %q", got[1].Price.Kind, got[1].Price.Text())
	}
	if _, ok := got[1].Price.Int(); ok {
		t.Error("object price should have no numeric value")
	}
}

func TestMergeNoBatches(t *testing.T) {
	dir := t.TempDir()
	m, store := newTestMerger(t, dir, MergerOptions{DeleteConsumed: true})
	summary, err := m.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Batches != 0 || summary.Written {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if _, err := os.Stat(store.Path()); !os.IsNotExist(err) {
		t.Error("dataset should not be written when there is nothing to merge")
	}
}

func TestMergeWriteFailureKeepsBatches(t *testing.T) {
	dir := t.TempDir()
	pa := writeBatch(t, dir, "a.json", batchA)

	reader, _ := storage.NewBatchReader(dir, mergedName)
	// The dataset path is an existing directory, so the final rename fails.
	blocked := filepath.Join(dir, "blocked")
	if err := os.MkdirAll(filepath.Join(blocked, "child"), 0755); err != nil {
		t.Fatal(err)
	}
	store := storage.NewCanonicalStore(blocked)
	m := NewMerger(reader, store, newTestLogger(), MergerOptions{DeleteConsumed: true})

	summary, err := m.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Written || summary.WriteErr == nil {
		t.Errorf("expected write failure, got Written=%v err=%v", summary.Written, summary.WriteErr)
	}
	if _, err := os.Stat(pa); err != nil {
		t.Errorf("batch should be kept after a failed write: %v", err)
	}
}

func TestMergeExports(t *testing.T) {
	dir := t.TempDir()
	writeBatch(t, dir, "a.json", batchA)

	var exported int
	exports := []Export{
		{Name: "memory", Write: func(l []*models.Listing) error { exported = len(l); return nil }},
		{Name: "broken", Write: func([]*models.Listing) error { return errors.New("boom") }},
	}
	m, _ := newTestMerger(t, dir, MergerOptions{Exports: exports})
	summary, _ := m.Run()
	if exported != 2 {
		t.Errorf("exported %d listings, want 2", exported)
	}
	if len(summary.FailedExports) != 1 || summary.FailedExports[0] != "broken" {
		t.Errorf("FailedExports = %v", summary.FailedExports)
	}
}

func TestProcessIntegrity(t *testing.T) {
	m, _ := newTestMerger(t, t.TempDir(), MergerOptions{})
	in := []*models.Listing{
		listing("a", "2+kk", "1", models.NumericPrice(5_000_000)),
		listing("a", "2+kk", "1", models.NumericPrice(5_000_000)),
		listing("b", "5+1", "1", models.NumericPrice(5_000_000)),
		listing("c", "N/A", "", models.Price{}),
	}
	summary := &MergeSummary{}
	out := m.Process(in, summary)
	if !summary.IntegrityOK {
		t.Errorf("integrity should hold: %+v", summary)
	}
	if summary.OriginalTotal != summary.FinalTotal+summary.DuplicatesRemoved+summary.FilteredOut {
		t.Errorf("counts do not reconcile: %+v", summary)
	}
	if len(out) != 2 || out[0].UID != 1 || out[1].UID != 2 {
		t.Errorf("unexpected output: %+v", out)
	}
}
