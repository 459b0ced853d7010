package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"flat-aggregator/config"
	"flat-aggregator/models"
	"flat-aggregator/services"
	"flat-aggregator/utils"
)

type fakeReader struct {
	listings []*models.Listing
}

func (f *fakeReader) Load() ([]*models.Listing, error) { return f.listings, nil }

type fakeRefresher struct {
	err   error
	calls int
	after func()
}

func (f *fakeRefresher) Run(ctx context.Context) (*services.MergeSummary, error) {
	f.calls++
	if f.after != nil {
		f.after()
	}
	return &services.MergeSummary{}, f.err
}

func testListings() []*models.Listing {
	return []*models.Listing{
		{UID: 1, Source: "alpha", Locality: "Brno - Řečkovice", TypeOfFlat: "2+kk", Size: "55",
			Price: models.NumericPrice(4_500_000), Link: "https://a.example/1?x=1&y=2", Image: models.NotAvailable},
		{UID: 2, Source: "beta", Locality: "Brno - Bystrc", TypeOfFlat: "2+kk", Size: "48",
			Price: models.OnRequestPrice(), Link: "https://b.example/2", Image: "https://b.example/2.jpg"},
		{UID: 3, Source: "beta", Locality: "Brno - Medlánky", TypeOfFlat: "3+1", Size: "80",
			Price: models.NumericPrice(6_950_000), Link: "https://b.example/3", Image: "https://b.example/3.jpg"},
	}
}

func newTestServer(t *testing.T, refresher Refresher, staticDir string) (*Server, *services.Catalog, *fakeReader) {
	t.Helper()
	logger := utils.NewDiscardLogger()
	reader := &fakeReader{listings: testListings()}
	catalog := services.NewCatalog(reader, services.NewViewBuilder(config.DefaultSections()), logger)
	if _, err := catalog.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	srv := NewServer(Options{Addr: ":0", StaticDir: staticDir, CORSOrigins: []string{"*"}}, catalog, refresher, logger)
	return srv, catalog, reader
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIndexRendersSections(t *testing.T) {
	srv, _, _ := newTestServer(t, nil, "")
	rec := do(t, srv.Handler(), http.MethodGet, "/")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"Řečkovice &amp; Medlánky",
		`data-bucket="4mil"`,
		"4,5 mil",
		"7,0 mil",
		models.PriceOnRequestLabel,
		`<span id="total">3</span>`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestListSections(t *testing.T) {
	srv, _, _ := newTestServer(t, nil, "")
	rec := do(t, srv.Handler(), http.MethodGet, "/api/sections")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var got struct {
		Total    int              `json:"total"`
		Sections []sectionSummary `json:"sections"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Total != 3 || len(got.Sections) != len(config.DefaultSections()) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}

	counts := map[string]int{}
	for _, s := range got.Sections {
		counts[s.Key] = s.Count
		if s.Buckets == nil {
			t.Errorf("section %s: buckets should be an array", s.Key)
		}
	}
	if counts["flats_2kk"] != 2 || counts["flats_3plus1"] != 1 || counts["flats_3kk"] != 0 {
		t.Errorf("counts = %v", counts)
	}
}

func TestGetSection(t *testing.T) {
	srv, _, _ := newTestServer(t, nil, "")

	rec := do(t, srv.Handler(), http.MethodGet, "/api/sections/flats_2kk")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "x=1&y=2") {
		t.Errorf("links should not be HTML-escaped: %s", rec.Body.String())
	}
	var got struct {
		Key      string   `json:"key"`
		Buckets  []string `json:"buckets"`
		Listings []struct {
			UID      int    `json:"uid"`
			PriceInt *int64 `json:"price_int"`
			Bucket   string `json:"bucket"`
		} `json:"listings"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Listings) != 2 || got.Listings[0].UID != 1 || got.Listings[1].PriceInt != nil {
		t.Errorf("listings not sorted priced-first: %+v", got.Listings)
	}
	if strings.Join(got.Buckets, ",") != "4mil,no-price" {
		t.Errorf("buckets = %v", got.Buckets)
	}

	empty := do(t, srv.Handler(), http.MethodGet, "/api/sections/flats_3kk")
	if !strings.Contains(empty.Body.String(), `"listings":[]`) {
		t.Errorf("empty section should encode []: %s", empty.Body.String())
	}

	missing := do(t, srv.Handler(), http.MethodGet, "/api/sections/nope")
	if missing.Code != http.StatusNotFound {
		t.Errorf("unknown section status = %d", missing.Code)
	}
}

func TestRunScrape(t *testing.T) {
	tests := []struct {
		name       string
		refresher  Refresher
		wantStatus int
		wantBody   string
	}{
		{"done", &fakeRefresher{}, http.StatusOK, `{"status":"done"}`},
		{"failed", &fakeRefresher{err: errors.New("boom")}, http.StatusInternalServerError, `"message":"boom"`},
		{"busy", &fakeRefresher{err: services.ErrRefreshInProgress}, http.StatusConflict, `"status":"error"`},
		{"not configured", nil, http.StatusServiceUnavailable, `"status":"error"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, _ := newTestServer(t, tt.refresher, "")
			rec := do(t, srv.Handler(), http.MethodPost, "/run-scrape")
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %s, want %s", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestRunScrapeServesNewSnapshot(t *testing.T) {
	ref := &fakeRefresher{}
	srv, catalog, reader := newTestServer(t, ref, "")
	ref.after = func() {
		reader.listings = testListings()[:1]
		if _, err := catalog.Reload(); err != nil {
			t.Errorf("Reload: %v", err)
		}
	}

	if rec := do(t, srv.Handler(), http.MethodPost, "/run-scrape"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	rec := do(t, srv.Handler(), http.MethodGet, "/healthz")
	if !strings.Contains(rec.Body.String(), `"listings":1`) {
		t.Errorf("healthz after refresh = %s", rec.Body.String())
	}
}

func TestTraceIDHeader(t *testing.T) {
	srv, _, _ := newTestServer(t, nil, "")

	const id = "3f1c2d4e-5a6b-4c7d-8e9f-0a1b2c3d4e5f"
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Trace-ID", id)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Trace-ID"); got != id {
		t.Errorf("trace id = %q, want %q", got, id)
	}

	rec = do(t, srv.Handler(), http.MethodGet, "/healthz")
	if got := rec.Header().Get("X-Trace-ID"); len(got) != 36 {
		t.Errorf("expected a generated uuid, got %q", got)
	}
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "banner.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	srv, _, _ := newTestServer(t, nil, dir)

	rec := do(t, srv.Handler(), http.MethodGet, "/static/banner.txt")
	if rec.Code != http.StatusOK || rec.Body.String() != "hello" {
		t.Errorf("static file: %d %q", rec.Code, rec.Body.String())
	}
}

func TestPriceLabel(t *testing.T) {
	n := int64(6_650_000)
	tests := []struct {
		view models.ListingView
		want string
	}{
		{models.ListingView{Listing: &models.Listing{}, PriceInt: &n}, "6,6 mil"},
		{models.ListingView{Listing: &models.Listing{Price: models.AnomalousPrice()}}, models.PriceAnomalousLabel},
		{models.ListingView{}, ""},
	}
	for _, tt := range tests {
		if got := priceLabel(tt.view); got != tt.want {
			t.Errorf("priceLabel = %q, want %q", got, tt.want)
		}
	}
}

func TestServerErrorLogUsesLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := utils.NewLoggerWithOptions(utils.LoggerOptions{Writer: &buf, NoColor: true})
	catalog := services.NewCatalog(&fakeReader{}, services.NewViewBuilder(config.DefaultSections()), logger)
	srv := NewServer(Options{Addr: ":0"}, catalog, nil, logger)

	srv.httpServer.ErrorLog.Print("http: TLS handshake error from 10.0.0.1")
	if !strings.Contains(buf.String(), "TLS handshake error") {
		t.Errorf("server errors should reach the application log, got %q", buf.String())
	}
}
