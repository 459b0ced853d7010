package web

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"flat-aggregator/models"
	"flat-aggregator/services"
	"flat-aggregator/utils"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.New("index.html").Funcs(template.FuncMap{
	"priceLabel": priceLabel,
}).ParseFS(templateFS, "templates/index.html"))

// Handlers serves requests against the catalog's current snapshot.
type Handlers struct {
	catalog   *services.Catalog
	refresher Refresher
	logger    *utils.Logger
}

type sectionSummary struct {
	Key     string   `json:"key"`
	Title   string   `json:"title"`
	Kind    string   `json:"kind"`
	Count   int      `json:"count"`
	Buckets []string `json:"buckets"`
}

type sectionDetail struct {
	sectionSummary
	Listings []models.ListingView `json:"listings"`
}

type indexPage struct {
	Title    string
	Total    int
	BuiltAt  time.Time
	Sections []*services.Section
}

// Index renders the listing page.
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	snap := h.catalog.Current()
	page := indexPage{
		Title:    "Flat Aggregator",
		Total:    snap.Total(),
		BuiltAt:  snap.BuiltAt,
		Sections: snap.Sections,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, page); err != nil {
		loggerFrom(r.Context(), h.logger).Error("[web] Render index: %v", err)
	}
}

// ListSections returns every section's size and buckets.
func (h *Handlers) ListSections(w http.ResponseWriter, r *http.Request) {
	snap := h.catalog.Current()
	out := make([]sectionSummary, 0, len(snap.Sections))
	for _, sec := range snap.Sections {
		out = append(out, summarize(sec))
	}
	RespondWithJSON(w, http.StatusOK, map[string]any{
		"total":    snap.Total(),
		"sections": out,
	})
}

// GetSection returns one section's sorted listings.
func (h *Handlers) GetSection(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	sec, ok := h.catalog.Current().Section(key)
	if !ok {
		WriteJSONError(w, http.StatusNotFound, "unknown section: "+key)
		return
	}
	listings := sec.Listings
	if listings == nil {
		listings = []models.ListingView{}
	}
	RespondWithJSON(w, http.StatusOK, sectionDetail{sectionSummary: summarize(sec), Listings: listings})
}

// RunScrape runs the whole refresh pipeline and answers once it is done.
func (h *Handlers) RunScrape(w http.ResponseWriter, r *http.Request) {
	logger := loggerFrom(r.Context(), h.logger)
	if h.refresher == nil {
		RespondWithJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "error",
			"message": "refresh is not configured",
		})
		return
	}

	// A client that gives up waiting must not abort a half-written merge.
	ctx := context.WithoutCancel(r.Context())
	if _, err := h.refresher.Run(ctx); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrRefreshInProgress) {
			status = http.StatusConflict
		}
		logger.Error("[web] Refresh failed: %v", err)
		RespondWithJSON(w, status, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "done"})
}

// Health reports liveness and the size of the served snapshot.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	snap := h.catalog.Current()
	RespondWithJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"listings": snap.Total(),
		"built_at": snap.BuiltAt,
	})
}

func summarize(sec *services.Section) sectionSummary {
	buckets := sec.Buckets
	if buckets == nil {
		buckets = []string{}
	}
	return sectionSummary{
		Key:     sec.Key,
		Title:   sec.Title,
		Kind:    sec.Kind,
		Count:   len(sec.Listings),
		Buckets: buckets,
	}
}

// priceLabel is the price as shown on a card: "X,Y mil" for usable prices,
// otherwise the stored text.
func priceLabel(v models.ListingView) string {
	if v.HasPrice() {
		return services.ShortPrice(*v.PriceInt)
	}
	if v.Listing == nil {
		return ""
	}
	return v.Price.Text()
}

// WriteJSONError sends {"error": message} with the given status.
func WriteJSONError(w http.ResponseWriter, statusCode int, message string) {
	RespondWithJSON(w, statusCode, map[string]string{"error": message})
}

// RespondWithJSON encodes payload as the response body.
func RespondWithJSON(w http.ResponseWriter, code int, payload any) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		http.Error(w, "Failed to marshal JSON response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	w.Write(buf.Bytes())
}
