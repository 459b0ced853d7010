// Package html implements a listing source driven by CSS selectors, for
// sites that render one card per listing.
package html

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"flat-aggregator/config"
	"flat-aggregator/models"
	"flat-aggregator/scraper"
	"flat-aggregator/utils"
)

var (
	flatTypeRegexp = regexp.MustCompile(`\d\+\w{1,2}`)
	numberRegexp   = regexp.MustCompile(`\d+`)
	nonDigitRegexp = regexp.MustCompile(`\D`)
)

// Source scrapes one site described by a config.SourceDef.
type Source struct {
	def     config.SourceDef
	base    *url.URL
	fetcher Fetcher
	pool    *utils.WorkerPool
	logger  *utils.Logger
}

// New creates a Source. Pages are fetched on pool.
func New(def config.SourceDef, fetcher Fetcher, pool *utils.WorkerPool, logger *utils.Logger) (*Source, error) {
	base, err := url.Parse(def.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("html: %s base_url: %w", def.Name, err)
	}
	return &Source{def: def, base: base, fetcher: fetcher, pool: pool, logger: logger}, nil
}

func (s *Source) Name() string { return s.def.Name }

// Scrape fetches every configured page and extracts its cards. Results keep
// page order; a link seen on an earlier page is not repeated. The scrape
// fails only if no page could be fetched.
func (s *Source) Scrape(ctx context.Context) ([]*models.Listing, error) {
	pages := s.PageURLs()
	s.logger.Info("[html] %s: scraping %d page(s)", s.def.Name, len(pages))

	perPage, errs := utils.MapOrdered(ctx, s.pool, len(pages), func(ctx context.Context, i int) ([]*models.Listing, error) {
		body, err := s.fetcher.Fetch(ctx, pages[i])
		if err != nil {
			return nil, err
		}
		return s.Parse(body)
	})

	seen := utils.NewStringSet()
	var listings []*models.Listing
	failed := 0
	var firstErr error
	for i, page := range perPage {
		if errs[i] != nil {
			s.logger.Warn("[html] %s: page %d failed: %v", s.def.Name, i+1, errs[i])
			failed++
			if firstErr == nil {
				firstErr = errs[i]
			}
			continue
		}
		if len(page) == 0 {
			s.logger.Warn("[html] %s: no listings found on page %d, the site structure might have changed", s.def.Name, i+1)
		}
		for _, l := range page {
			if !seen.Add(l.Link) {
				s.logger.Debug("[html] %s: skipping duplicate %s", s.def.Name, l.Link)
				continue
			}
			listings = append(listings, l)
		}
	}

	if failed == len(pages) {
		return nil, fmt.Errorf("html: %s: every page failed: %w", s.def.Name, firstErr)
	}
	s.logger.Info("[html] %s: collected %d listings", s.def.Name, len(listings))
	return listings, nil
}

// PageURLs lists the pages to fetch. Page 1 is base_url as configured;
// later pages set page_param in its query.
func (s *Source) PageURLs() []string {
	urls := []string{s.base.String()}
	if s.def.PageParam == "" {
		return urls
	}
	for p := 2; p <= s.def.Pages; p++ {
		u := *s.base
		q := u.Query()
		q.Set(s.def.PageParam, strconv.Itoa(p))
		u.RawQuery = q.Encode()
		urls = append(urls, u.String())
	}
	return urls
}

// Parse extracts listings from a page. Cards without a link are skipped.
func (s *Source) Parse(body string) ([]*models.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	sel := s.def.Selectors
	var listings []*models.Listing
	doc.Find(sel.Card).Each(func(_ int, card *goquery.Selection) {
		href, ok := attr(card, sel.Link, "href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}

		image := models.NotAvailable
		if src, ok := attr(card, sel.Image, sel.ImageAttr); ok && strings.TrimSpace(src) != "" {
			image = s.resolve(src)
		}

		listings = append(listings, &models.Listing{
			Image:      image,
			Locality:   orNA(text(card, sel.Locality)),
			TypeOfFlat: ParseFlatType(text(card, sel.Type)),
			Size:       ParseSize(text(card, sel.Size)),
			Price:      models.NumericPrice(ParsePrice(text(card, sel.Price))),
			Link:       s.resolve(href),
		})
	})
	return listings, nil
}

func (s *Source) resolve(ref string) string {
	u, err := s.base.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return u.String()
}

// attr reads an attribute from the first element matching selector, or from
// the card itself when selector is empty.
func attr(card *goquery.Selection, selector, name string) (string, bool) {
	target := card
	if selector != "" {
		target = card.Find(selector).First()
	}
	return target.Attr(name)
}

func text(card *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return utils.NormaliseSpace(card.Find(selector).First().Text())
}

func orNA(s string) string {
	if s == "" {
		return models.NotAvailable
	}
	return s
}

// ParseFlatType pulls a layout code such as "2+kk" out of free text. Text
// without one is kept trimmed; empty text becomes "N/A".
func ParseFlatType(s string) string {
	if m := flatTypeRegexp.FindString(s); m != "" {
		return m
	}
	return orNA(strings.TrimSpace(s))
}

// ParseSize returns the first integer in s, or "N/A".
func ParseSize(s string) string {
	if m := numberRegexp.FindString(s); m != "" {
		return m
	}
	return models.NotAvailable
}

// ParsePrice joins every digit in s into one number; no digits means 0.
func ParsePrice(s string) int64 {
	digits := nonDigitRegexp.ReplaceAllString(s, "")
	if digits == "" {
		return 0
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// NewSources builds a Source for every definition. When any definition
// needs rendering a browser is started; the returned close function shuts
// it down.
func NewSources(defs []config.SourceDef, cfg *config.Config, logger *utils.Logger) ([]scraper.Source, func(), error) {
	pool := utils.NewWorkerPool(cfg.MaxConcurrency, cfg.RateLimitMs)
	plain := NewHTTPFetcher(httpTimeout)

	var browser *BrowserFetcher
	closeFn := func() {
		if browser != nil {
			browser.Close()
		}
	}

	sources := make([]scraper.Source, 0, len(defs))
	for _, def := range defs {
		var f Fetcher = plain
		if def.Render {
			if browser == nil {
				browser = NewBrowserFetcher(cfg.ChromeBin, logger)
			}
			f = browser
		}
		src, err := New(def, f, pool, logger)
		if err != nil {
			closeFn()
			return nil, func() {}, err
		}
		sources = append(sources, src)
	}
	if len(sources) == 0 {
		return nil, closeFn, errors.New("html: no sources configured")
	}
	return sources, closeFn, nil
}
