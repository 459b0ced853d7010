package services

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"flat-aggregator/config"
	"flat-aggregator/models"
	"flat-aggregator/utils"
)

var sizeRegexp = regexp.MustCompile(`\d+`)

// Section is one named view over a snapshot: its listings sorted by price
// and the buckets present among them.
type Section struct {
	Key      string
	Title    string
	Kind     string
	Listings []models.ListingView
	Buckets  []string
}

// Snapshot is an immutable index over one version of the canonical dataset.
// It is built in full and never modified after publication.
type Snapshot struct {
	Listings []models.ListingView
	Sections []*Section
	BuiltAt  time.Time

	byKey map[string]*Section
}

// Total is the number of listings in the whole dataset.
func (s *Snapshot) Total() int { return len(s.Listings) }

// Section looks a section up by key.
func (s *Snapshot) Section(key string) (*Section, bool) {
	sec, ok := s.byKey[key]
	return sec, ok
}

type sectionMatcher func(v *models.ListingView) bool

// ViewBuilder turns a dataset into a Snapshot for a fixed set of sections.
type ViewBuilder struct {
	defs     []config.SectionDef
	matchers []sectionMatcher
}

// NewViewBuilder prepares matchers for defs. The definitions are expected to
// have passed config.ValidateSections.
func NewViewBuilder(defs []config.SectionDef) *ViewBuilder {
	b := &ViewBuilder{defs: defs, matchers: make([]sectionMatcher, len(defs))}
	for i, d := range defs {
		b.matchers[i] = matcherFor(d)
	}
	return b
}

func matcherFor(d config.SectionDef) sectionMatcher {
	if d.Kind == config.SectionFlatType {
		want := d.FlatType
		return func(v *models.ListingView) bool { return v.TypeOfFlat == want }
	}

	variants := make([]string, 0, len(d.Localities))
	for _, loc := range d.Localities {
		if d.FoldDiacritics {
			variants = append(variants, utils.FoldDiacritics(loc))
		} else {
			variants = append(variants, strings.ToLower(loc))
		}
	}
	fold := d.FoldDiacritics
	return func(v *models.ListingView) bool {
		haystack := v.LocalityLower
		if fold {
			haystack = utils.FoldDiacritics(v.Locality)
		}
		for _, variant := range variants {
			if strings.Contains(haystack, variant) {
				return true
			}
		}
		return false
	}
}

// Build derives view fields for every listing and computes every section.
func (b *ViewBuilder) Build(listings []*models.Listing) *Snapshot {
	snap := &Snapshot{
		Listings: make([]models.ListingView, 0, len(listings)),
		Sections: make([]*Section, 0, len(b.defs)),
		BuiltAt:  time.Now(),
		byKey:    make(map[string]*Section, len(b.defs)),
	}
	for _, l := range listings {
		if l == nil {
			continue
		}
		snap.Listings = append(snap.Listings, DeriveView(l))
	}

	for i, d := range b.defs {
		sec := &Section{Key: d.Key, Title: d.Title, Kind: d.Kind}
		for j := range snap.Listings {
			if b.matchers[i](&snap.Listings[j]) {
				sec.Listings = append(sec.Listings, snap.Listings[j])
			}
		}
		SortByPrice(sec.Listings)
		sec.Buckets = bucketsOf(sec.Listings)

		snap.Sections = append(snap.Sections, sec)
		snap.byKey[sec.Key] = sec
	}
	return snap
}

// DeriveView computes size_int, price_int, bucket and the lowercased
// locality for a listing.
func DeriveView(l *models.Listing) models.ListingView {
	v := models.ListingView{
		Listing:       l,
		SizeInt:       parseSize(l.Size),
		LocalityLower: strings.ToLower(l.Locality),
	}
	if n, ok := l.Price.Int(); ok {
		v.PriceInt = &n
	}
	v.Bucket = Bucket(v.PriceInt)
	return v
}

func parseSize(s string) int {
	m := sizeRegexp.FindString(s)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}

// SortByPrice orders views by price descending with unpriced listings last.
// Ties keep their dataset order.
func SortByPrice(views []models.ListingView) {
	sort.SliceStable(views, func(i, j int) bool {
		fi, ki := sortKey(views[i])
		fj, kj := sortKey(views[j])
		if fi != fj {
			return fi < fj
		}
		return ki < kj
	})
}

func sortKey(v models.ListingView) (invalid int, key int64) {
	if v.PriceInt == nil {
		return 1, 0
	}
	return 0, -*v.PriceInt
}

func bucketsOf(views []models.ListingView) []string {
	set := make(map[string]struct{})
	for _, v := range views {
		set[v.Bucket] = struct{}{}
	}
	return SortBuckets(set)
}

// SortBuckets orders bucket labels by their million value, highest first,
// with "no-price" last.
func SortBuckets(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	noPrice := false
	for b := range set {
		if b == models.NoPriceBucket {
			noPrice = true
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		vi, _ := bucketValue(out[i])
		vj, _ := bucketValue(out[j])
		if vi != vj {
			return vi > vj
		}
		return out[i] < out[j]
	})
	if noPrice {
		out = append(out, models.NoPriceBucket)
	}
	return out
}
