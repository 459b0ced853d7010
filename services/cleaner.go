package services

import (
	"strings"

	"flat-aggregator/models"
	"flat-aggregator/utils"
)

// WeirdPriceThreshold is the lowest numeric price accepted as a plausible
// sale price. Anything in (0, WeirdPriceThreshold) is labelled anomalous.
const WeirdPriceThreshold = 3_000_000

// AllowedFlatTypes is the flat-type allow-list applied after deduplication.
var AllowedFlatTypes = []string{"2+kk", "2+1", "3+kk", "3+1", models.NotAvailable}

// identityKey is what two listings must share to count as duplicates.
type identityKey struct {
	locality string
	flatType string
	size     string
	price    string
}

func keyOf(l *models.Listing) identityKey {
	return identityKey{
		locality: strings.ToLower(strings.TrimSpace(l.Locality)),
		flatType: strings.ToLower(strings.TrimSpace(l.TypeOfFlat)),
		size:     strings.TrimSpace(l.Size),
		price:    strings.TrimSpace(l.Price.Text()),
	}
}

// Cleaner runs the in-memory stages of a merge: deduplication, type
// filtering, price normalisation and uid assignment.
type Cleaner struct {
	logger  *utils.Logger
	allowed map[string]struct{}
}

// NewCleaner creates a Cleaner with the given logger.
func NewCleaner(logger *utils.Logger) *Cleaner {
	allowed := make(map[string]struct{}, len(AllowedFlatTypes))
	for _, t := range AllowedFlatTypes {
		allowed[t] = struct{}{}
	}
	return &Cleaner{logger: logger, allowed: allowed}
}

// Deduplicate keeps the first listing seen for every identity key and drops
// the rest. Order is preserved.
func (c *Cleaner) Deduplicate(listings []*models.Listing) ([]*models.Listing, int) {
	seen := make(map[identityKey]struct{}, len(listings))
	result := make([]*models.Listing, 0, len(listings))

	for _, l := range listings {
		k := keyOf(l)
		if _, dup := seen[k]; dup {
			c.logger.Debug("[cleaner] Duplicate skipped: %q %q %q %q", k.locality, k.flatType, k.size, k.price)
			continue
		}
		seen[k] = struct{}{}
		result = append(result, l)
	}

	dropped := len(listings) - len(result)
	c.logger.Info("[cleaner] Removed %d duplicate listings. Remaining: %d", dropped, len(result))
	return result, dropped
}

// FilterByType keeps listings whose type_of_flat is exactly one of
// AllowedFlatTypes.
func (c *Cleaner) FilterByType(listings []*models.Listing) ([]*models.Listing, int) {
	result := make([]*models.Listing, 0, len(listings))
	for _, l := range listings {
		if _, ok := c.allowed[l.TypeOfFlat]; ok {
			result = append(result, l)
			continue
		}
		c.logger.Debug("[cleaner] Filtered out type %q: %s", l.TypeOfFlat, l.Link)
	}

	dropped := len(listings) - len(result)
	c.logger.Info("[cleaner] Filtered out %d listings by flat type. Remaining: %d", dropped, len(result))
	return result, dropped
}

// NormalizePrices replaces implausible numeric prices with sentinel labels,
// in place. Prices that are not numbers are left alone, as are prices at or
// above WeirdPriceThreshold. Negative amounts fall through unchanged.
func (c *Cleaner) NormalizePrices(listings []*models.Listing) (onRequest, weird int) {
	for _, l := range listings {
		n, ok := l.Price.Number()
		if !ok {
			continue
		}
		switch {
		case n == 0:
			l.Price = models.OnRequestPrice()
			onRequest++
		case n > 0 && n < WeirdPriceThreshold:
			l.Price = models.AnomalousPrice()
			weird++
		}
	}
	return onRequest, weird
}

// AssignUIDs numbers listings 1..N in their current order.
func AssignUIDs(listings []*models.Listing) {
	for i, l := range listings {
		l.UID = i + 1
	}
}
