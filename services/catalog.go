package services

import (
	"fmt"
	"sync/atomic"

	"flat-aggregator/storage"
	"flat-aggregator/utils"
)

// Catalog holds the snapshot currently being served. Readers take the
// pointer once per request; a reload builds a new snapshot and publishes it
// in a single swap.
type Catalog struct {
	current atomic.Pointer[Snapshot]
	store   storage.ListingReader
	builder *ViewBuilder
	logger  *utils.Logger
}

// NewCatalog returns a catalog serving an empty snapshot until the first
// Reload.
func NewCatalog(store storage.ListingReader, builder *ViewBuilder, logger *utils.Logger) *Catalog {
	c := &Catalog{store: store, builder: builder, logger: logger}
	c.current.Store(builder.Build(nil))
	return c
}

// Current returns the published snapshot.
func (c *Catalog) Current() *Snapshot {
	return c.current.Load()
}

// Replace publishes snap.
func (c *Catalog) Replace(snap *Snapshot) {
	c.current.Store(snap)
}

// Reload reads the canonical dataset and publishes a fresh snapshot. On
// error the previous snapshot stays in place.
func (c *Catalog) Reload() (*Snapshot, error) {
	listings, err := c.store.Load()
	if err != nil {
		c.logger.Error("[catalog] Reload failed, keeping previous snapshot: %v", err)
		return nil, fmt.Errorf("catalog: reload: %w", err)
	}

	snap := c.builder.Build(listings)
	c.Replace(snap)
	c.logger.Info("[catalog] Loaded %d listings into %d sections", snap.Total(), len(snap.Sections))
	return snap, nil
}
