package storage

import "flat-aggregator/models"

// ListingWriter is the interface any export backend for the canonical
// dataset must satisfy.
type ListingWriter interface {
	Write(listings []*models.Listing) error
	Close() error
}

// ListingReader loads the canonical dataset back.
type ListingReader interface {
	Load() ([]*models.Listing, error)
}

var (
	_ ListingWriter = (*CSVWriter)(nil)
	_ ListingWriter = (*PostgresWriter)(nil)
	_ ListingReader = (*CanonicalStore)(nil)
)
