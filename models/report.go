package models

// InsightReport holds the computed analytics over the canonical dataset.
type InsightReport struct {
	TotalListings    int
	PricedListings   int
	AveragePrice     int64
	MinPrice         int64
	MaxPrice         int64
	MostExpensive    *Listing
	Cheapest         *Listing
	ListingsBySource map[string]int
	ListingsByType   map[string]int
	ListingsByBucket map[string]int
	SentinelCounts   map[string]int
}
