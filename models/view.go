package models

// NoPriceBucket is the bucket of listings without a usable price.
const NoPriceBucket = "no-price"

// ListingView is a canonical listing plus the fields derived when the dataset
// is indexed. Views are built once per snapshot and never mutated.
type ListingView struct {
	*Listing

	SizeInt       int
	PriceInt      *int64
	Bucket        string
	LocalityLower string
}

// HasPrice reports whether the listing has a usable numeric price.
func (v ListingView) HasPrice() bool { return v.PriceInt != nil }

func (v ListingView) MarshalJSON() ([]byte, error) {
	return marshalPlain(struct {
		Image      string `json:"image"`
		Locality   string `json:"locality"`
		TypeOfFlat string `json:"type_of_flat"`
		Size       string `json:"size"`
		Price      Price  `json:"price"`
		Link       string `json:"link"`
		UID        int    `json:"uid"`
		Source     string `json:"source"`
		SizeInt    int    `json:"size_int"`
		PriceInt   *int64 `json:"price_int"`
		Bucket     string `json:"bucket"`
	}{
		Image:      v.Image,
		Locality:   v.Locality,
		TypeOfFlat: v.TypeOfFlat,
		Size:       v.Size,
		Price:      v.Price,
		Link:       v.Link,
		UID:        v.UID,
		Source:     v.Source,
		SizeInt:    v.SizeInt,
		PriceInt:   v.PriceInt,
		Bucket:     v.Bucket,
	})
}
