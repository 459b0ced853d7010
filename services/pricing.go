package services

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"flat-aggregator/models"
)

var million = decimal.NewFromInt(1_000_000)

// millions returns amount in millions rounded half-to-even at one decimal.
// Bucket and ShortPrice share it so a displayed price never disagrees with
// the bucket it is filed under.
func millions(amount int64) decimal.Decimal {
	return decimal.NewFromInt(amount).Div(million).RoundBank(1)
}

// Bucket returns the price bucket label for a parsed price: "<N>mil" where N
// is the rounded million value with its fraction dropped, or "no-price".
func Bucket(priceInt *int64) string {
	if priceInt == nil {
		return models.NoPriceBucket
	}
	return strconv.FormatInt(millions(*priceInt).IntPart(), 10) + "mil"
}

// ShortPrice formats a price as "X,Y mil".
func ShortPrice(amount int64) string {
	return strings.Replace(millions(amount).StringFixedBank(1), ".", ",", 1) + " mil"
}

// bucketValue returns the numeric part of a "<N>mil" label.
func bucketValue(label string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSuffix(label, "mil"), 10, 64)
	if err != nil || !strings.HasSuffix(label, "mil") {
		return 0, false
	}
	return n, true
}
