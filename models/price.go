package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Sentinel labels stored in place of implausible numeric prices.
const (
	PriceOnRequestLabel = "Price on request (probably)"
	PriceAnomalousLabel = "Something weird"
)

// PriceKind tags which variant a Price holds.
type PriceKind int

const (
	// PriceUnparsed carries the value exactly as received (text, null or
	// missing). Digit-only text is still interpreted by the normaliser.
	PriceUnparsed PriceKind = iota
	PriceNumeric
	PriceOnRequest
	PriceAnomalous
)

func (k PriceKind) String() string {
	switch k {
	case PriceNumeric:
		return "numeric"
	case PriceOnRequest:
		return "on-request"
	case PriceAnomalous:
		return "anomalous"
	default:
		return "unparsed"
	}
}

// Price is the listing price as a tagged variant instead of a field that is
// sometimes a number and sometimes a label.
type Price struct {
	Kind   PriceKind
	Amount int64

	// raw is the JSON literal the value was decoded from, if any.
	raw json.RawMessage
	// text is the stringified value used for identity keys.
	text string
	// quoted reports whether raw was a JSON string.
	quoted bool
}

// NumericPrice returns a Numeric price.
func NumericPrice(amount int64) Price {
	return Price{Kind: PriceNumeric, Amount: amount, text: strconv.FormatInt(amount, 10)}
}

// TextPrice returns a price holding free text, as scrapers sometimes emit.
// Sentinel labels map onto their variants.
func TextPrice(s string) Price {
	switch s {
	case PriceOnRequestLabel:
		return OnRequestPrice()
	case PriceAnomalousLabel:
		return AnomalousPrice()
	}
	raw, _ := marshalPlain(s)
	return Price{Kind: PriceUnparsed, raw: raw, text: s, quoted: true}
}

// OnRequestPrice returns the "price on request" sentinel.
func OnRequestPrice() Price {
	return Price{Kind: PriceOnRequest, text: PriceOnRequestLabel, quoted: true}
}

// AnomalousPrice returns the "something weird" sentinel.
func AnomalousPrice() Price {
	return Price{Kind: PriceAnomalous, text: PriceAnomalousLabel, quoted: true}
}

// Text returns the stringified price as it was received. Missing and null
// prices stringify to "".
func (p Price) Text() string { return p.text }

// IsSentinel reports whether the price was replaced by a label.
func (p Price) IsSentinel() bool {
	return p.Kind == PriceOnRequest || p.Kind == PriceAnomalous
}

// Label returns the sentinel label, or "" for non-sentinel prices.
func (p Price) Label() string {
	switch p.Kind {
	case PriceOnRequest:
		return PriceOnRequestLabel
	case PriceAnomalous:
		return PriceAnomalousLabel
	}
	return ""
}

// Number interprets the price the way the normaliser does: native numbers
// and digit-only strings are numbers, anything else is not.
func (p Price) Number() (int64, bool) {
	switch p.Kind {
	case PriceNumeric:
		return p.Amount, true
	case PriceUnparsed:
		if !p.quoted || !isDigits(p.text) {
			return 0, false
		}
		n, err := strconv.ParseInt(p.text, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// Int is the lenient parse used for sorting and bucketing: numbers are taken
// as is, text is reduced to its digits ("4 500 000 Kč" -> 4500000).
// Sentinels and digitless text yield false.
func (p Price) Int() (int64, bool) {
	switch p.Kind {
	case PriceNumeric:
		return p.Amount, true
	case PriceUnparsed:
		if !p.quoted {
			return 0, false
		}
		var b strings.Builder
		for _, r := range p.text {
			if r >= '0' && r <= '9' {
				b.WriteRune(r)
			}
		}
		if b.Len() == 0 {
			return 0, false
		}
		n, err := strconv.ParseInt(b.String(), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func (p Price) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case PriceNumeric:
		if len(p.raw) > 0 {
			return p.raw, nil
		}
		return []byte(strconv.FormatInt(p.Amount, 10)), nil
	case PriceOnRequest, PriceAnomalous:
		return marshalPlain(p.Label())
	}
	if len(p.raw) == 0 {
		return []byte("null"), nil
	}
	return p.raw, nil
}

func (p *Price) UnmarshalJSON(data []byte) error {
	*p = priceFromJSON(data)
	return nil
}

func priceFromJSON(data []byte) Price {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Price{}
	}

	raw := append(json.RawMessage(nil), data...)
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return Price{raw: raw, text: string(data)}
		}
		p := TextPrice(s)
		p.raw = raw
		return p
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		lit := string(data)
		if n, err := strconv.ParseInt(lit, 10, 64); err == nil {
			return Price{Kind: PriceNumeric, Amount: n, raw: raw, text: lit}
		}
		if f, err := strconv.ParseFloat(lit, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
			// Out-of-range floats do not convert to int64 reliably.
			if f < math.MinInt64 || f >= math.MaxInt64 {
				return Price{raw: raw, text: floatText(f)}
			}
			return Price{Kind: PriceNumeric, Amount: int64(f), raw: raw, text: floatText(f)}
		}
	}
	compact := compactJSON(data)
	return Price{raw: compact, text: string(compact)}
}

// floatText renders a float price the same way whatever its literal form, so
// 4500000.0, 4500000.00 and 4.5e6 share one identity key.
func floatText(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// compactJSON strips insignificant whitespace from a JSON value so objects
// and arrays compare equal however they were indented.
func compactJSON(data []byte) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return append(json.RawMessage(nil), data...)
	}
	return buf.Bytes()
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
