package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Placeholder used by sources for fields they could not scrape.
const NotAvailable = "N/A"

// Listing is one apartment-for-sale record. Source documents are loosely
// typed; UnmarshalJSON defaults every field at the boundary so the pipeline
// only ever sees a fully populated struct.
type Listing struct {
	Image      string
	Locality   string
	TypeOfFlat string
	Size       string
	Price      Price
	Link       string
	UID        int
	Source     string

	// Extra holds fields a source emitted beyond the known shape. They are
	// written back out untouched.
	Extra map[string]json.RawMessage
}

var knownFields = []string{"image", "locality", "type_of_flat", "size", "price", "link", "uid", "source"}

func (l *Listing) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("listing: %w", err)
	}
	if fields == nil {
		return fmt.Errorf("listing: null record")
	}

	*l = Listing{
		Image:      looseString(fields["image"]),
		Locality:   looseString(fields["locality"]),
		TypeOfFlat: looseString(fields["type_of_flat"]),
		Size:       looseString(fields["size"]),
		Link:       looseString(fields["link"]),
		UID:        looseInt(fields["uid"]),
		Source:     looseString(fields["source"]),
	}
	if raw, ok := fields["price"]; ok {
		l.Price = priceFromJSON(raw)
	}

	for _, k := range knownFields {
		delete(fields, k)
	}
	if len(fields) > 0 {
		l.Extra = fields
	}
	return nil
}

func (l Listing) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	write := func(key string, v any) error {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		k, _ := marshalPlain(key)
		buf.Write(k)
		buf.WriteByte(':')
		b, err := marshalPlain(v)
		if err != nil {
			return fmt.Errorf("listing: marshal %s: %w", key, err)
		}
		buf.Write(b)
		return nil
	}

	ordered := []struct {
		key string
		val any
	}{
		{"image", l.Image},
		{"locality", l.Locality},
		{"type_of_flat", l.TypeOfFlat},
		{"size", l.Size},
		{"price", l.Price},
		{"link", l.Link},
		{"uid", l.UID},
		{"source", l.Source},
	}
	for _, f := range ordered {
		if err := write(f.key, f.val); err != nil {
			return nil, err
		}
	}

	extraKeys := make([]string, 0, len(l.Extra))
	for k := range l.Extra {
		extraKeys = append(extraKeys, k)
	}
	sort.Strings(extraKeys)
	for _, k := range extraKeys {
		if err := write(k, l.Extra[k]); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// looseString stringifies any JSON scalar; null and missing become "".
func looseString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(compactJSON(raw))
}

func looseInt(raw json.RawMessage) int {
	s := strings.TrimSpace(looseString(raw))
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return 0
}
