package models

import (
	"bytes"
	"encoding/json"
)

// marshalPlain is json.Marshal without HTML escaping, so links and text
// keep their & < > characters in written documents.
func marshalPlain(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
