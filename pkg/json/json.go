// Package json serializes ledger filters and record snapshots with goccy/go-json.
package json

import (
	"bytes"

	gojson "github.com/goccy/go-json"
)

// Marshal is a drop-in replacement for encoding/json.Marshal. Map keys are
// emitted in sorted order, so equal values always serialize identically.
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal is a drop-in replacement for encoding/json.Unmarshal.
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// MarshalString returns the JSON text of v. Strings pass through unchanged
// and nil becomes the empty string, matching how the ledger stores filters.
func MarshalString(v interface{}) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	}
	b, err := gojson.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeObject decodes a JSON object keeping numbers as json.Number so
// integer watermarks survive a round trip without float rounding.
func DecodeObject(data string) (map[string]interface{}, error) {
	dec := gojson.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()

	out := make(map[string]interface{})
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Number is re-exported for callers inspecting decoded values.
type Number = gojson.Number
