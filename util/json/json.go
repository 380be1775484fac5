package json

import (
	"encoding/json"
	"io"

	jsoniter "github.com/json-iterator/go"
)

var jsonAdapter jsoniter.API

func init() {
	jsonAdapter = jsoniter.Config{
		// sorted keys keep persisted metadata byte-stable across flushes
		SortMapKeys:            true,
		EscapeHTML:             false,
		ValidateJsonRawMessage: true,
	}.Froze()
}

// Marshal marshal v into valid JSON
func Marshal(v interface{}) ([]byte, error) {
	if m, ok := v.(json.Marshaler); ok {
		return m.MarshalJSON()
	}

	return jsonAdapter.Marshal(v)
}

// Unmarshal unmarshal a JSON data to v
func Unmarshal(data []byte, v interface{}) error {
	if m, ok := v.(json.Unmarshaler); ok {
		return m.UnmarshalJSON(data)
	}

	return jsonAdapter.Unmarshal(data, v)
}

// NewDecoder create decoder read from an input stream
func NewDecoder(r io.Reader) *jsoniter.Decoder {
	return jsonAdapter.NewDecoder(r)
}
