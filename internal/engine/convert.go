package engine

import (
	"encoding/json"
	"fmt"
)

// ToDocument converts a struct (or any JSON-encodable value) to a Document
// using its json tags.
func ToDocument(v any) (Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("encode %T: not an object: %w", v, err)
	}
	return doc, nil
}

// DecodeAs converts documents into typed values.
func DecodeAs[T any](docs ...Document) ([]T, error) {
	out := make([]T, len(docs))
	for i, doc := range docs {
		data, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("decode document %d: %w", i, err)
		}
		if err := json.Unmarshal(data, &out[i]); err != nil {
			return nil, fmt.Errorf("decode document %d: %w", i, err)
		}
	}
	return out, nil
}
