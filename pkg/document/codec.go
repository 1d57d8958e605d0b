package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Document is a single ledger document: a tree of maps, lists and scalars.
//
// After normalization every nested object is a map[string]any, every list is
// a []any, every number is an int64 or float64, and every other scalar is a
// string, bool or nil.
type Document map[string]any

// Marshal converts an application value into a normalized document value.
// Struct field names follow the `json` tags of the value's type.
func Marshal(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	return decodeValue(raw)
}

// MarshalDocument converts v into a Document. v must encode to an object.
func MarshalDocument(v any) (Document, error) {
	val, err := Marshal(v)
	if err != nil {
		return nil, err
	}
	m, ok := val.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("value of type %T is not a document", v)
	}
	return Document(m), nil
}

// Unmarshal decodes a document value into out, which must be a pointer.
func Unmarshal(value any, out any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode document value: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode document into %T: %w", out, err)
	}
	return nil
}

// Encode serializes a document for storage.
func Encode(doc Document) ([]byte, error) {
	if doc == nil {
		doc = Document{}
	}
	return json.Marshal(map[string]any(doc))
}

// Decode parses stored document bytes.
func Decode(data []byte) (Document, error) {
	val, err := decodeValue(data)
	if err != nil {
		return nil, err
	}
	m, ok := val.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("stored value is not a document")
	}
	return Document(m), nil
}

func decodeValue(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode document value: %w", err)
	}
	return normalize(v), nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := strconv.ParseInt(t.String(), 10, 64); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, child := range t {
			t[k] = normalize(child)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = normalize(child)
		}
		return t
	default:
		return v
	}
}

// Clone returns a deep copy of doc.
func Clone(doc Document) Document {
	if doc == nil {
		return nil
	}
	return Document(cloneValue(map[string]any(doc)).(map[string]any))
}

// CloneValue returns a deep copy of a normalized value.
func CloneValue(v any) any {
	return cloneValue(v)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Document:
		return cloneValue(map[string]any(t))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = cloneValue(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = cloneValue(child)
		}
		return out
	default:
		return v
	}
}

// Equal reports whether two normalized values are equal. Integers compare
// exactly; an integer and a float compare numerically.
func Equal(a, b any) bool {
	if ai, ok := asInt(a); ok {
		if bi, ok := asInt(b); ok {
			return ai == bi
		}
	}
	if an, ok := asFloat(a); ok {
		bn, ok := asFloat(b)
		return ok && an == bn
	}

	switch at := a.(type) {
	case nil:
		return b == nil
	case string:
		bt, ok := b.(string)
		return ok && at == bt
	case bool:
		bt, ok := b.(bool)
		return ok && at == bt
	case Document:
		return Equal(map[string]any(at), b)
	case map[string]any:
		bm, ok := asMap(b)
		if !ok || len(at) != len(bm) {
			return false
		}
		for k, av := range at {
			bv, ok := bm[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case []any:
		bl, ok := b.([]any)
		if !ok || len(at) != len(bl) {
			return false
		}
		for i := range at {
			if !Equal(at[i], bl[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// AsMap returns v as an object if it is one.
func AsMap(v any) (map[string]any, bool) {
	return asMap(v)
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case Document:
		return map[string]any(m), true
	case map[string]any:
		return m, true
	default:
		return nil, false
	}
}

// IsScalar reports whether v is a string, number or bool.
func IsScalar(v any) bool {
	switch v.(type) {
	case string, int64, int, float64, bool:
		return true
	default:
		return false
	}
}
