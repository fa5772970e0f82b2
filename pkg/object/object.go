package object

import (
	"errors"
	"fmt"

	"k8s.io/apimachinery/pkg/api/equality"
	"k8s.io/apimachinery/pkg/util/json"
)

// Document is an unstructured document: a map of field names to values that may contain embedded
// maps, slices and primitives (int64, float64, string, bool and nil).
type Document = map[string]any

// New creates an empty document.
func New() Document {
	return Document{}
}

// NewFromPairs creates a document from a list of key-value pairs.
func NewFromPairs(pairs ...any) (Document, error) {
	if len(pairs)%2 != 0 {
		return nil, errors.New("odd number of arguments: expecting key-value pairs")
	}

	doc := New()
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return nil, fmt.Errorf("key at position %d must be a string", i)
		}
		doc[key] = pairs[i+1]
	}

	return doc, nil
}

// NewFromJSON parses a JSON object into a document. Integers are parsed into int64 and
// non-integral numbers into float64.
func NewFromJSON(b []byte) (Document, error) {
	doc := New()
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return doc, nil
}

// DeepEqual compares two documents semantically.
func DeepEqual(a, b Document) bool {
	return equality.Semantic.DeepEqual(a, b)
}

// DeepCopy creates a deep copy of a document.
func DeepCopy(in Document) Document {
	if in == nil {
		return nil
	}
	out, _ := DeepCopyValue(in).(Document)
	return out
}

// DeepCopyValue creates a deep copy of a document or any nested structure. Unknown types are
// copied by value.
func DeepCopyValue(val any) any {
	switch v := val.(type) {
	case map[string]any:
		result := make(map[string]any, len(v))
		for k, subVal := range v {
			result[k] = DeepCopyValue(subVal)
		}
		return result

	case []any:
		result := make([]any, len(v))
		for i, subVal := range v {
			result[i] = DeepCopyValue(subVal)
		}
		return result

	default:
		return v
	}
}
