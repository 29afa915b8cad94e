// Package docfield extracts named top-level scalar fields from an encoded
// document without requiring the caller's concrete document type. Documents
// are decoded into a tagged-value map so heterogeneous collections (some
// documents with a field, some without, some with a different scalar type
// for it) are all handled uniformly.
//
// © 2025 nyarudb authors. MIT License.
package docfield

import (
	"fmt"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Role distinguishes why a field is being extracted, which in turn decides
// which typed error is returned when the field is absent.
type Role uint8

const (
	// RolePartition marks extraction of the partition key.
	RolePartition Role = iota
	// RoleIndex marks extraction of an index key.
	RoleIndex
)

// PartitionKeyMissingError is returned when a configured partition field is
// absent from a document.
type PartitionKeyMissingError struct{ Field string }

func (e *PartitionKeyMissingError) Error() string {
	return fmt.Sprintf("docfield: partition key %q missing from document", e.Field)
}

// IndexKeyMissingError is returned when a configured index field is absent
// from a document.
type IndexKeyMissingError struct{ Field string }

func (e *IndexKeyMissingError) Error() string {
	return fmt.Sprintf("docfield: index key %q missing from document", e.Field)
}

// Extract decodes encoded as a map of scalar values and returns the
// canonical string form of field. role selects which typed error is
// returned when field is missing.
func Extract(encoded []byte, field string, role Role) (string, error) {
	doc, err := Decode(encoded)
	if err != nil {
		return "", fmt.Errorf("docfield: decode document: %w", err)
	}

	v, ok := doc[field]
	if !ok {
		if role == RolePartition {
			return "", &PartitionKeyMissingError{Field: field}
		}
		return "", &IndexKeyMissingError{Field: field}
	}
	return Canonicalize(v), nil
}

// Decode parses encoded into a map of scalar values. Nested structures are
// preserved as-is (json-iterator decodes them as map[string]any /
// []any) but the engine only ever projects top-level fields.
func Decode(encoded []byte) (map[string]any, error) {
	var doc map[string]any
	if err := jsonAPI.Unmarshal(encoded, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Canonicalize converts a decoded scalar value to the string form used
// everywhere in nyarudb for partition ids, index keys and predicate operand
// comparison: numbers in canonical decimal form, booleans as "true"/"false",
// nil as "null", strings verbatim.
func Canonicalize(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		b, err := jsonAPI.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}
