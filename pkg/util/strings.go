package util

import (
	"fmt"
	"sort"

	"k8s.io/apimachinery/pkg/util/json"
)

// Map is the functional map: (a -> b) -> [a] -> [b].
func Map[T, U any](f func(T) U, s []T) []U {
	result := make([]U, len(s))
	for i, v := range s {
		result[i] = f(v)
	}
	return result
}

// Stringify renders any value as JSON, falling back to the Go syntax representation.
func Stringify(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(b)
}

// SortedKeys returns the keys of a string-keyed map in lexicographic order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
