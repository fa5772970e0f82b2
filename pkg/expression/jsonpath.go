package expression

import (
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ohler55/ojg/jp"
)

// JSONPathCacheSize is the number of parsed JSONPath expressions kept around.
const JSONPathCacheSize = 512

var jsonPathCache, _ = lru.New[string, jp.Expr](JSONPathCacheSize)

// GetJSONPath dereferences a key on the evaluation context. Keys not starting with "$" are
// returned as is. "$$..." keys are looked up on the local subject (@map, @filter, etc.),
// everything else on the object. Field paths in the short form "$a.b" are accepted as an alias
// of "$.a.b".
func GetJSONPath(ctx EvalCtx, key string) (any, error) {
	if len(key) == 0 || key[0] != '$' {
		return key, nil
	}

	// $... is object
	subject := ctx.Object
	// $$... is local subject
	if strings.HasPrefix(key, "$$") {
		// remove first $
		key = key[1:]
		subject = ctx.Subject
	}

	return GetJSONPathExp(NormalizeFieldPath(key), subject)
}

// SetJSONPath sets a key to a value in the given data structure. Plain keys are set as a
// top-level field, JSONPath and dotted keys create the intermediate maps as needed.
func SetJSONPath(key string, value, data any) error {
	if len(key) == 0 {
		return errors.New("empty key")
	}

	d, ok := data.(Unstructured)
	if !ok {
		return fmt.Errorf("cannot set key %q on non-object %T", key, data)
	}

	// if not a JSONpath, just set it as is
	if key[0] != '$' && !strings.Contains(key, ".") {
		d[key] = value
		return nil
	}

	if key[0] != '$' {
		key = "$." + key
	}

	if err := SetJSONPathExp(NormalizeFieldPath(key), value, data); err != nil {
		return fmt.Errorf("JSONPath expression error: cannot set key %q: %w", key, err)
	}

	return nil
}

// NormalizeFieldPath converts the short field path form "$a.b" into the JSONPath "$.a.b" and the
// root references "$." and "$$." into "$".
func NormalizeFieldPath(key string) string {
	switch {
	case key == "$." || key == "$":
		// handle root ref "$." that is not handled by ojg/jp
		return "$"
	case len(key) > 1 && key[0] == '$' && key[1] != '.' && key[1] != '[':
		return "$." + key[1:]
	}
	return key
}

// low-level utils

func parseJSONPath(query string) (jp.Expr, error) {
	if je, ok := jsonPathCache.Get(query); ok {
		return je, nil
	}

	je, err := jp.ParseString(query)
	if err != nil {
		return nil, err
	}
	jsonPathCache.Add(query, je)

	return je, nil
}

// GetJSONPathExp evaluates a JSONPath expression on the specified object and returns the result or
// an error. Missing keys evaluate to nil.
func GetJSONPathExp(query string, object any) (any, error) {
	if object == nil {
		return nil, nil
	}

	je, err := parseJSONPath(query)
	if err != nil {
		return nil, err
	}

	// jsonpath works on implicit object context
	values := je.Get(object)
	if len(values) == 0 {
		return nil, nil
	}

	return values[0], nil
}

// SetJSONPathExp sets a key represented with a JSONPath expression to a value in the given data
// structure.
func SetJSONPathExp(key string, value, target any) error {
	je, err := parseJSONPath(key)
	if err != nil {
		return err
	}

	return je.Set(target, value)
}
