package expression

import "strings"

// IsConstant returns true if the expression provably evaluates to the same value on every
// object: literals, literal lists and maps of constants and operators applied to constant
// arguments. JSONPath references and the list operators that bind a local subject are never
// constant. A nil expression is constant.
func IsConstant(e *Expression) bool {
	if e == nil {
		return true
	}

	switch e.Op {
	case "@null":
		return true

	case "@bool", "@int", "@float":
		if e.Arg == nil {
			return true
		}
		return IsConstant(e.Arg)

	case "@string":
		if e.Arg != nil {
			// the result is dereferenced as a JSONPath
			return false
		}
		s, ok := e.Literal.(string)
		return ok && !strings.HasPrefix(s, "$")

	case "@list":
		if e.Arg != nil {
			return IsConstant(e.Arg)
		}
		es, ok := e.Literal.([]Expression)
		if !ok {
			return false
		}
		for i := range es {
			if !IsConstant(&es[i]) {
				return false
			}
		}
		return true

	case "@dict":
		if e.Arg != nil {
			return IsConstant(e.Arg)
		}
		em, ok := e.Literal.(map[string]Expression)
		if !ok {
			return false
		}
		for k := range em {
			v := em[k]
			if !IsConstant(&v) {
				return false
			}
		}
		return true

	case "@filter", "@map", "@any", "@all", "@none":
		return false
	}

	// operators and literal maps: constant if the argument is
	return e.Arg != nil && IsConstant(e.Arg)
}
