package expression

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"k8s.io/apimachinery/pkg/util/json"
)

var operators = map[string]bool{
	"@null": true, "@bool": true, "@int": true, "@float": true, "@string": true, "@list": true,
	"@dict": true, "@filter": true, "@map": true, "@any": true, "@all": true, "@none": true,
	"@cond": true, "@isnil": true, "@exists": true, "@type": true, "@not": true, "@eq": true,
	"@ne": true, "@lt": true, "@lte": true, "@gt": true, "@gte": true, "@in": true, "@and": true,
	"@or": true, "@abs": true, "@ceil": true, "@floor": true, "@len": true, "@sum": true,
	"@add": true, "@sub": true, "@mul": true, "@div": true, "@mod": true, "@concat": true,
}

// operatorName matches keys spelled like a "$op" operator, as opposed to field paths.
var operatorName = regexp.MustCompile(`^\$[A-Za-z][A-Za-z0-9]*$`)

// IsOperator returns true if op is a known operator in canonical "@op" form.
func IsOperator(op string) bool { return operators[op] }

// CanonicalName converts the "$op" spelling of an operator name into the canonical "@op".
func CanonicalName(name string) string {
	if strings.HasPrefix(name, "$") {
		return "@" + name[1:]
	}
	return name
}

func (e *Expression) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*e = Expression{Op: "@null"}
		return nil
	}

	// try to unmarshal as a bool terminal expression
	bv := false
	if err := json.Unmarshal(b, &bv); err == nil {
		*e = Expression{Op: "@bool", Literal: bv}
		return nil
	}

	// try to unmarshal as an int terminal expression
	var iv int64 = 0
	if err := json.Unmarshal(b, &iv); err == nil {
		*e = Expression{Op: "@int", Literal: iv}
		return nil
	}

	// try to unmarshal as a float terminal expression
	fv := 0.0
	if err := json.Unmarshal(b, &fv); err == nil {
		*e = Expression{Op: "@float", Literal: fv}
		return nil
	}

	// try to unmarshal as a string terminal expression
	sv := ""
	if err := json.Unmarshal(b, &sv); err == nil {
		*e = Expression{Op: "@string", Literal: sv}
		return nil
	}

	// try to unmarshal as a literal list expression
	mv := []Expression{}
	if err := json.Unmarshal(b, &mv); err == nil {
		*e = Expression{Op: "@list", Literal: mv}
		return nil
	}

	// try to unmarshal as a map expression
	cv := map[string]Expression{}
	if err := json.Unmarshal(b, &cv); err == nil {
		// specialcase operators: an op has a single key that starts with @, or with $ for
		// known operators
		if len(cv) == 1 {
			op := ""
			for k := range cv {
				op = k
				break
			}
			if len(op) > 0 && (op[0] == '@' || (op[0] == '$' && IsOperator(CanonicalName(op)))) {
				exp := cv[op]
				*e = Expression{Op: CanonicalName(op), Arg: &exp}
				return nil
			}
			if operatorName.MatchString(op) {
				return fmt.Errorf("unknown operator %q in expression %s", op, string(b))
			}
		}

		// literal map: store as exp with op @dict and map as Literal
		*e = Expression{Op: "@dict", Literal: cv}
		return nil
	}

	return NewUnmarshalError("expression", string(b))
}

func (e *Expression) MarshalJSON() ([]byte, error) {
	switch e.Op {
	case "@null":
		return []byte("null"), nil

	case "@bool", "@int", "@float", "@string":
		if e.Arg != nil {
			// keep the op for a correct round-trip and possible side-effects (conversion)
			ret := map[string]*Expression{e.Op: e.Arg}
			return json.Marshal(ret)
		}

		var v any
		var err error
		switch e.Op {
		case "@bool":
			v, err = AsBool(e.Literal)
		case "@int":
			v, err = AsInt(e.Literal)
		case "@float":
			v, err = AsFloat(e.Literal)
		default:
			v, err = AsString(e.Literal)
		}
		if err != nil {
			return []byte(""), err
		}
		return json.Marshal(v)

	case "@list":
		if e.Arg != nil {
			return json.Marshal(e.Arg)
		}
		es, ok := e.Literal.([]Expression)
		if !ok {
			return []byte(""), fmt.Errorf("invalid expression list: %#v", e)
		}
		return json.Marshal(es)

	case "@dict":
		if e.Arg != nil {
			return json.Marshal(e.Arg)
		}

		es, ok := e.Literal.(map[string]Expression)
		if !ok {
			return []byte(""), fmt.Errorf("invalid expression map: %#v", e)
		}
		em := map[string]*Expression{}
		for k, v := range es {
			v := v
			em[k] = &v
		}
		return json.Marshal(em)

	default:
		// everything else is a valid op
		if len(e.Op) == 0 {
			return []byte(""), fmt.Errorf("empty op in expression %#v", e)
		}

		ret := map[string]*Expression{e.Op: e.Arg}
		return json.Marshal(ret)
	}
}

func (e *Expression) String() string {
	b, err := json.Marshal(e)
	if err != nil {
		return ""
	}
	return string(b)
}

func (e *Expression) DeepCopyInto(out *Expression) {
	if e == nil || out == nil {
		return
	}
	*out = *e

	j, err := json.Marshal(e)
	if err != nil {
		return
	}

	if err := json.Unmarshal(j, out); err != nil {
		return
	}
}

// DeepCopy returns a copy of the expression tree.
func (e *Expression) DeepCopy() *Expression {
	if e == nil {
		return nil
	}
	out := new(Expression)
	e.DeepCopyInto(out)
	return out
}
