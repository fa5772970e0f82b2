package expression

import (
	"math"
	"reflect"
	"strings"

	"github.com/l7mp/windowfields/pkg/util"
)

// Kind is the type tag of an evaluated value.
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindDouble
	KindString
	KindObject
	KindArray
	KindBool
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// IsNumeric returns true for integer and floating point kinds.
func (k Kind) IsNumeric() bool { return k == KindInt || k == KindDouble }

// KindOf returns the type tag of a value produced by the evaluator.
func KindOf(v any) Kind {
	if v == nil {
		return KindNull
	}

	switch v.(type) {
	case bool:
		return KindBool
	case string:
		return KindString
	case Unstructured:
		return KindObject
	case []any:
		return KindArray
	}

	switch reflect.ValueOf(v).Kind() { //nolint:exhaustive
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return KindInt
	case reflect.Float32, reflect.Float64:
		return KindDouble
	case reflect.Slice, reflect.Array:
		return KindArray
	case reflect.Map:
		return KindObject
	case reflect.Ptr:
		if reflect.ValueOf(v).IsNil() {
			return KindNull
		}
	}

	return KindUnknown
}

// canonical ordering of the kinds: null < numbers < string < object < array < bool
func kindRank(k Kind) int {
	switch k {
	case KindNull:
		return 0
	case KindInt, KindDouble:
		return 1
	case KindString:
		return 2
	case KindObject:
		return 3
	case KindArray:
		return 4
	case KindBool:
		return 5
	default:
		return 6
	}
}

// Compare defines a total order over evaluated values. Numbers compare by value regardless of
// their representation, objects compare field by field in sorted key order and lists compare
// element-wise. Returns -1, 0 or 1.
func Compare(a, b any) int {
	ka, kb := KindOf(a), KindOf(b)
	if ra, rb := kindRank(ka), kindRank(kb); ra != rb {
		return cmpInt(int64(ra), int64(rb))
	}

	switch ka { //nolint:exhaustive
	case KindNull:
		return 0

	case KindInt, KindDouble:
		return compareNumbers(a, b)

	case KindString:
		return strings.Compare(a.(string), b.(string))

	case KindBool:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		default:
			return 1
		}

	case KindObject:
		ma, erra := AsMap(a)
		mb, errb := AsMap(b)
		if erra != nil || errb != nil {
			return compareFallback(a, b)
		}
		keysA, keysB := util.SortedKeys(ma), util.SortedKeys(mb)
		for i := 0; i < len(keysA) && i < len(keysB); i++ {
			if c := strings.Compare(keysA[i], keysB[i]); c != 0 {
				return c
			}
			if c := Compare(ma[keysA[i]], mb[keysB[i]]); c != 0 {
				return c
			}
		}
		return cmpInt(int64(len(keysA)), int64(len(keysB)))

	case KindArray:
		la, erra := AsList(a)
		lb, errb := AsList(b)
		if erra != nil || errb != nil {
			return compareFallback(a, b)
		}
		for i := 0; i < len(la) && i < len(lb); i++ {
			if c := Compare(la[i], lb[i]); c != 0 {
				return c
			}
		}
		return cmpInt(int64(len(la)), int64(len(lb)))
	}

	return compareFallback(a, b)
}

// Equal reports whether two values are equal in the order defined by Compare.
func Equal(a, b any) bool { return Compare(a, b) == 0 }

func compareNumbers(a, b any) int {
	ia, fa, isIntA, _ := asNumber(a)
	ib, fb, isIntB, _ := asNumber(b)
	switch {
	case isIntA && isIntB:
		return cmpInt(ia, ib)
	case isIntA:
		return compareIntFloat(ia, fb)
	case isIntB:
		return -compareIntFloat(ib, fa)
	}

	// NaN sorts below every other number
	nanA, nanB := math.IsNaN(fa), math.IsNaN(fb)
	switch {
	case nanA && nanB:
		return 0
	case nanA:
		return -1
	case nanB:
		return 1
	case fa < fb:
		return -1
	case fa > fb:
		return 1
	}
	return 0
}

// compareIntFloat compares an integer to a double exactly, without rounding the integer to the
// nearest double.
func compareIntFloat(i int64, f float64) int {
	switch {
	case math.IsNaN(f):
		return 1
	case f >= math.Exp2(63):
		return -1
	case f < -math.Exp2(63):
		return 1
	}

	t := math.Trunc(f)
	if c := cmpInt(i, int64(t)); c != 0 {
		return c
	}
	switch {
	case f > t:
		return -1
	case f < t:
		return 1
	}
	return 0
}

func compareFallback(a, b any) int {
	if reflect.DeepEqual(a, b) {
		return 0
	}
	return strings.Compare(stringOf(a), stringOf(b))
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
