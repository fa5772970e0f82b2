package expression

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/l7mp/windowfields/pkg/util"
)

func IsList(d any) bool {
	dv := reflect.ValueOf(d)
	return dv.Kind() == reflect.Slice || dv.Kind() == reflect.Array
}

func AsList(d any) ([]any, error) {
	if !IsList(d) {
		return nil, fmt.Errorf("argument is not a list: %s", util.Stringify(d))
	}

	ret, ok := d.([]any)
	if !ok {
		return nil, fmt.Errorf("failed to convert argument into a list: %s", util.Stringify(d))
	}

	return ret, nil
}

func AsBool(d any) (bool, error) {
	if d == nil {
		return false, errors.New("argument is nil")
	}

	if reflect.ValueOf(d).Kind() == reflect.Bool {
		return reflect.ValueOf(d).Bool(), nil
	}
	return false, fmt.Errorf("argument is not a boolean: %s", util.Stringify(d))
}

func AsBoolList(d any) ([]bool, error) {
	if !IsList(d) {
		return []bool{}, fmt.Errorf("argument is not a list: %s", util.Stringify(d))
	}

	dv := reflect.ValueOf(d)
	ret := []bool{}
	for i := 0; i < dv.Len(); i++ {
		arg, err := AsBool(dv.Index(i).Interface())
		if err != nil {
			return []bool{}, err
		}
		ret = append(ret, arg)
	}
	return ret, nil
}

func AsString(d any) (string, error) {
	if d == nil {
		return "", errors.New("argument is nil")
	}

	if reflect.ValueOf(d).Kind() == reflect.String {
		return reflect.ValueOf(d).String(), nil
	}

	// convert numeric
	if i, f, isInt, ok := asNumber(d); ok {
		if isInt {
			return strconv.FormatInt(i, 10), nil
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	}

	return "", fmt.Errorf("argument is not a string: %s", util.Stringify(d))
}

func AsStringList(d any) ([]string, error) {
	if !IsList(d) {
		return []string{}, fmt.Errorf("argument is not a list: %s", util.Stringify(d))
	}

	dv := reflect.ValueOf(d)
	ret := []string{}
	for i := 0; i < dv.Len(); i++ {
		arg, err := AsString(dv.Index(i).Interface())
		if err != nil {
			return []string{}, err
		}
		ret = append(ret, arg)
	}
	return ret, nil
}

func AsInt(d any) (int64, error) {
	if d == nil {
		return int64(0), errors.New("argument is nil")
	}

	if i, _, isInt, ok := asNumber(d); ok && isInt {
		return i, nil
	}

	if reflect.ValueOf(d).Kind() == reflect.String {
		i, err := strconv.ParseInt(d.(string), 10, 64)
		if err == nil {
			return i, nil
		}
	}

	return 0, fmt.Errorf("argument is not an int: %s", util.Stringify(d))
}

func AsFloat(d any) (float64, error) {
	if d == nil {
		return 0.0, errors.New("argument is nil")
	}

	if i, f, isInt, ok := asNumber(d); ok {
		if isInt {
			return float64(i), nil
		}
		return f, nil
	}

	if reflect.ValueOf(d).Kind() == reflect.String {
		f, err := strconv.ParseFloat(d.(string), 64)
		if err == nil {
			return f, nil
		}
	}

	return 0.0, fmt.Errorf("argument is not a float: %s", util.Stringify(d))
}

// AsIntOrFloat converts a numeric value, reporting whether it is an integer via the kind.
func AsIntOrFloat(d any) (int64, float64, reflect.Kind, error) {
	i, f, isInt, ok := asNumber(d)
	if !ok {
		return 0, 0.0, reflect.Invalid, fmt.Errorf("argument is not an int or float: %s", util.Stringify(d))
	}
	if isInt {
		return i, 0.0, reflect.Int64, nil
	}
	return 0, f, reflect.Float64, nil
}

func AsMap(d any) (map[string]any, error) {
	ret, ok := d.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("failed to convert argument into a map: %s", util.Stringify(d))
	}

	return ret, nil
}

// AsExpOrExpList returns an expression or an expression list.
func AsExpOrExpList(d any) ([]Expression, error) {
	exp, ok := d.(Expression)
	if !ok {
		var expp *Expression
		expp, ok = d.(*Expression)
		if ok && expp != nil {
			exp = *expp
		}
	}
	if !ok {
		return nil, fmt.Errorf("argument is not an expression: %s", util.Stringify(d))
	}

	if exp.Op == "@list" && exp.Arg == nil { //nolint:goconst
		ret, ok := exp.Literal.([]Expression)
		if !ok {
			return nil, fmt.Errorf("internal error: list expression should contain a literal list: %s",
				exp.String())
		}
		return ret, nil
	}

	return []Expression{exp}, nil
}

// asNumber unpacks any Go numeric type. Unsigned values that do not fit into an int64 and
// floats are returned in the float slot.
func asNumber(d any) (int64, float64, bool, bool) {
	switch v := d.(type) {
	case int64:
		return v, 0, true, true
	case float64:
		return 0, v, false, true
	case int:
		return int64(v), 0, true, true
	case int32:
		return int64(v), 0, true, true
	}

	dv := reflect.ValueOf(d)
	switch dv.Kind() { //nolint:exhaustive
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return dv.Int(), 0, true, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := dv.Uint()
		if u > math.MaxInt64 {
			return 0, float64(u), false, true
		}
		return int64(u), 0, true, true
	case reflect.Float32, reflect.Float64:
		return 0, dv.Float(), false, true
	}

	return 0, 0, false, false
}

func stringOf(d any) string { return util.Stringify(d) }
