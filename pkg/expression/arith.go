package expression

import (
	"errors"
	"math"
)

// number is a numeric value that stays an integer as long as the computation fits into an int64
// and is widened to a float64 otherwise.
type number struct {
	i     int64
	f     float64
	isInt bool
}

func toNumber(d any) (number, bool) {
	i, f, isInt, ok := asNumber(d)
	if !ok {
		return number{}, false
	}
	return number{i: i, f: f, isInt: isInt}, true
}

func (n number) float() float64 {
	if n.isInt {
		return float64(n.i)
	}
	return n.f
}

func (n number) value() any {
	if n.isInt {
		return n.i
	}
	return n.f
}

// AddInt64 returns a+b and false if the sum overflows.
func AddInt64(a, b int64) (int64, bool) {
	c := a + b
	if (b > 0 && c < a) || (b < 0 && c > a) {
		return 0, false
	}
	return c, true
}

// SubInt64 returns a-b and false if the difference overflows.
func SubInt64(a, b int64) (int64, bool) {
	c := a - b
	if (b < 0 && c < a) || (b > 0 && c > a) {
		return 0, false
	}
	return c, true
}

// MulInt64 returns a*b and false if the product overflows.
func MulInt64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	c := a * b
	if c/b != a {
		return 0, false
	}
	return c, true
}

func addNumbers(a, b number) number {
	if a.isInt && b.isInt {
		if c, ok := AddInt64(a.i, b.i); ok {
			return number{i: c, isInt: true}
		}
	}
	return number{f: a.float() + b.float()}
}

func subNumbers(a, b number) number {
	if a.isInt && b.isInt {
		if c, ok := SubInt64(a.i, b.i); ok {
			return number{i: c, isInt: true}
		}
	}
	return number{f: a.float() - b.float()}
}

func mulNumbers(a, b number) number {
	if a.isInt && b.isInt {
		if c, ok := MulInt64(a.i, b.i); ok {
			return number{i: c, isInt: true}
		}
	}
	return number{f: a.float() * b.float()}
}

func divNumbers(a, b number) (number, error) {
	if b.float() == 0 {
		return number{}, errors.New("division by zero")
	}
	return number{f: a.float() / b.float()}, nil
}

func modNumbers(a, b number) (number, error) {
	if b.float() == 0 {
		return number{}, errors.New("modulo by zero")
	}
	if a.isInt && b.isInt {
		if b.i == -1 {
			return number{i: 0, isInt: true}, nil
		}
		return number{i: a.i % b.i, isInt: true}, nil
	}
	return number{f: math.Mod(a.float(), b.float())}, nil
}

func absNumber(n number) number {
	if n.isInt {
		if n.i == math.MinInt64 {
			return number{f: -float64(n.i)}
		}
		if n.i < 0 {
			return number{i: -n.i, isInt: true}
		}
		return n
	}
	return number{f: math.Abs(n.f)}
}

// numericArgs converts a list of evaluated arguments into numbers. Returns false for the second
// value if any of the arguments is nil.
func numericArgs(args []any) ([]number, bool, error) {
	ret := make([]number, 0, len(args))
	for _, a := range args {
		if a == nil {
			return nil, false, nil
		}
		n, ok := toNumber(a)
		if !ok {
			return nil, false, errors.New("argument is not numeric: " + stringOf(a))
		}
		ret = append(ret, n)
	}
	return ret, true, nil
}
