package window

import (
	"math"
	"reflect"

	"github.com/shopspring/decimal"

	"github.com/l7mp/windowfields/pkg/expression"
)

// total is a removable numeric running total. It stays an exact int64 while all inputs are
// integers and the sum fits, and switches to an arbitrary precision decimal otherwise so that
// removing a value always restores the previous total. Non-finite floats are counted separately.
type total struct {
	i      int64
	dec    decimal.Decimal
	useDec bool

	// number of numeric values, doubles, NaNs and infinities in the total
	n, doubles, nans, posInfs, negInfs int64
}

func (t *total) reset() {
	*t = total{}
}

// add adds (sign = 1) or removes (sign = -1) a value. Non-numeric values are ignored. Returns
// false if the value was ignored.
func (t *total) add(v any, sign int64) bool {
	if !expression.KindOf(v).IsNumeric() {
		return false
	}

	i, f, kind, err := expression.AsIntOrFloat(v)
	if err != nil {
		return false
	}

	t.n += sign

	if kind == reflect.Float64 {
		t.doubles += sign
		switch {
		case math.IsNaN(f):
			t.nans += sign
		case math.IsInf(f, 1):
			t.posInfs += sign
		case math.IsInf(f, -1):
			t.negInfs += sign
		default:
			t.promote()
			d := decimal.NewFromFloat(f)
			if sign > 0 {
				t.dec = t.dec.Add(d)
			} else {
				t.dec = t.dec.Sub(d)
			}
		}
		return true
	}

	if !t.useDec {
		var res int64
		var ok bool
		if sign > 0 {
			res, ok = expression.AddInt64(t.i, i)
		} else {
			res, ok = expression.SubInt64(t.i, i)
		}
		if ok {
			t.i = res
			return true
		}
		t.promote()
	}

	if sign > 0 {
		t.dec = t.dec.Add(decimal.NewFromInt(i))
	} else {
		t.dec = t.dec.Sub(decimal.NewFromInt(i))
	}

	return true
}

func (t *total) promote() {
	if !t.useDec {
		t.dec = decimal.NewFromInt(t.i)
		t.i = 0
		t.useDec = true
	}
}

// nonFinite returns the result if any non-finite values are in the total.
func (t *total) nonFinite() (float64, bool) {
	switch {
	case t.nans > 0 || (t.posInfs > 0 && t.negInfs > 0):
		return math.NaN(), true
	case t.posInfs > 0:
		return math.Inf(1), true
	case t.negInfs > 0:
		return math.Inf(-1), true
	}
	return 0, false
}

// sum returns the total: an int64 while it is exact and fits and no doubles were added, a
// float64 otherwise.
func (t *total) sum() any {
	if f, ok := t.nonFinite(); ok {
		return f
	}

	if !t.useDec {
		if t.doubles > 0 {
			return float64(t.i)
		}
		return t.i
	}

	if t.doubles == 0 && t.dec.IsInteger() {
		if t.dec.Cmp(decimal.NewFromInt(math.MaxInt64)) <= 0 &&
			t.dec.Cmp(decimal.NewFromInt(math.MinInt64)) >= 0 {
			return t.dec.IntPart()
		}
	}

	return t.dec.InexactFloat64()
}

// avg returns the mean of the numeric values as a float64, or nil if there are none.
func (t *total) avg() any {
	if t.n <= 0 {
		return nil
	}

	if f, ok := t.nonFinite(); ok {
		return f
	}

	d := t.dec
	if !t.useDec {
		d = decimal.NewFromInt(t.i)
	}

	return d.DivRound(decimal.NewFromInt(t.n), 34).InexactFloat64()
}
