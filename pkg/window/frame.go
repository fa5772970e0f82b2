package window

import (
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/l7mp/windowfields/pkg/expression"
	"github.com/l7mp/windowfields/pkg/util"
)

// BoundKind is the type of a frame bound.
type BoundKind int

const (
	// BoundUnbounded is an open frame end: the start of the partition on the lower side and
	// the end of the partition on the upper side.
	BoundUnbounded BoundKind = iota
	// BoundCurrent is the position of the document being evaluated.
	BoundCurrent
	// BoundOffset is a signed offset relative to the current position.
	BoundOffset
)

const (
	UnboundedToken = "unbounded"
	CurrentToken   = "current"
)

// Bound is one end of a document window.
type Bound struct {
	Kind   BoundKind
	Offset int64
}

func Unbounded() Bound { return Bound{Kind: BoundUnbounded} }

func Current() Bound { return Bound{Kind: BoundCurrent} }

func Offset(n int64) Bound { return Bound{Kind: BoundOffset, Offset: n} }

func (b Bound) IsUnbounded() bool { return b.Kind == BoundUnbounded }

// ParseBound parses a bound token: "unbounded", "current" or an integer offset. Integral floats
// are accepted since generic JSON decoders produce them for numbers.
func ParseBound(v any) (Bound, error) {
	switch v := v.(type) {
	case string:
		switch v {
		case UnboundedToken:
			return Unbounded(), nil
		case CurrentToken:
			return Current(), nil
		}
		return Bound{}, fmt.Errorf("invalid window bound %q: expected %q, %q or an integer",
			v, UnboundedToken, CurrentToken)
	case nil:
		return Bound{}, errors.New("invalid window bound: null")
	}

	i, f, kind, err := expression.AsIntOrFloat(v)
	if err != nil {
		return Bound{}, fmt.Errorf("invalid window bound %s: expected %q, %q or an integer",
			util.Stringify(v), UnboundedToken, CurrentToken)
	}
	if kind == reflect.Float64 {
		if f != math.Trunc(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
			return Bound{}, fmt.Errorf("invalid window bound %s: offset must be an integer",
				util.Stringify(v))
		}
		i = int64(f)
	}
	if i < math.MinInt32 || i > math.MaxInt32 {
		return Bound{}, fmt.Errorf("invalid window bound %d: offset out of range", i)
	}

	return Offset(i), nil
}

// Value returns the bound in its declared form.
func (b Bound) Value() any {
	switch b.Kind {
	case BoundUnbounded:
		return UnboundedToken
	case BoundCurrent:
		return CurrentToken
	default:
		return b.Offset
	}
}

func (b Bound) String() string {
	return util.Stringify(b.Value())
}

// relative returns the position of the bound relative to the current document.
func (b Bound) relative() int64 {
	if b.Kind == BoundOffset {
		return b.Offset
	}
	return 0
}

// Frame is an inclusive document window [Lower, Upper] around the current document.
type Frame struct {
	Lower, Upper Bound
}

// DefaultFrame covers the whole partition.
func DefaultFrame() Frame {
	return Frame{Lower: Unbounded(), Upper: Unbounded()}
}

// NewFrame creates a new frame and checks that it is not empty for every position.
func NewFrame(lower, upper Bound) (Frame, error) {
	f := Frame{Lower: lower, Upper: upper}
	if err := f.Validate(); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// ParseFrame parses the bound pair of a "documents" window.
func ParseFrame(bounds []any) (Frame, error) {
	if len(bounds) != 2 {
		return Frame{}, fmt.Errorf("window 'documents' must be an array of exactly 2 "+
			"bounds, got %d", len(bounds))
	}

	lower, err := ParseBound(bounds[0])
	if err != nil {
		return Frame{}, fmt.Errorf("lower bound: %w", err)
	}

	upper, err := ParseBound(bounds[1])
	if err != nil {
		return Frame{}, fmt.Errorf("upper bound: %w", err)
	}

	return NewFrame(lower, upper)
}

// Validate rejects frames whose lower bound lies after the upper bound.
func (f Frame) Validate() error {
	if f.Lower.IsUnbounded() || f.Upper.IsUnbounded() {
		return nil
	}
	if f.Lower.relative() > f.Upper.relative() {
		return fmt.Errorf("lower bound must not be greater than the upper bound: %s", f.String())
	}
	return nil
}

// IsWholePartition returns true for the [unbounded, unbounded] frame.
func (f Frame) IsWholePartition() bool {
	return f.Lower.IsUnbounded() && f.Upper.IsUnbounded()
}

// Lookahead returns the number of documents following the current one that must be available
// to resolve the frame. Returns false if the frame reaches the end of the partition.
func (f Frame) Lookahead() (int, bool) {
	if f.Upper.IsUnbounded() {
		return 0, false
	}
	if n := f.Upper.relative(); n > 0 {
		return int(n), true
	}
	return 0, true
}

// Resolve computes the inclusive window [lo, hi] for the document at position pos, given that
// size documents of the partition are known. The caller must make sure that either the whole
// partition is known or size covers the lookahead of the frame. The window is empty if lo > hi.
func (f Frame) Resolve(pos, size int) (int, int) {
	lo, hi := int64(0), int64(size-1)
	if !f.Lower.IsUnbounded() {
		lo = int64(pos) + f.Lower.relative()
	}
	if !f.Upper.IsUnbounded() {
		hi = int64(pos) + f.Upper.relative()
	}

	// the window falls entirely beyond a partition edge: return an empty window at the edge
	if hi < 0 {
		return 0, -1
	}
	if lo > int64(size-1) {
		return size, size - 1
	}

	return clamp(lo, size), clamp(hi, size)
}

// LowerAt returns the lowest position the frame of the document at position pos can reach.
func (f Frame) LowerAt(pos int) int {
	if f.Lower.IsUnbounded() {
		return 0
	}
	l := int64(pos) + f.Lower.relative()
	if l < 0 {
		return 0
	}
	return int(l)
}

func (f Frame) String() string {
	return fmt.Sprintf("[%s, %s]", f.Lower.String(), f.Upper.String())
}

// Value returns the frame in its declared form.
func (f Frame) Value() []any {
	return []any{f.Lower.Value(), f.Upper.Value()}
}

func clamp(p int64, size int) int {
	if p < 0 {
		return 0
	}
	if p > int64(size-1) {
		return size - 1
	}
	return int(p)
}
