package window

import (
	"fmt"
	"strings"

	"github.com/l7mp/windowfields/pkg/expression"
)

// Kind is the type of a window accumulator. The set of accumulators is closed.
type Kind int

const (
	KindSum Kind = iota
	KindAvg
	KindCount
	KindMin
	KindMax
	KindPush
	KindAddToSet
	KindFirst
	KindLast
)

var kindNames = map[Kind]string{
	KindSum:      "@sum",
	KindAvg:      "@avg",
	KindCount:    "@count",
	KindMin:      "@min",
	KindMax:      "@max",
	KindPush:     "@push",
	KindAddToSet: "@addToSet",
	KindFirst:    "@first",
	KindLast:     "@last",
}

// Kinds returns all accumulator kinds.
func Kinds() []Kind {
	return []Kind{KindSum, KindAvg, KindCount, KindMin, KindMax, KindPush, KindAddToSet,
		KindFirst, KindLast}
}

// ParseKind parses an accumulator name. Both the "@sum" and the "$sum" spelling is accepted.
func ParseKind(name string) (Kind, error) {
	canonical := name
	if strings.HasPrefix(name, "$") {
		canonical = "@" + name[1:]
	}
	for k, n := range kindNames {
		if n == canonical {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown window accumulator %q", name)
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("<unknown accumulator %d>", int(k))
}

// Removable returns true if values can be retracted from the accumulator, which allows sliding
// windows to be updated incrementally.
func (k Kind) Removable() bool {
	switch k {
	case KindSum, KindAvg, KindCount, KindPush:
		return true
	default:
		return false
	}
}

// Accumulator is the running state of a window aggregate. Values must be removed in the order
// they were added.
type Accumulator struct {
	kind Kind

	total total
	count int64

	// values in the window, used by @push, @addToSet, @first and @last
	values []any
	head   int

	// current extremum of @min/@max
	best    any
	hasBest bool
}

// NewAccumulator creates a new accumulator of the given kind.
func NewAccumulator(kind Kind) *Accumulator {
	return &Accumulator{kind: kind}
}

// Kind returns the type of the accumulator.
func (a *Accumulator) Kind() Kind { return a.kind }

// Reset restores the accumulator to its initial empty state.
func (a *Accumulator) Reset() {
	a.total.reset()
	a.count = 0
	clear(a.values)
	a.values = a.values[:0]
	a.head = 0
	a.best = nil
	a.hasBest = false
}

// Add adds a value to the window.
func (a *Accumulator) Add(v any) {
	switch a.kind {
	case KindSum, KindAvg:
		a.total.add(v, 1)

	case KindCount:
		a.count++

	case KindMin, KindMax:
		if v == nil {
			return
		}
		if !a.hasBest {
			a.best, a.hasBest = v, true
			return
		}
		c := expression.Compare(v, a.best)
		if (a.kind == KindMin && c < 0) || (a.kind == KindMax && c > 0) {
			a.best = v
		}

	case KindAddToSet:
		for _, x := range a.values[a.head:] {
			if expression.Equal(x, v) {
				return
			}
		}
		a.values = append(a.values, v)

	case KindFirst:
		if a.count == 0 {
			a.values = append(a.values, v)
		}
		a.count++

	case KindLast:
		a.values = append(a.values[:0], v)

	case KindPush:
		a.values = append(a.values, v)
	}
}

// Remove retracts the oldest value from the window. The argument must be the value that was
// added first among the ones still in the window.
func (a *Accumulator) Remove(v any) error {
	switch a.kind {
	case KindSum, KindAvg:
		a.total.add(v, -1)

	case KindCount:
		if a.count > 0 {
			a.count--
		}

	case KindPush:
		if a.head < len(a.values) {
			a.values[a.head] = nil
			a.head++
		}
		// compact once the dead prefix dominates
		if a.head > 32 && a.head*2 > len(a.values) {
			n := copy(a.values, a.values[a.head:])
			clear(a.values[n:])
			a.values = a.values[:n]
			a.head = 0
		}

	default:
		return fmt.Errorf("accumulator %s does not support removal", a.kind)
	}

	return nil
}

// Value returns the result for the current window. An empty window yields 0 for @sum and
// @count, an empty list for @push and @addToSet and nil otherwise.
func (a *Accumulator) Value() any {
	switch a.kind {
	case KindSum:
		return a.total.sum()

	case KindAvg:
		return a.total.avg()

	case KindCount:
		return a.count

	case KindMin, KindMax:
		return a.best

	case KindPush, KindAddToSet:
		ret := make([]any, len(a.values)-a.head)
		copy(ret, a.values[a.head:])
		return ret

	case KindFirst:
		if len(a.values) == 0 {
			return nil
		}
		return a.values[0]

	case KindLast:
		if len(a.values) == 0 {
			return nil
		}
		return a.values[len(a.values)-1]
	}

	return nil
}
