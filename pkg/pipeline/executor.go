package pipeline

import (
	"fmt"

	"github.com/l7mp/windowfields/pkg/plan"
	"github.com/l7mp/windowfields/pkg/window"
)

// executor computes the value of one output field for each position of a partition.
type executor struct {
	out *plan.Output
	// index of the output argument in the buffer entries
	idx int
	acc *window.Accumulator
	// positions [start, end) currently held by an incremental accumulator
	start, end int
}

func newExecutor(out *plan.Output, idx int) *executor {
	return &executor{out: out, idx: idx, acc: window.NewAccumulator(out.Kind)}
}

func (x *executor) reset() {
	x.acc.Reset()
	x.start, x.end = 0, 0
}

// value returns the aggregate over the frame of the document at position pos, given that size
// documents of the partition are known.
func (x *executor) value(buf *partitionBuffer, pos, size int) (any, error) {
	lo, hi := x.out.Frame.Resolve(pos, size)
	end := hi + 1
	if end < lo {
		end = lo
	}

	if x.out.Mode == plan.ModeRecompute {
		x.acc.Reset()
		for i := lo; i < end; i++ {
			x.acc.Add(buf.arg(i, x.idx))
		}
		return x.acc.Value(), nil
	}

	// frames only move forward, start over when the new frame does not overlap the old one
	if lo < x.start || end < x.end || lo >= x.end {
		x.acc.Reset()
		x.start, x.end = lo, lo
	}

	for ; x.start < lo; x.start++ {
		if err := x.acc.Remove(buf.arg(x.start, x.idx)); err != nil {
			return nil, fmt.Errorf("output field %q: %w", x.out.Field, err)
		}
	}

	for ; x.end < end; x.end++ {
		x.acc.Add(buf.arg(x.end, x.idx))
	}

	return x.acc.Value(), nil
}

// need returns the lowest position the executor may still read when evaluating the document at
// position next.
func (x *executor) need(next int) int {
	if x.out.Mode == plan.ModeIncremental {
		if x.out.Frame.Lower.IsUnbounded() {
			return x.end
		}
		return x.start
	}
	return x.out.Frame.LowerAt(next)
}
