package plan

import (
	"github.com/go-logr/logr"

	"github.com/l7mp/windowfields/pkg/expression"
)

// ConstantPartitionElisionRule removes a partition key expression that evaluates to the same
// valid key on every document. The input then forms a single partition and the key is never
// evaluated. Constants that fail to evaluate or yield an array are kept so that the engine
// reports the same error on the first document as the unoptimized plan.
type ConstantPartitionElisionRule struct{}

func (r *ConstantPartitionElisionRule) Name() string {
	return "ConstantPartitionElision"
}

func (r *ConstantPartitionElisionRule) CanApply(plan *Plan) bool {
	if plan.PartitionBy == nil || !expression.IsConstant(plan.PartitionBy) {
		return false
	}

	key, err := plan.PartitionBy.Evaluate(expression.EvalCtx{Log: logr.Discard()})
	return err == nil && expression.KindOf(key) != expression.KindArray
}

func (r *ConstantPartitionElisionRule) Apply(plan *Plan) error {
	plan.ElidedPartitionBy = plan.PartitionBy
	plan.PartitionBy = nil
	return nil
}

// IncrementalAccumulatorRule switches outputs to incremental execution when the frame only ever
// grows (unbounded lower bound) or the accumulator supports removing values.
type IncrementalAccumulatorRule struct{}

func (r *IncrementalAccumulatorRule) Name() string {
	return "IncrementalAccumulator"
}

func (r *IncrementalAccumulatorRule) CanApply(plan *Plan) bool {
	for i := range plan.Outputs {
		if r.canIncrementalize(&plan.Outputs[i]) {
			return true
		}
	}
	return false
}

func (r *IncrementalAccumulatorRule) Apply(plan *Plan) error {
	for i := range plan.Outputs {
		if o := &plan.Outputs[i]; r.canIncrementalize(o) {
			o.Mode = ModeIncremental
		}
	}
	return nil
}

func (r *IncrementalAccumulatorRule) canIncrementalize(o *Output) bool {
	return o.Mode == ModeRecompute && (o.Frame.Lower.IsUnbounded() || o.Kind.Removable())
}
