package pipeline

import (
	"github.com/go-logr/logr"

	"github.com/l7mp/windowfields/pkg/expression"
	"github.com/l7mp/windowfields/pkg/object"
)

// partitionKeyEvaluator computes the partition key of a document. A nil expression puts every
// document into the same partition and is never evaluated.
type partitionKeyEvaluator struct {
	expr *expression.Expression
	log  logr.Logger
}

func (p *partitionKeyEvaluator) evaluate(doc object.Document) (any, error) {
	if p.expr == nil {
		return nil, nil
	}

	key, err := p.expr.Evaluate(expression.EvalCtx{Object: doc, Log: p.log})
	if err != nil {
		return nil, NewExpressionFailureError("partition key", err)
	}

	if expression.KindOf(key) == expression.KindArray {
		return nil, NewTypeMismatchError(key)
	}

	return key, nil
}

// boundaryTracker detects partition boundaries on a sorted stream: a new partition starts
// whenever the key differs from the key of the previous document.
type boundaryTracker struct {
	started bool
	last    any
}

// observe records the key of the next document and returns true if the document opens a new
// partition. The first document always opens one.
func (t *boundaryTracker) observe(key any) bool {
	if t.started && expression.Equal(t.last, key) {
		return false
	}
	t.started = true
	t.last = key
	return true
}

func (t *boundaryTracker) reset() {
	t.started = false
	t.last = nil
}
