package pipeline

import (
	"context"
	"slices"

	"github.com/go-logr/logr"

	"github.com/l7mp/windowfields/pkg/expression"
	"github.com/l7mp/windowfields/pkg/object"
	"github.com/l7mp/windowfields/pkg/plan"
)

type sortItem struct {
	doc  object.Document
	key  any
	vals []any
}

// SortDocuments sorts documents in place by the partition key and then by the sort key of the
// plan, the order the engine expects its input in. The sort is stable.
func SortDocuments(docs []object.Document, p *plan.Plan, log logr.Logger) error {
	keys := partitionKeyEvaluator{expr: p.PartitionBy, log: log}

	items := make([]sortItem, len(docs))
	for i, doc := range docs {
		key, err := keys.evaluate(doc)
		if err != nil {
			return err
		}

		vals := make([]any, len(p.SortBy))
		for j, k := range p.SortBy {
			v, err := expression.GetJSONPath(expression.EvalCtx{Object: doc, Log: log}, "$"+k.Field)
			if err != nil {
				return NewExpressionFailureError("sort key "+k.Field, err)
			}
			vals[j] = v
		}

		items[i] = sortItem{doc: doc, key: key, vals: vals}
	}

	slices.SortStableFunc(items, func(a, b sortItem) int {
		if c := expression.Compare(a.key, b.key); c != 0 {
			return c
		}
		for j, k := range p.SortBy {
			c := expression.Compare(a.vals[j], b.vals[j])
			if k.Order < 0 {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})

	for i := range items {
		docs[i] = items[i].doc
	}

	log.V(2).Info("documents sorted", "count", len(docs), "sort-by", p.SortBy.Fields())

	return nil
}

// NewSortedSource drains a source and streams its documents sorted for the plan.
func NewSortedSource(ctx context.Context, src Source, p *plan.Plan, log logr.Logger) (Source, error) {
	docs, err := Drain(ctx, src)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, NewUpstreamFailureError(err)
	}

	if err := SortDocuments(docs, p, log); err != nil {
		return nil, err
	}

	return NewSliceSource(docs), nil
}
