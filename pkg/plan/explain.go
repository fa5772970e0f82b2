package plan

import (
	"k8s.io/apimachinery/pkg/util/json"
)

const (
	// WindowStageName is the name of the window stage in the explain output.
	WindowStageName = "$_internalSetWindowFields"
	// SortStageName is the name of the in-memory sort stage in the explain output.
	SortStageName = "$sort"
)

// Explanation is the explain output of a plan.
type Explanation struct {
	Stages []map[string]any `json:"stages"`
}

// Explain describes the stages of the plan.
func Explain(p *Plan) *Explanation {
	ret := &Explanation{Stages: []map[string]any{}}

	if p.Sort {
		key := map[string]any{}
		if p.PartitionBy != nil {
			key["partitionBy"] = p.PartitionBy.DeepCopy()
		}
		if len(p.SortBy) > 0 {
			key["sortBy"] = p.SortBy
		}
		ret.Stages = append(ret.Stages, map[string]any{SortStageName: map[string]any{"sortKey": key}})
	}

	stage := map[string]any{}
	if p.PartitionBy != nil {
		stage["partitionBy"] = p.PartitionBy.DeepCopy()
	}
	if len(p.SortBy) > 0 {
		stage["sortBy"] = p.SortBy
	}

	output := map[string]any{}
	for i := range p.Outputs {
		o := &p.Outputs[i]
		output[o.Field] = map[string]any{
			o.Kind.String(): o.Argument.DeepCopy(),
			"window":        map[string]any{"documents": o.Frame.Value()},
		}
	}
	stage["output"] = output

	ret.Stages = append(ret.Stages, map[string]any{WindowStageName: stage})

	return ret
}

// JSON returns the explain output as JSON.
func (e *Explanation) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// Unstructured returns the explain output as a generic JSON value, as a client would see it.
func (e *Explanation) Unstructured() (map[string]any, error) {
	b, err := e.JSON()
	if err != nil {
		return nil, err
	}
	ret := map[string]any{}
	if err := json.Unmarshal(b, &ret); err != nil {
		return nil, err
	}
	return ret, nil
}
