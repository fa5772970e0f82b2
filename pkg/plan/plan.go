// Package plan compiles window stage declarations into execution plans and optimizes them with a
// rule-based rewrite engine.
package plan

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/l7mp/windowfields/pkg/api/v1alpha1"
	"github.com/l7mp/windowfields/pkg/expression"
	"github.com/l7mp/windowfields/pkg/window"
)

// Mode is the execution strategy of an output.
type Mode int

const (
	// ModeRecompute resets the accumulator and folds the entire frame for every document.
	ModeRecompute Mode = iota
	// ModeIncremental adds the documents entering the frame and removes the ones leaving it.
	ModeIncremental
)

func (m Mode) String() string {
	switch m {
	case ModeRecompute:
		return "recompute"
	case ModeIncremental:
		return "incremental"
	default:
		return "<unknown>"
	}
}

// Output is a compiled output field.
type Output struct {
	Field    string
	Kind     window.Kind
	Argument expression.Expression
	Frame    window.Frame
	Mode     Mode
}

func (o *Output) String() string {
	return fmt.Sprintf("%s: %s(%s) %s %s", o.Field, o.Kind, o.Argument.String(), o.Frame, o.Mode)
}

// Plan is the execution plan of a window stage.
type Plan struct {
	// PartitionBy is the partition key expression, nil if the input is a single partition.
	PartitionBy *expression.Expression
	// ElidedPartitionBy is the constant partition key expression removed by the optimizer.
	ElidedPartitionBy *expression.Expression
	// SortBy is the order of the documents within a partition.
	SortBy v1alpha1.SortSpec
	// Outputs are the compiled output fields, sorted by field name.
	Outputs []Output
	// Sort requests an in-memory sort of the input before the window stage.
	Sort bool
	// Rules is the list of the rewrite rules applied to the plan.
	Rules []string
}

// New compiles a stage declaration into a plan. All problems of the declaration are reported
// together.
func New(spec *v1alpha1.SetWindowFields) (*Plan, error) {
	if spec == nil {
		return nil, errors.New("empty stage declaration")
	}

	p := &Plan{
		PartitionBy: spec.PartitionBy.DeepCopy(),
		SortBy:      spec.SortBy,
		Outputs:     make([]Output, 0, len(spec.Output)),
	}

	var errs error
	for _, field := range spec.OutputFields() {
		o, err := newOutput(field, spec.Output[field], len(spec.SortBy) > 0)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("output field %q: %w", field, err))
			continue
		}
		p.Outputs = append(p.Outputs, o)
	}

	if errs != nil {
		return nil, errs
	}

	return p, nil
}

func newOutput(field string, decl v1alpha1.OutputField, sorted bool) (Output, error) {
	o := Output{Field: field, Argument: *decl.Argument.DeepCopy(), Mode: ModeRecompute}

	var errs error
	if field == "" || strings.HasPrefix(field, "$") {
		errs = multierr.Append(errs, errors.New("field name must be non-empty and must "+
			"not start with '$'"))
	}

	if len(decl.Extra) > 0 {
		errs = multierr.Append(errs, fmt.Errorf("expected exactly one accumulator, got %s",
			strings.Join(append([]string{decl.Operator}, decl.Extra...), ", ")))
	}

	kind, err := window.ParseKind(decl.Operator)
	if err != nil {
		errs = multierr.Append(errs, err)
	}
	o.Kind = kind

	frame, err := compileWindow(decl.Window)
	if err != nil {
		errs = multierr.Append(errs, err)
	} else if !sorted && !frame.IsWholePartition() {
		errs = multierr.Append(errs, fmt.Errorf("document window %s requires a sortBy", frame))
	}
	o.Frame = frame

	return o, errs
}

func compileWindow(w *v1alpha1.Window) (window.Frame, error) {
	if w == nil {
		return window.DefaultFrame(), nil
	}

	if w.Range != nil || w.Unit != "" {
		return window.Frame{}, errors.New("range windows are not supported")
	}

	if w.Documents == nil {
		return window.Frame{}, errors.New("window must specify 'documents'")
	}

	return window.ParseFrame(w.Documents)
}

// IsPartitioned returns true if the plan evaluates a partition key per document.
func (p *Plan) IsPartitioned() bool {
	return p.PartitionBy != nil
}

// Validate checks the plan structure.
func (p *Plan) Validate() error {
	var errs error
	seen := map[string]bool{}
	for i := range p.Outputs {
		o := &p.Outputs[i]
		if seen[o.Field] {
			errs = multierr.Append(errs, fmt.Errorf("duplicate output field %q", o.Field))
		}
		seen[o.Field] = true
		if err := o.Frame.Validate(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("output field %q: %w", o.Field, err))
		}
	}
	return errs
}

// DeepCopy returns a copy of the plan.
func (p *Plan) DeepCopy() *Plan {
	if p == nil {
		return nil
	}
	out := *p
	out.PartitionBy = p.PartitionBy.DeepCopy()
	out.ElidedPartitionBy = p.ElidedPartitionBy.DeepCopy()
	out.SortBy = append(v1alpha1.SortSpec(nil), p.SortBy...)
	out.Outputs = make([]Output, len(p.Outputs))
	for i := range p.Outputs {
		out.Outputs[i] = p.Outputs[i]
		out.Outputs[i].Argument = *p.Outputs[i].Argument.DeepCopy()
	}
	out.Rules = append([]string(nil), p.Rules...)
	return &out
}

func (p *Plan) String() string {
	var b strings.Builder
	b.WriteString("Plan:\n")
	if p.Sort {
		fmt.Fprintf(&b, "  Sort: %v\n", p.SortBy.Fields())
	}
	if p.PartitionBy != nil {
		fmt.Fprintf(&b, "  PartitionBy: %s\n", p.PartitionBy.String())
	} else {
		b.WriteString("  PartitionBy: <none>\n")
	}
	b.WriteString("  Outputs:")
	for i := range p.Outputs {
		fmt.Fprintf(&b, "\n    %s", p.Outputs[i].String())
	}
	b.WriteString("\n")
	return b.String()
}
