// Package pipeline executes window stages over sorted document streams.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/go-logr/logr"

	"github.com/l7mp/windowfields/pkg/api/v1alpha1"
	"github.com/l7mp/windowfields/pkg/expression"
	"github.com/l7mp/windowfields/pkg/metrics"
	"github.com/l7mp/windowfields/pkg/object"
	"github.com/l7mp/windowfields/pkg/plan"
)

// State is the execution state of an engine.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateEvaluating
	StateEmitting
	StateDrained
	StateFailed
	StateCanceled
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateEvaluating:
		return "evaluating"
	case StateEmitting:
		return "emitting"
	case StateDrained:
		return "drained"
	case StateFailed:
		return "failed"
	case StateCanceled:
		return "canceled"
	default:
		return "<unknown>"
	}
}

// IsTerminal returns true if the engine will not produce any more documents.
func (s State) IsTerminal() bool {
	return s == StateDrained || s == StateFailed || s == StateCanceled
}

var errUninitialized = errors.New("engine is not initialized")

// Options configure an engine.
type Options struct {
	// Log is the logger of the engine.
	Log logr.Logger
	// Metrics collects the engine metrics, unregistered metrics are used if nil.
	Metrics *metrics.Metrics
	// MaxBufferedDocuments caps the partition buffer, 0 means no limit.
	MaxBufferedDocuments int
	// DisableOptimizer runs the plan as compiled.
	DisableOptimizer bool
}

// Engine evaluates a window stage over a source. An engine runs a single execution and must not
// be used concurrently.
type Engine struct {
	plan    *plan.Plan
	source  Source
	opts    Options
	log     logr.Logger
	metrics *metrics.Metrics

	state State
	err   error

	keys    partitionKeyEvaluator
	tracker boundaryTracker
	buf     partitionBuffer
	execs   []*executor

	// first document of the next partition, pulled to observe the end of the current one
	pending    object.Document
	hasPending bool

	// next position to emit in the current partition
	pos int
	// all documents of the current partition are buffered
	complete bool
	eof      bool

	// documents after the current one the frames need, unless some frame needs the whole
	// partition
	lookahead int
	needAll   bool
}

// Compile compiles a stage declaration into a plan and, unless disabled in the options, runs the
// optimizer on it.
func Compile(spec *v1alpha1.SetWindowFields, opts Options) (*plan.Plan, error) {
	log := opts.Log
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	p, err := plan.New(spec)
	if err != nil {
		return nil, NewInvalidSpecError(err)
	}

	if !opts.DisableOptimizer {
		if err := plan.NewRewriteEngine(log.WithName("optimizer")).Optimize(p); err != nil {
			return nil, NewInvalidSpecError(err)
		}
	}

	return p, nil
}

// NewEngine compiles a stage declaration and creates an engine that runs it over the source.
func NewEngine(spec *v1alpha1.SetWindowFields, source Source, opts Options) (*Engine, error) {
	p, err := Compile(spec, opts)
	if err != nil {
		return nil, err
	}

	return NewEngineFromPlan(p, source, opts)
}

// NewEngineFromPlan creates an engine for a compiled plan.
func NewEngineFromPlan(p *plan.Plan, source Source, opts Options) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, NewInvalidSpecError(err)
	}

	log := opts.Log
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	log = log.WithName("engine")

	m := opts.Metrics
	if m == nil {
		m = metrics.New(nil)
	}

	e := &Engine{
		plan:    p,
		source:  source,
		opts:    opts,
		log:     log,
		metrics: m,
		keys:    partitionKeyEvaluator{expr: p.PartitionBy, log: log},
		execs:   make([]*executor, len(p.Outputs)),
	}

	for i := range p.Outputs {
		o := &p.Outputs[i]
		e.execs[i] = newExecutor(o, i)
		if n, ok := o.Frame.Lookahead(); !ok {
			e.needAll = true
		} else if n > e.lookahead {
			e.lookahead = n
		}
	}

	e.state = StateReady
	log.V(1).Info("engine ready", "plan", p.String(), "lookahead", e.lookahead,
		"whole-partition", e.needAll)

	return e, nil
}

// Plan returns the plan executed by the engine.
func (e *Engine) Plan() *plan.Plan { return e.plan }

// State returns the current state of the engine.
func (e *Engine) State() State { return e.state }

// Err returns the error that terminated the engine, if any.
func (e *Engine) Err() error { return e.err }

// Next returns the next output document. It returns io.EOF once the input is exhausted, the
// context error if the context is done, and a *Error on any other failure. Once terminated, the
// engine keeps returning the same error. Documents are returned as soon as their frames are
// resolved, so a caller may receive output before a later document fails the execution; use
// Collect to get either the complete output or an error.
func (e *Engine) Next(ctx context.Context) (object.Document, error) {
	switch e.state {
	case StateUninitialized:
		return nil, errUninitialized
	case StateDrained:
		return nil, io.EOF
	case StateFailed, StateCanceled:
		return nil, e.err
	}

	doc, err := e.next(ctx)
	if err == nil {
		return doc, nil
	}

	switch {
	case errors.Is(err, io.EOF):
		e.state = StateDrained
		e.err = io.EOF
		e.log.V(1).Info("input exhausted")
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		e.cancel(err)
		return nil, e.err
	default:
		e.state = StateFailed
		e.err = err
		e.metrics.Failures.WithLabelValues(CodeOf(err).String()).Inc()
		e.log.Error(err, "execution failed")
	}

	e.release()
	return nil, e.err
}

// cancel terminates the execution on a done context and releases the partition state.
func (e *Engine) cancel(err error) {
	e.state = StateCanceled
	e.err = err
	e.log.V(1).Info("execution canceled", "reason", err.Error())
	e.release()
}

func (e *Engine) next(ctx context.Context) (object.Document, error) {
	e.state = StateEvaluating
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if e.pos < e.buf.Len() && e.canEmit() {
			e.state = StateEmitting
			return e.emit()
		}

		if e.complete {
			if !e.hasPending {
				return nil, io.EOF
			}
			doc := e.pending
			e.pending, e.hasPending = nil, false
			e.startPartition()
			if err := e.push(doc); err != nil {
				return nil, err
			}
			continue
		}

		if err := e.pull(ctx); err != nil {
			return nil, err
		}
	}
}

// canEmit returns true if the frames of the document at the current position can be resolved.
func (e *Engine) canEmit() bool {
	if e.complete {
		return true
	}
	return !e.needAll && e.buf.Len() > e.pos+e.lookahead
}

// pull reads the next document and either adds it to the current partition or sets it aside as
// the first document of the next one.
func (e *Engine) pull(ctx context.Context) error {
	doc, err := e.source.Next(ctx)
	if errors.Is(err, io.EOF) {
		e.eof, e.complete = true, true
		return nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return NewUpstreamFailureError(err)
	}
	e.metrics.DocumentsIn.Inc()

	key, err := e.keys.evaluate(doc)
	if err != nil {
		return err
	}

	if e.tracker.observe(key) {
		if e.buf.Len() > 0 {
			e.log.V(2).Info("partition closed", "size", e.buf.Len())
			e.pending, e.hasPending = doc, true
			e.complete = true
			return nil
		}
		e.startPartition()
	}

	return e.push(doc)
}

func (e *Engine) startPartition() {
	e.buf.reset()
	for _, x := range e.execs {
		x.reset()
	}
	e.pos = 0
	e.complete = false
	e.metrics.Partitions.Inc()
	e.log.V(2).Info("partition started", "key", e.tracker.last)
}

func (e *Engine) push(doc object.Document) error {
	if limit := e.opts.MaxBufferedDocuments; limit > 0 && e.buf.Buffered() >= limit {
		return NewExceededMemoryLimitError(limit)
	}

	args := make([]any, len(e.plan.Outputs))
	for i := range e.plan.Outputs {
		o := &e.plan.Outputs[i]
		v, err := o.Argument.Evaluate(expression.EvalCtx{Object: doc, Log: e.log})
		if err != nil {
			return NewExpressionFailureError(fmt.Sprintf("output field %q", o.Field), err)
		}
		args[i] = v
	}

	e.buf.push(entry{doc: doc, args: args})
	e.metrics.BufferedDocuments.Set(float64(e.buf.Buffered()))
	return nil
}

func (e *Engine) emit() (object.Document, error) {
	pos, size := e.pos, e.buf.Len()
	ret := object.DeepCopy(e.buf.at(pos).doc)
	if ret == nil {
		ret = object.New()
	}

	for _, x := range e.execs {
		v, err := x.value(&e.buf, pos, size)
		if err != nil {
			return nil, err
		}
		if err := expression.SetJSONPath(x.out.Field, object.DeepCopyValue(v), ret); err != nil {
			return nil, fmt.Errorf("cannot set output field %q: %w", x.out.Field, err)
		}
	}

	e.pos++
	e.trim()
	e.metrics.DocumentsOut.Inc()
	e.log.V(4).Info("document emitted", "position", pos, "partition-size", size)

	return ret, nil
}

// trim releases the buffered documents no frame can reach anymore.
func (e *Engine) trim() {
	low := e.pos
	for _, x := range e.execs {
		if n := x.need(e.pos); n < low {
			low = n
		}
	}
	e.buf.release(low)
	e.metrics.BufferedDocuments.Set(float64(e.buf.Buffered()))
}

func (e *Engine) release() {
	e.buf.reset()
	e.pending, e.hasPending = nil, false
	for _, x := range e.execs {
		x.reset()
	}
	e.tracker.reset()
	e.metrics.BufferedDocuments.Set(0)
}

// Collect runs the engine to the end and returns all output documents. No documents are returned
// if the execution fails.
func (e *Engine) Collect(ctx context.Context) ([]object.Document, error) {
	ret := []object.Document{}
	for {
		doc, err := e.Next(ctx)
		if errors.Is(err, io.EOF) {
			return ret, nil
		}
		if err != nil {
			return nil, err
		}
		ret = append(ret, doc)
	}
}

// Result is an output document or the error that terminated the execution.
type Result struct {
	Document object.Document
	Err      error
}

// Stream runs the engine on a separate goroutine and sends the output documents on the returned
// channel. A terminal error other than io.EOF is sent as the last result. The channel is closed
// when the execution ends or the context is done, in the latter case the engine is left in the
// canceled state.
func (e *Engine) Stream(ctx context.Context) <-chan Result {
	ch := make(chan Result)
	go func() {
		defer close(ch)
		for {
			doc, err := e.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}

			res := Result{Document: doc, Err: err}
			select {
			case ch <- res:
			case <-ctx.Done():
				if !e.state.IsTerminal() {
					e.cancel(ctx.Err())
				}
				return
			}

			if err != nil {
				return
			}
		}
	}()
	return ch
}
