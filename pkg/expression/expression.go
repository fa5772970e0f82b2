package expression

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-logr/logr"
)

type Unstructured = map[string]any

// EvalCtx is the context an expression is evaluated in: "$." refers to the Object and "$$." to
// the local Subject of list operators.
type EvalCtx struct {
	Object, Subject any
	Log             logr.Logger
}

// Expression is a node of the expression tree. Terminal expressions hold a Literal, operators
// hold their argument in Arg.
type Expression struct {
	Op      string
	Arg     *Expression
	Literal any
}

func (e *Expression) Evaluate(ctx EvalCtx) (any, error) {
	if len(e.Op) == 0 {
		return nil, NewInvalidArgumentsError(fmt.Sprintf("empty operator in expession %q", e.String()))
	}

	switch e.Op {
	case "@null":
		return nil, nil

	case "@bool":
		lit, err := e.literalOrArg(ctx)
		if err != nil {
			return nil, err
		}

		v, err := AsBool(lit)
		if err != nil {
			return nil, NewExpressionError(e, err)
		}

		ctx.Log.V(8).Info("eval ready", "expression", e.String(), "result", v)

		return v, nil

	case "@int":
		lit, err := e.literalOrArg(ctx)
		if err != nil {
			return nil, err
		}

		v, err := AsInt(lit)
		if err != nil {
			return nil, NewExpressionError(e, err)
		}

		ctx.Log.V(8).Info("eval ready", "expression", e.String(), "result", v)

		return v, nil

	case "@float":
		lit, err := e.literalOrArg(ctx)
		if err != nil {
			return nil, err
		}

		v, err := AsFloat(lit)
		if err != nil {
			return nil, NewExpressionError(e, err)
		}

		ctx.Log.V(8).Info("eval ready", "expression", e.String(), "result", v)

		return v, nil

	case "@string":
		lit, err := e.literalOrArg(ctx)
		if err != nil {
			return nil, err
		}

		str, err := AsString(lit)
		if err != nil {
			return nil, NewExpressionError(e, err)
		}

		ret, err := GetJSONPath(ctx, str)
		if err != nil {
			return nil, NewExpressionError(e, err)
		}

		ctx.Log.V(8).Info("eval ready", "expression", e.String(), "result", ret)

		return ret, nil

	case "@list":
		ret := []any{}
		if e.Arg != nil {
			// eval stacked expressions stored in e.Arg
			v, err := e.Arg.Evaluate(ctx)
			if err != nil {
				return nil, err
			}

			vs, ok := v.([]any)
			if !ok {
				return nil, NewExpressionError(e, errors.New("argument must be a list"))
			}

			ret = vs
		} else {
			// literal lists stored in Literal
			vs, ok := e.Literal.([]Expression)
			if !ok {
				return nil, NewExpressionError(e,
					errors.New("argument must be an expression list"))
			}

			for _, exp := range vs {
				res, err := exp.Evaluate(ctx)
				if err != nil {
					return nil, err
				}
				ret = append(ret, res)
			}
		}

		ctx.Log.V(8).Info("eval ready", "expression", e.String(), "result", ret)

		return ret, nil

	case "@dict":
		ret := Unstructured{}
		if e.Arg != nil {
			// eval stacked expressions stored in e.Arg
			v, err := e.Arg.Evaluate(ctx)
			if err != nil {
				return nil, err
			}

			// must be Unstructured
			vs, ok := v.(Unstructured)
			if !ok {
				return nil, NewExpressionError(e, errors.New("argument must be a map"))
			}
			ret = vs
		} else {
			vm, ok := e.Literal.(map[string]Expression)
			if !ok {
				return nil, NewExpressionError(e,
					errors.New("argument must be a string->expression map"))
			}

			for k, exp := range vm {
				// evaluate arguments
				res, err := exp.Evaluate(ctx)
				if err != nil {
					return nil, err
				}
				if err := SetJSONPath(k, res, ret); err != nil {
					return nil, NewExpressionError(e,
						fmt.Errorf("could not deference JSON \"set\" expression: %w", err))
				}
			}
		}

		ctx.Log.V(8).Info("eval ready", "expression", e.String(), "result", ret)

		return ret, nil
	}

	// list commands: must eval the arg themselves
	switch e.Op {
	case "@filter", "@map", "@any", "@all", "@none":
		return e.evaluateListOp(ctx)
	case "@cond":
		return e.evaluateCond(ctx)
	}

	// operators
	// evaluate subexpression
	if e.Arg == nil {
		return nil, NewExpressionError(e, errors.New("empty argument list"))
	}

	arg, err := e.Arg.Evaluate(ctx)
	if err != nil {
		return nil, err
	}

	if e.Op[0] != '@' {
		// literal map
		return Unstructured{e.Op: arg}, nil
	}

	v, err := e.evaluateOp(arg)
	if err != nil {
		return nil, NewExpressionError(e, err)
	}

	ctx.Log.V(8).Info("eval ready", "expression", e.String(), "arg", arg, "result", v)

	return v, nil
}

func (e *Expression) literalOrArg(ctx EvalCtx) (any, error) {
	if e.Arg == nil {
		return e.Literal, nil
	}
	// eval stacked expressions stored in e.Arg
	return e.Arg.Evaluate(ctx)
}

func (e *Expression) evaluateOp(arg any) (any, error) {
	switch e.Op {
	// unary
	case "@isnil":
		return arg == nil, nil

	case "@exists":
		return arg != nil, nil

	case "@type":
		return KindOf(arg).String(), nil

	case "@not":
		b, err := AsBool(arg)
		if err != nil {
			return nil, err
		}
		return !b, nil

	case "@abs", "@ceil", "@floor":
		if arg == nil {
			return nil, nil
		}
		n, ok := toNumber(arg)
		if !ok {
			return nil, fmt.Errorf("argument is not numeric: %s", stringOf(arg))
		}
		switch {
		case e.Op == "@abs":
			return absNumber(n).value(), nil
		case n.isInt:
			return n.i, nil
		case e.Op == "@ceil":
			return math.Ceil(n.f), nil
		default:
			return math.Floor(n.f), nil
		}

	case "@len":
		args, err := AsList(arg)
		if err != nil {
			return nil, err
		}
		return int64(len(args)), nil

	// binary
	case "@eq", "@ne", "@lt", "@lte", "@gt", "@gte":
		args, err := AsList(arg)
		if err != nil {
			return nil, err
		}
		if len(args) != 2 {
			return nil, errors.New("expected 2 arguments")
		}

		c := Compare(args[0], args[1])
		switch e.Op {
		case "@eq":
			return c == 0, nil
		case "@ne":
			return c != 0, nil
		case "@lt":
			return c < 0, nil
		case "@lte":
			return c <= 0, nil
		case "@gt":
			return c > 0, nil
		default:
			return c >= 0, nil
		}

	case "@in": // @in: [elem, list]
		args, err := AsList(arg)
		if err != nil {
			return nil, err
		}
		if len(args) != 2 {
			return nil, errors.New("expected 2 arguments")
		}
		list, err := AsList(args[1])
		if err != nil {
			return nil, err
		}
		for i := range list {
			if Equal(list[i], args[0]) {
				return true, nil
			}
		}
		return false, nil

	// list bool
	case "@and":
		args, err := AsBoolList(arg)
		if err != nil {
			return nil, err
		}
		v := true
		for i := range args {
			v = v && args[i]
		}
		return v, nil

	case "@or":
		args, err := AsBoolList(arg)
		if err != nil {
			return nil, err
		}
		v := false
		for i := range args {
			v = v || args[i]
		}
		return v, nil

	// arithmetic
	case "@sum":
		// non-numeric elements are ignored
		args, err := AsList(arg)
		if err != nil {
			if n, ok := toNumber(arg); ok {
				return n.value(), nil
			}
			return int64(0), nil
		}
		v := number{isInt: true}
		for _, a := range args {
			if n, ok := toNumber(a); ok {
				v = addNumbers(v, n)
			}
		}
		return v.value(), nil

	case "@add", "@mul":
		args, err := AsList(arg)
		if err != nil {
			return nil, err
		}
		ns, ok, err := numericArgs(args)
		if err != nil || !ok {
			return nil, err
		}
		if len(ns) == 0 {
			return nil, errors.New("expected at least 1 argument")
		}
		v := ns[0]
		for _, n := range ns[1:] {
			if e.Op == "@add" {
				v = addNumbers(v, n)
			} else {
				v = mulNumbers(v, n)
			}
		}
		return v.value(), nil

	case "@sub", "@div", "@mod":
		args, err := AsList(arg)
		if err != nil {
			return nil, err
		}
		if len(args) != 2 {
			return nil, errors.New("expected 2 arguments")
		}
		ns, ok, err := numericArgs(args)
		if err != nil || !ok {
			return nil, err
		}
		var v number
		switch e.Op {
		case "@sub":
			v = subNumbers(ns[0], ns[1])
		case "@div":
			v, err = divNumbers(ns[0], ns[1])
		default:
			v, err = modNumbers(ns[0], ns[1])
		}
		if err != nil {
			return nil, err
		}
		return v.value(), nil

	case "@concat":
		args, err := AsStringList(arg)
		if err != nil {
			return nil, err
		}
		v := ""
		for i := range args {
			v += args[i]
		}
		return v, nil
	}

	return nil, errors.New("unknown op")
}

// evaluateListOp evaluates the list operators of the form {"@op": [exp, list]}: exp is
// evaluated on each element of list with the element as the local subject.
func (e *Expression) evaluateListOp(ctx EvalCtx) (any, error) {
	args, err := AsExpOrExpList(e.Arg)
	if err != nil {
		return nil, NewExpressionError(e, err)
	}

	if len(args) != 2 {
		return nil, NewExpressionError(e,
			errors.New("invalid arguments: expected 2 arguments"))
	}

	exp := args[0]

	rawArg, err := args[1].Evaluate(ctx)
	if err != nil {
		return nil, NewExpressionError(e, fmt.Errorf("failed to evaluate arguments: %w", err))
	}

	list, err := AsList(rawArg)
	if err != nil {
		return nil, NewExpressionError(e, fmt.Errorf("invalid arguments: %w", err))
	}

	vs := []any{}
	for _, input := range list {
		res, err := exp.Evaluate(EvalCtx{Object: ctx.Object, Subject: input, Log: ctx.Log})
		if err != nil {
			return nil, err
		}

		if e.Op == "@map" {
			vs = append(vs, res)
			continue
		}

		b, err := AsBool(res)
		if err != nil {
			return nil, NewExpressionError(e,
				fmt.Errorf("expected conditional expression to "+
					"evaluate to boolean: %w", err))
		}

		switch e.Op {
		case "@filter":
			if b {
				vs = append(vs, input)
			}
		case "@any":
			if b {
				return true, nil
			}
		case "@none":
			if b {
				return false, nil
			}
		case "@all":
			if !b {
				return false, nil
			}
		}
	}

	ctx.Log.V(8).Info("eval ready", "expression", e.String(), "result", vs)

	switch e.Op {
	case "@any":
		return false, nil
	case "@none", "@all":
		return true, nil
	}

	return vs, nil
}

// evaluateCond evaluates {"@cond": [cond, then, else]} and evaluates only the selected branch.
func (e *Expression) evaluateCond(ctx EvalCtx) (any, error) {
	args, err := AsExpOrExpList(e.Arg)
	if err != nil {
		return nil, NewExpressionError(e, err)
	}

	if len(args) != 3 {
		return nil, NewExpressionError(e,
			errors.New("invalid arguments: expected 3 arguments"))
	}

	res, err := args[0].Evaluate(ctx)
	if err != nil {
		return nil, err
	}

	b, err := AsBool(res)
	if err != nil {
		return nil, NewExpressionError(e,
			fmt.Errorf("expected conditional expression to evaluate to boolean: %w", err))
	}

	if b {
		return args[1].Evaluate(ctx)
	}
	return args[2].Evaluate(ctx)
}
