package rules

import (
	"fmt"
	"math"
)

// Context is the flattened evaluation context. Values are float64, string
// or bool; dotted keys like "damage.count" address nested signals.
type Context map[string]any

type node interface {
	eval(ctx Context) (any, error)
}

type literal struct {
	val any
}

func (l literal) eval(Context) (any, error) { return l.val, nil }

type identNode struct {
	name string
}

func (n identNode) eval(ctx Context) (any, error) {
	v, ok := ctx[n.name]
	if !ok {
		return nil, fmt.Errorf("unknown identifier %q", n.name)
	}
	switch v := v.(type) {
	case float64, string, bool:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return nil, fmt.Errorf("identifier %q has unsupported type %T", n.name, v)
	}
}

type notNode struct {
	x node
}

func (n notNode) eval(ctx Context) (any, error) {
	v, err := n.x.eval(ctx)
	if err != nil {
		return nil, err
	}
	b, err := truthy(v)
	if err != nil {
		return nil, err
	}
	return !b, nil
}

type negNode struct {
	x node
}

func (n negNode) eval(ctx Context) (any, error) {
	v, err := n.x.eval(ctx)
	if err != nil {
		return nil, err
	}
	f, ok := v.(float64)
	if !ok {
		return nil, fmt.Errorf("cannot negate %T", v)
	}
	return -f, nil
}

type boolOp struct {
	op   tokenKind // tokAnd or tokOr
	l, r node
}

func (n boolOp) eval(ctx Context) (any, error) {
	lv, err := n.l.eval(ctx)
	if err != nil {
		return nil, err
	}
	lb, err := truthy(lv)
	if err != nil {
		return nil, err
	}
	// Short circuit.
	if n.op == tokAnd && !lb {
		return false, nil
	}
	if n.op == tokOr && lb {
		return true, nil
	}
	rv, err := n.r.eval(ctx)
	if err != nil {
		return nil, err
	}
	rb, err := truthy(rv)
	if err != nil {
		return nil, err
	}
	return rb, nil
}

type compareOp struct {
	op   tokenKind
	l, r node
}

func (n compareOp) eval(ctx Context) (any, error) {
	lv, err := n.l.eval(ctx)
	if err != nil {
		return nil, err
	}
	rv, err := n.r.eval(ctx)
	if err != nil {
		return nil, err
	}

	if lf, lok := lv.(float64); lok {
		rf, rok := rv.(float64)
		if !rok {
			return nil, fmt.Errorf("cannot compare number with %T", rv)
		}
		return compareFloats(n.op, lf, rf), nil
	}
	if ls, lok := lv.(string); lok {
		rs, rok := rv.(string)
		if !rok {
			return nil, fmt.Errorf("cannot compare string with %T", rv)
		}
		return compareStrings(n.op, ls, rs), nil
	}
	if lb, lok := lv.(bool); lok {
		rb, rok := rv.(bool)
		if !rok {
			return nil, fmt.Errorf("cannot compare bool with %T", rv)
		}
		switch n.op {
		case tokEq:
			return lb == rb, nil
		case tokNeq:
			return lb != rb, nil
		default:
			return nil, fmt.Errorf("bools only support == and !=")
		}
	}
	return nil, fmt.Errorf("unsupported comparison operand %T", lv)
}

func compareFloats(op tokenKind, l, r float64) bool {
	switch op {
	case tokEq:
		return l == r
	case tokNeq:
		return l != r
	case tokLt:
		return l < r
	case tokLte:
		return l <= r
	case tokGt:
		return l > r
	case tokGte:
		return l >= r
	}
	return false
}

func compareStrings(op tokenKind, l, r string) bool {
	switch op {
	case tokEq:
		return l == r
	case tokNeq:
		return l != r
	case tokLt:
		return l < r
	case tokLte:
		return l <= r
	case tokGt:
		return l > r
	case tokGte:
		return l >= r
	}
	return false
}

type arithOp struct {
	op   tokenKind
	l, r node
}

func (n arithOp) eval(ctx Context) (any, error) {
	lv, err := n.l.eval(ctx)
	if err != nil {
		return nil, err
	}
	rv, err := n.r.eval(ctx)
	if err != nil {
		return nil, err
	}
	lf, lok := lv.(float64)
	rf, rok := rv.(float64)
	if !lok || !rok {
		return nil, fmt.Errorf("arithmetic requires numbers, got %T and %T", lv, rv)
	}
	switch n.op {
	case tokPlus:
		return lf + rf, nil
	case tokMinus:
		return lf - rf, nil
	case tokStar:
		return lf * rf, nil
	case tokSlash:
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return lf / rf, nil
	case tokPct:
		if rf == 0 {
			return nil, fmt.Errorf("modulo by zero")
		}
		return math.Mod(lf, rf), nil
	}
	return nil, fmt.Errorf("unknown arithmetic operator")
}

// truthy converts a value to a match decision: bools pass through, numbers
// match when non-zero, strings when non-empty.
func truthy(v any) (bool, error) {
	switch v := v.(type) {
	case bool:
		return v, nil
	case float64:
		return v != 0, nil
	case string:
		return v != "", nil
	default:
		return false, fmt.Errorf("value of type %T has no truth value", v)
	}
}
