package sandbox

import (
	"fmt"
)

type env struct {
	vars map[string]any
}

func newEnv() *env {
	return &env{vars: map[string]any{}}
}

func execStmt(e *env, s stmt) error {
	switch st := s.(type) {
	case assignStmt:
		v, err := evalExpr(e, st.expr)
		if err != nil {
			return err
		}
		e.vars[st.name] = v
		return nil
	case exprStmt:
		_, err := evalExpr(e, st.expr)
		return err
	default:
		return fmt.Errorf("unknown statement type %T", s)
	}
}

func evalExpr(e *env, x expr) (any, error) {
	switch v := x.(type) {
	case numberLit:
		return float64(v), nil
	case stringLit:
		return string(v), nil
	case identExpr:
		name := string(v)
		if name == "pi" {
			return mathPi, nil
		}
		val, ok := e.vars[name]
		if !ok {
			return nil, fmt.Errorf("undefined name %q", name)
		}
		return val, nil
	case listLit:
		out := make([]any, len(v.items))
		for i, it := range v.items {
			val, err := evalExpr(e, it)
			if err != nil {
				return nil, err
			}
			out[i] = val
		}
		return out, nil
	case dictLit:
		out := map[string]any{}
		for i := range v.keys {
			k, err := evalExpr(e, v.keys[i])
			if err != nil {
				return nil, err
			}
			val, err := evalExpr(e, v.vals[i])
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(k)] = val
		}
		return out, nil
	case unaryExpr:
		val, err := evalExpr(e, v.x)
		if err != nil {
			return nil, err
		}
		f, err := toFloat(val)
		if err != nil {
			return nil, err
		}
		switch v.op {
		case "-":
			return -f, nil
		case "!":
			return f == 0, nil
		}
		return nil, fmt.Errorf("unknown unary operator %q", v.op)
	case binaryExpr:
		return evalBinary(e, v)
	case callExpr:
		return evalCall(e, v)
	case indexExpr:
		return evalIndex(e, v)
	default:
		return nil, fmt.Errorf("unknown expression type %T", x)
	}
}

func evalBinary(e *env, v binaryExpr) (any, error) {
	l, err := evalExpr(e, v.left)
	if err != nil {
		return nil, err
	}
	r, err := evalExpr(e, v.right)
	if err != nil {
		return nil, err
	}
	if v.op == "+" {
		ls, lok := l.(string)
		rs, rok := r.(string)
		if lok && rok {
			return ls + rs, nil
		}
	}
	switch v.op {
	case "==", "!=", "<", "<=", ">", ">=":
		lf, err := toFloat(l)
		if err != nil {
			return nil, err
		}
		rf, err := toFloat(r)
		if err != nil {
			return nil, err
		}
		switch v.op {
		case "==":
			return lf == rf, nil
		case "!=":
			return lf != rf, nil
		case "<":
			return lf < rf, nil
		case "<=":
			return lf <= rf, nil
		case ">":
			return lf > rf, nil
		case ">=":
			return lf >= rf, nil
		}
	}
	lf, err := toFloat(l)
	if err != nil {
		return nil, err
	}
	rf, err := toFloat(r)
	if err != nil {
		return nil, err
	}
	switch v.op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return lf / rf, nil
	case "%":
		if rf == 0 {
			return nil, fmt.Errorf("modulo by zero")
		}
		return float64(int(lf) % int(rf)), nil
	}
	return nil, fmt.Errorf("unknown binary operator %q", v.op)
}

func evalCall(e *env, v callExpr) (any, error) {
	if mf, ok := mathFuncs[v.name]; ok {
		if len(v.args) != 1 {
			return nil, fmt.Errorf("%s takes exactly one argument", v.name)
		}
		arg, err := evalExpr(e, v.args[0])
		if err != nil {
			return nil, err
		}
		f, err := toFloat(arg)
		if err != nil {
			return nil, err
		}
		return mf(f), nil
	}
	fn, ok := builtins[v.name]
	if !ok {
		return nil, fmt.Errorf("name %q is not defined or not permitted", v.name)
	}
	args := make([]any, len(v.args))
	for i, a := range v.args {
		val, err := evalExpr(e, a)
		if err != nil {
			return nil, err
		}
		args[i] = val
	}
	return fn(args)
}

func evalIndex(e *env, v indexExpr) (any, error) {
	base, err := evalExpr(e, v.x)
	if err != nil {
		return nil, err
	}
	idx, err := evalExpr(e, v.idx)
	if err != nil {
		return nil, err
	}
	switch b := base.(type) {
	case []any:
		i, err := toInt(idx)
		if err != nil {
			return nil, err
		}
		n, ok := i.(int)
		if !ok {
			return nil, fmt.Errorf("list index must be an integer")
		}
		if n < 0 || n >= len(b) {
			return nil, fmt.Errorf("list index %d out of range", n)
		}
		return b[n], nil
	case map[string]any:
		v, ok := b[fmt.Sprint(idx)]
		if !ok {
			return nil, fmt.Errorf("key %v not found", idx)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("value of type %T is not indexable", base)
	}
}
