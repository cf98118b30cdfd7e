package sandbox

import "fmt"

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to a number", v)
	}
}

func toInt(v any) (any, error) {
	f, err := toFloat(v)
	if err != nil {
		return nil, err
	}
	return int(f), nil
}

func toList(v any) ([]any, error) {
	switch l := v.(type) {
	case []any:
		return l, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to a list", v)
	}
}

func builtinRange(args []any) (any, error) {
	var start, stop, step int
	switch len(args) {
	case 1:
		n, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		start, stop, step = 0, int(n), 1
	case 2:
		a, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		b, err := toFloat(args[1])
		if err != nil {
			return nil, err
		}
		start, stop, step = int(a), int(b), 1
	case 3:
		a, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		b, err := toFloat(args[1])
		if err != nil {
			return nil, err
		}
		c, err := toFloat(args[2])
		if err != nil {
			return nil, err
		}
		start, stop, step = int(a), int(b), int(c)
	default:
		return nil, fmt.Errorf("range takes 1 to 3 arguments")
	}
	if step == 0 {
		return nil, fmt.Errorf("range step must not be zero")
	}
	var out []any
	if step > 0 {
		for i := start; i < stop; i += step {
			out = append(out, float64(i))
		}
	} else {
		for i := start; i > stop; i += step {
			out = append(out, float64(i))
		}
	}
	return out, nil
}

func builtinLen(args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("len takes exactly one argument")
	}
	switch v := args[0].(type) {
	case []any:
		return float64(len(v)), nil
	case string:
		return float64(len(v)), nil
	case map[string]any:
		return float64(len(v)), nil
	default:
		return nil, fmt.Errorf("object of type %T has no len()", v)
	}
}

func builtinSum(args []any) (any, error) {
	list, err := toList(arg0(args))
	if err != nil {
		return nil, err
	}
	var total float64
	for _, v := range list {
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		total += f
	}
	return total, nil
}

func builtinMinMax(wantMax bool) func([]any) (any, error) {
	return func(args []any) (any, error) {
		var values []any
		if len(args) == 1 {
			list, err := toList(args[0])
			if err == nil && list != nil {
				values = list
			} else {
				values = args
			}
		} else {
			values = args
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("min/max of empty sequence")
		}
		best, err := toFloat(values[0])
		if err != nil {
			return nil, err
		}
		for _, v := range values[1:] {
			f, err := toFloat(v)
			if err != nil {
				return nil, err
			}
			if (wantMax && f > best) || (!wantMax && f < best) {
				best = f
			}
		}
		return best, nil
	}
}

func builtinAbs(args []any) (any, error) {
	f, err := toFloat(arg0(args))
	if err != nil {
		return nil, err
	}
	if f < 0 {
		return -f, nil
	}
	return f, nil
}

func builtinZip(args []any) (any, error) {
	lists := make([][]any, len(args))
	minLen := -1
	for i, a := range args {
		l, err := toList(a)
		if err != nil {
			return nil, err
		}
		lists[i] = l
		if minLen == -1 || len(l) < minLen {
			minLen = len(l)
		}
	}
	if minLen < 0 {
		minLen = 0
	}
	out := make([]any, minLen)
	for i := 0; i < minLen; i++ {
		tuple := make([]any, len(lists))
		for j, l := range lists {
			tuple[j] = l[i]
		}
		out[i] = tuple
	}
	return out, nil
}
