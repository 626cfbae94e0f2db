package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Tool arguments arrive as decoded JSON, so numbers are float64 and objects
// are map[string]any. These helpers accept those shapes plus the native Go
// types used when tools are called directly.

// StringArg returns args[key] as a string, or def when absent.
func StringArg(args map[string]any, key, def string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidArgType, key, v)
	}
	return s, nil
}

// IntArg returns args[key] as an int, or def when absent.
func IntArg(args map[string]any, key string, def int) (int, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%w: %s must be an integer, got %v", ErrInvalidArgType, key, n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalidArgType, key, err)
		}
		return int(i), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("%w: %s must be an integer, got %q", ErrInvalidArgType, key, n)
		}
		return i, nil
	}
	return 0, fmt.Errorf("%w: %s must be an integer, got %T", ErrInvalidArgType, key, v)
}

// BoolArg returns args[key] as a bool, or def when absent.
func BoolArg(args map[string]any, key string, def bool) (bool, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return false, fmt.Errorf("%w: %s must be a boolean, got %q", ErrInvalidArgType, key, b)
		}
		return parsed, nil
	}
	return false, fmt.Errorf("%w: %s must be a boolean, got %T", ErrInvalidArgType, key, v)
}

// StringMapArg returns args[key] as a string map. Absent yields nil.
func StringMapArg(args map[string]any, key string) (map[string]string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch m := v.(type) {
	case map[string]string:
		return m, nil
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, raw := range m {
			switch val := raw.(type) {
			case string:
				out[k] = val
			case float64, bool, int, int64:
				out[k] = fmt.Sprint(val)
			default:
				return nil, fmt.Errorf("%w: %s.%s must be a scalar, got %T", ErrInvalidArgType, key, k, raw)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %s must be an object, got %T", ErrInvalidArgType, key, v)
}
