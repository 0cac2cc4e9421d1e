package common

import (
	"fmt"
	"math"
	"strings"
)

// StringArg returns the trimmed string argument name, or "".
func StringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return strings.TrimSpace(s)
}

// BoolArg returns the boolean argument name, or def when it is absent.
// The strings "true" and "false" are accepted as well.
func BoolArg(args map[string]any, name string, def bool) (bool, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return def, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return false, fmt.Errorf("%s must be a boolean", name)
}

// IntArg returns the integral number argument name, or def when it is absent.
// JSON numbers arrive as float64.
func IntArg(args map[string]any, name string, def int64) (int64, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return def, nil
	}
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	default:
		return 0, fmt.Errorf("%s must be a number", name)
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return int64(f), nil
}
