package plugin

import "fmt"

// StringOption reads an optional string option.
func StringOption(options map[string]any, key, def string) (string, error) {
	v, ok := options[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("option %s must be a string, got %T", key, v)
	}
	return s, nil
}

// BoolOption reads an optional boolean option.
func BoolOption(options map[string]any, key string, def bool) (bool, error) {
	v, ok := options[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("option %s must be a boolean, got %T", key, v)
	}
	return b, nil
}

// IntOption reads an optional integer option. YAML yields int and JSON yields
// float64; both are accepted when integral.
func IntOption(options map[string]any, key string, def int) (int, error) {
	v, ok := options[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("option %s must be an integer, got %v", key, n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("option %s must be an integer, got %T", key, v)
	}
}
