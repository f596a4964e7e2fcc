package core

import (
	"fmt"
	"maps"
	"math"
)

// Recognized configuration keys.
const (
	KeyCacheDirectory   = "CacheDirectory"
	KeyMemoryLimitMB    = "MemoryLimitMB"
	KeyMaxCallStackSize = "MaxCallStackSize"
)

// Config holds engine tuning parameters as an opaque key/value mapping.
// Absent keys resolve to the default passed to the accessor; a present key
// of the wrong type is a *ConfigError.
type Config map[string]any

// Clone returns a shallow copy so the caller's map can no longer affect
// the captured configuration.
func (c Config) Clone() Config {
	if c == nil {
		return Config{}
	}
	return maps.Clone(c)
}

// String returns the string value for key, or def when unset.
func (c Config) String(key, def string) (string, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return def, &ConfigError{Key: key, Err: fmt.Errorf("expected string, got %T", v)}
	}
	return s, nil
}

// Int returns the integer value for key, or def when unset. Whole float64
// values are accepted since decoded YAML and JSON numbers may arrive that way.
func (c Config) Int(key string, def int) (int, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return def, nil
	}
	outOfRange := func() error {
		return &ConfigError{Key: key, Err: fmt.Errorf("integer %v out of range", v)}
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		if n > math.MaxInt || n < math.MinInt {
			return def, outOfRange()
		}
		return int(n), nil
	case uint64:
		if n > math.MaxInt {
			return def, outOfRange()
		}
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return def, &ConfigError{Key: key, Err: fmt.Errorf("expected integer, got %v", n)}
		}
		// float64(math.MaxInt) rounds up to 2^63, which int cannot hold.
		if n >= float64(math.MaxInt) || n < float64(math.MinInt) {
			return def, outOfRange()
		}
		return int(n), nil
	default:
		return def, &ConfigError{Key: key, Err: fmt.Errorf("expected integer, got %T", v)}
	}
}

// Bool returns the boolean value for key, or def when unset.
func (c Config) Bool(key string, def bool) (bool, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return def, &ConfigError{Key: key, Err: fmt.Errorf("expected bool, got %T", v)}
	}
	return b, nil
}
