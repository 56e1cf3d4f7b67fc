package engine

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Params are loosely-typed analysis parameters as they arrive from the
// command line or a JSON body. Accessors coerce with spf13/cast and report
// values that cannot be coerced.
type Params map[string]interface{}

// ParseParams builds Params from key=value pairs.
func ParseParams(pairs []string) (Params, error) {
	p := Params{}
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("parameter %q is not key=value", pair)
		}
		p[k] = strings.TrimSpace(v)
	}
	return p, nil
}

// Has reports whether key is set.
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// String returns key as a string, or def when unset.
func (p Params) String(key, def string) (string, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return def, paramError(key, v, err)
	}
	return s, nil
}

// Int returns key as an int, or def when unset.
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return def, paramError(key, v, err)
	}
	return n, nil
}

// Float returns key as a float64, or def when unset.
func (p Params) Float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return def, paramError(key, v, err)
	}
	return f, nil
}

// Bool returns key as a bool, or def when unset.
func (p Params) Bool(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def, paramError(key, v, err)
	}
	return b, nil
}

// Floats returns key as a list of float64. Strings are split on commas.
func (p Params) Floats(key string, def []float64) ([]float64, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	var items []interface{}
	switch t := v.(type) {
	case string:
		for _, s := range strings.Split(t, ",") {
			if s = strings.TrimSpace(s); s != "" {
				items = append(items, s)
			}
		}
	default:
		var err error
		if items, err = cast.ToSliceE(v); err != nil {
			return def, paramError(key, v, err)
		}
	}

	out := make([]float64, 0, len(items))
	for _, item := range items {
		f, err := cast.ToFloat64E(item)
		if err != nil {
			return def, paramError(key, v, err)
		}
		out = append(out, f)
	}
	return out, nil
}

// Key renders the parameters in a canonical order for use in cache keys.
func (p Params) Key() string {
	keys := maps.Keys(p)
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, p[k])
	}
	return strings.Join(parts, "&")
}

func paramError(key string, v interface{}, err error) error {
	return fmt.Errorf("parameter %s=%v: %w", key, v, err)
}
