package features

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

var ErrInvalidFeature = errors.New("invalid feature value")

// Parse builds a Vector from a decoded request payload. Vocabulary features
// come first in canonical order, extras follow sorted by name. Nil values are
// treated as missing. The returned slice names the extras so callers can
// surface likely typos.
func Parse(raw map[string]any) (*Vector, []string, error) {
	v := NewVector()
	for _, spec := range vocabulary {
		rawValue, ok := raw[spec.Name]
		if !ok || rawValue == nil {
			continue
		}
		value, err := coerce(spec.Kind, rawValue)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %v", ErrInvalidFeature, spec.Name, err)
		}
		v.Set(spec.Name, value)
	}

	var unknown []string
	for name := range raw {
		if _, ok := vocabularyIndex[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		rawValue := raw[name]
		if rawValue == nil {
			continue
		}
		value, err := coerceExtra(rawValue)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %v", ErrInvalidFeature, name, err)
		}
		v.Set(name, value)
	}
	return v, unknown, nil
}

func coerce(kind Kind, raw any) (Value, error) {
	if kind == Categorical {
		switch t := raw.(type) {
		case string:
			return Text(strings.TrimSpace(t)), nil
		case bool:
			return Text(strconv.FormatBool(t)), nil
		}
		n, err := toFloat(raw)
		if err != nil {
			return Value{}, err
		}
		return Text(strconv.FormatFloat(n, 'f', -1, 64)), nil
	}

	if s, ok := raw.(string); ok {
		n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return Value{}, fmt.Errorf("expected a number, got %q", s)
		}
		if err := finite(n); err != nil {
			return Value{}, err
		}
		return Number(n), nil
	}
	n, err := toFloat(raw)
	if err != nil {
		return Value{}, err
	}
	return Number(n), nil
}

func coerceExtra(raw any) (Value, error) {
	if s, ok := raw.(string); ok {
		return Text(s), nil
	}
	n, err := toFloat(raw)
	if err != nil {
		return Value{}, err
	}
	return Number(n), nil
}

func toFloat(raw any) (float64, error) {
	n, err := rawFloat(raw)
	if err != nil {
		return 0, err
	}
	if err := finite(n); err != nil {
		return 0, err
	}
	return n, nil
}

func finite(n float64) error {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return fmt.Errorf("expected a finite number, got %v", n)
	}
	return nil
}

func rawFloat(raw any) (float64, error) {
	switch t := raw.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("unsupported type %T", raw)
	}
}
