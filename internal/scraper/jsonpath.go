package scraper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// decodeJSON decodes with UseNumber so large ids survive intact.
func decodeJSON(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embedded json: %w", err)
	}
	if out == nil {
		return nil, fmt.Errorf("embedded json is not an object")
	}
	return out, nil
}

// lookup walks object keys. A missing key, a non-object step, or a null
// leaf all report false.
func lookup(v any, path ...string) (any, bool) {
	cur := v
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

func objectAt(v any, path ...string) map[string]any {
	raw, ok := lookup(v, path...)
	if !ok {
		return nil
	}
	m, _ := raw.(map[string]any)
	return m
}

func listAt(v any, path ...string) []any {
	raw, ok := lookup(v, path...)
	if !ok {
		return nil
	}
	l, _ := raw.([]any)
	return l
}

// stringAt returns the value at path as a string, or def when absent.
// Numbers are rendered in their JSON form.
func stringAt(v any, def string, path ...string) (string, error) {
	raw, ok := lookup(v, path...)
	if !ok {
		return def, nil
	}
	switch t := raw.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "", fmt.Errorf("%s: expected string, got %T", strings.Join(path, "."), raw)
	}
}

// optionalStringAt returns nil when the value is absent or empty.
func optionalStringAt(v any, path ...string) (*string, error) {
	s, err := stringAt(v, "", path...)
	if err != nil || s == "" {
		return nil, err
	}
	return &s, nil
}

// floatAt converts a number or numeric string at path, or returns def.
func floatAt(v any, def float64, path ...string) (float64, error) {
	raw, ok := lookup(v, path...)
	if !ok {
		return def, nil
	}
	f, err := toFloat(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", strings.Join(path, "."), err)
	}
	return f, nil
}

func optionalFloatAt(v any, path ...string) (*float64, error) {
	if _, ok := lookup(v, path...); !ok {
		return nil, nil
	}
	f, err := floatAt(v, 0, path...)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// intAt converts an integral number or numeric string at path, or returns def.
func intAt(v any, def int, path ...string) (int, error) {
	raw, ok := lookup(v, path...)
	if !ok {
		return def, nil
	}
	f, err := toFloat(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", strings.Join(path, "."), err)
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("%s: %v is not an integer", strings.Join(path, "."), f)
	}
	return int(f), nil
}

func boolAt(v any, def bool, path ...string) (bool, error) {
	raw, ok := lookup(v, path...)
	if !ok {
		return def, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("%s: expected bool, got %T", strings.Join(path, "."), raw)
	}
	return b, nil
}

func toFloat(raw any) (float64, error) {
	var (
		f   float64
		err error
	)
	switch t := raw.(type) {
	case json.Number:
		f, err = t.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(t), 64)
	case float64:
		f = t
	default:
		return 0, fmt.Errorf("expected number, got %T", raw)
	}
	if err != nil {
		return 0, fmt.Errorf("parse number: %w", err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("number must be finite")
	}
	return f, nil
}
