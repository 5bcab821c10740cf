package bridge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrBadArgument wraps every argument decoding failure.
var ErrBadArgument = errors.New("bad argument")

// Args is the positional argument array of a bridge call.
type Args []json.RawMessage

// ArgsOf marshals plain Go values into Args.
func ArgsOf(vals ...any) (Args, error) {
	out := make(Args, len(vals))
	for i, v := range vals {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: index %d: %v", ErrBadArgument, i, err)
		}
		out[i] = b
	}
	return out, nil
}

func decodeValue(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func (a Args) value(i int) (any, error) {
	if i < 0 || i >= len(a) {
		return nil, fmt.Errorf("%w: index %d out of range [0..%d)", ErrBadArgument, i, len(a))
	}
	v, err := decodeValue(a[i])
	if err != nil {
		return nil, fmt.Errorf("%w: index %d: %v", ErrBadArgument, i, err)
	}
	return v, nil
}

// String returns argument i coerced to a string. Numbers and booleans are
// rendered in their JSON form; null and missing arguments are errors.
func (a Args) String(i int) (string, error) {
	v, err := a.value(i)
	if err != nil {
		return "", err
	}
	s, ok := coerceString(v)
	if !ok {
		return "", fmt.Errorf("%w: value at %d is null", ErrBadArgument, i)
	}
	return s, nil
}

// OptString is String with "" for missing or null arguments.
func (a Args) OptString(i int) string {
	s, err := a.String(i)
	if err != nil {
		return ""
	}
	return s
}

// Int returns argument i as an integer. Numeric strings are accepted and
// fractional values are truncated.
func (a Args) Int(i int) (int, error) {
	v, err := a.value(i)
	if err != nil {
		return 0, err
	}
	n, ok := coerceInt(v)
	if !ok {
		return 0, fmt.Errorf("%w: value at %d is not a number", ErrBadArgument, i)
	}
	return n, nil
}

// Object returns argument i as a JSON object.
func (a Args) Object(i int) (Object, error) {
	v, err := a.value(i)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: value at %d is not an object", ErrBadArgument, i)
	}
	return Object(m), nil
}

// ObjectArray returns argument i as an array of JSON objects.
func (a Args) ObjectArray(i int) ([]Object, error) {
	v, err := a.value(i)
	if err != nil {
		return nil, err
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: value at %d is not an array", ErrBadArgument, i)
	}
	out := make([]Object, 0, len(list))
	for j, e := range list {
		m, ok := e.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: element %d of argument %d is not an object", ErrBadArgument, j, i)
		}
		out = append(out, Object(m))
	}
	return out, nil
}

// Object is a decoded JSON object argument. Numbers are json.Number.
type Object map[string]any

// Has reports whether key is present and not null.
func (o Object) Has(key string) bool {
	v, ok := o[key]
	return ok && v != nil
}

// String returns o[key] coerced to a string.
func (o Object) String(key string) (string, error) {
	v, ok := o[key]
	if !ok {
		return "", fmt.Errorf("%w: no value for %q", ErrBadArgument, key)
	}
	s, ok := coerceString(v)
	if !ok {
		return "", fmt.Errorf("%w: value for %q is null", ErrBadArgument, key)
	}
	return s, nil
}

// OptString is String with def for missing or null keys.
func (o Object) OptString(key, def string) string {
	s, err := o.String(key)
	if err != nil {
		return def
	}
	return s
}

// Flatten converts the top-level entries to data-layer values: integral
// numbers become int64, other numbers float64, nested values are kept as
// decoded.
func (o Object) Flatten() map[string]any {
	out := make(map[string]any, len(o))
	for k, v := range o {
		out[k] = normalize(v)
	}
	return out
}

// JSON renders o with sorted keys.
func (o Object) JSON() string {
	b, err := json.Marshal(map[string]any(o))
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(o))
	}
	return string(b)
}

func normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	default:
		return v
	}
}

func coerceString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t), true
		}
		return string(b), true
	}
}

func coerceInt(v any) (int, bool) {
	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case string:
		s = strings.TrimSpace(t)
	default:
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	// Saturate to the 32-bit range like a Java (int) float cast.
	switch {
	case f >= math.MaxInt32:
		return math.MaxInt32, true
	case f <= math.MinInt32:
		return math.MinInt32, true
	}
	return int(f), true
}

// truncatedInt parses a price-like string and truncates it to an integer.
// Anything unparseable yields 0.
func truncatedInt(s string) int {
	n, ok := coerceInt(s)
	if !ok {
		return 0
	}
	return n
}
