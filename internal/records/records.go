// Package records reads loosely-typed backend payloads.
//
// Backend objects arrive as decoded JSON (map[string]any) with the same
// logical field spelled several ways. A Field lists the accepted spellings in
// precedence order and the helpers here return the first one that carries a
// usable value.
package records

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Record is a single decoded backend object.
type Record = map[string]any

// Field names one logical attribute and its aliases, highest precedence
// first. An alias containing dots walks nested objects ("medInstitution.id").
type Field struct {
	Name    string
	Aliases []string
}

// GeneratedIDPrefix marks identifiers minted locally for records without one.
const GeneratedIDPrefix = "local-"

// Lookup returns the raw value of the first alias present in rec with a
// non-empty value.
func Lookup(rec Record, f Field) (any, bool) {
	for _, alias := range f.Aliases {
		v, ok := path(rec, alias)
		if !ok || isEmpty(v) {
			continue
		}
		return v, true
	}
	return nil, false
}

// String resolves f to a trimmed string. Numbers are formatted without an
// exponent; objects, arrays and booleans never match.
func String(rec Record, f Field) string {
	for _, alias := range f.Aliases {
		v, ok := path(rec, alias)
		if !ok {
			continue
		}
		if s := stringFrom(v); s != "" {
			return s
		}
	}
	return ""
}

// ID resolves f like String but mints a fallback identifier when no alias
// carries one. The second result reports whether the id was generated.
func ID(rec Record, f Field) (string, bool) {
	if id := String(rec, f); id != "" {
		return id, false
	}
	return NewID(), true
}

// NewID returns a fresh local identifier.
func NewID() string {
	return GeneratedIDPrefix + uuid.NewString()
}

// IsGenerated reports whether id was minted by NewID.
func IsGenerated(id string) bool {
	return strings.HasPrefix(id, GeneratedIDPrefix)
}

// Int resolves f to an integer, returning def when absent or unparsable.
func Int(rec Record, f Field, def int) int {
	v, ok := Lookup(rec, f)
	if !ok {
		return def
	}
	n, ok := floatFrom(v)
	if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
		return def
	}
	return int(n)
}

// Bool resolves f to a boolean. Strings "true"/"1"/"yes" and non-zero
// numbers count as true.
func Bool(rec Record, f Field) bool {
	v, ok := Lookup(rec, f)
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1", "yes":
			return true
		}
		return false
	default:
		n, ok := floatFrom(v)
		return ok && n != 0
	}
}

// Float resolves f to a float64.
func Float(rec Record, f Field) (float64, bool) {
	v, ok := Lookup(rec, f)
	if !ok {
		return 0, false
	}
	return floatFrom(v)
}

// Has reports whether any alias of f is present, even with an empty value.
func Has(rec Record, f Field) bool {
	for _, alias := range f.Aliases {
		if _, ok := path(rec, alias); ok {
			return true
		}
	}
	return false
}

// FloatFrom coerces a decoded JSON value to float64.
func FloatFrom(v any) (float64, bool) { return floatFrom(v) }

func path(rec Record, alias string) (any, bool) {
	if rec == nil {
		return nil, false
	}
	if v, ok := rec[alias]; ok {
		return v, true
	}
	if !strings.Contains(alias, ".") {
		return nil, false
	}
	cur := any(rec)
	for _, part := range strings.Split(alias, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}

func stringFrom(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	}
	return ""
}

func floatFrom(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}
