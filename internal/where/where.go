// Package where renders SQL-style WHERE clauses from key/value filters.
package where

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidKey is returned for a filter key that is not a plain identifier
	ErrInvalidKey = errors.New("invalid filter key")

	// ErrUnsupportedValue is returned for a value with no literal form
	ErrUnsupportedValue = errors.New("unsupported filter value")
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

const clauseTemplate = `WHERE {{ range $i, $f := . }}{{ if $i }} AND {{ end }}{{ $f.Key }} = {{ literal $f.Value }}{{ end }}`

var clause = template.Must(template.New("where").Funcs(template.FuncMap{
	"literal": Literal,
}).Parse(clauseTemplate))

// Filter is one equality condition
type Filter struct {
	Key   string `yaml:"key"`
	Value any    `yaml:"value"`
}

// Render returns "WHERE k1 = v1 AND k2 = v2 ..." for filters, in order.
// No filters render the empty string.
func Render(filters []Filter) (string, error) {
	if len(filters) == 0 {
		return "", nil
	}
	for _, f := range filters {
		if !identRe.MatchString(f.Key) {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, f.Key)
		}
	}

	var b strings.Builder
	if err := clause.Execute(&b, filters); err != nil {
		return "", fmt.Errorf("render where clause: %w", err)
	}
	return b.String(), nil
}

// Literal formats v as a SQL literal. Strings are single-quoted with
// embedded quotes doubled; numbers and booleans are bare.
func Literal(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "NULL", nil
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'", nil
	case bool:
		return strconv.FormatBool(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case uint64:
		return strconv.FormatUint(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

// ParseFilter parses "key=value". The value is read as a bool, integer or
// float when it looks like one, otherwise as a string; quoting with ' or "
// forces a string.
func ParseFilter(s string) (Filter, error) {
	key, raw, ok := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return Filter{}, fmt.Errorf("filter %q: want key=value", s)
	}
	return Filter{Key: key, Value: parseValue(strings.TrimSpace(raw))}, nil
}

func parseValue(raw string) any {
	if len(raw) >= 2 {
		if q := raw[0]; (q == '\'' || q == '"') && raw[len(raw)-1] == q {
			return raw[1 : len(raw)-1]
		}
	}
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

// LoadFilters reads a YAML list of {key, value} filters from path
func LoadFilters(path string) ([]Filter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read filters: %w", err)
	}

	var filters []Filter
	if err := yaml.Unmarshal(data, &filters); err != nil {
		return nil, fmt.Errorf("parse filters: %w", err)
	}
	return filters, nil
}
