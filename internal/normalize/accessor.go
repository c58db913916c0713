package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ppiankov/lexruler/internal/model"
)

var (
	// ErrFieldNotFound is returned when the path does not resolve in a record
	ErrFieldNotFound = errors.New("field not found")

	// ErrFieldNotString is returned when the path resolves to a non-string value
	ErrFieldNotString = errors.New("field is not a string")

	// ErrEmptyPath is returned for a blank field path
	ErrEmptyPath = errors.New("empty field path")
)

// FieldAccessor extracts the name string from a record
type FieldAccessor func(rec model.SourceRecord) (string, error)

// FieldPath is a parsed dot-separated path such as "label.value"
type FieldPath []string

// ParsePath parses a dot-separated field path. Empty segments are rejected.
func ParsePath(path string) (FieldPath, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrEmptyPath
	}

	segments := strings.Split(path, ".")
	for i, seg := range segments {
		if seg == "" {
			return nil, fmt.Errorf("empty segment %d in path %q", i, path)
		}
	}
	return FieldPath(segments), nil
}

// String returns the dotted form of the path
func (p FieldPath) String() string {
	return strings.Join(p, ".")
}

// Lookup walks the path through nested objects. A numeric segment indexes
// into an array.
func (p FieldPath) Lookup(rec model.SourceRecord) (any, error) {
	var cur any = map[string]any(rec)

	for i, seg := range p {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrFieldNotFound, p[:i+1].String())
			}
			cur = next
		case model.SourceRecord:
			next, ok := node[seg]
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrFieldNotFound, p[:i+1].String())
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("%w: %q", ErrFieldNotFound, p[:i+1].String())
			}
			cur = node[idx]
		default:
			return nil, fmt.Errorf("%w: %q is not an object", ErrFieldNotFound, p[:i].String())
		}
	}

	if cur == nil {
		return nil, fmt.Errorf("%w: %q is null", ErrFieldNotFound, p.String())
	}
	return cur, nil
}

// Accessor returns a FieldAccessor that reads a string at this path
func (p FieldPath) Accessor() FieldAccessor {
	return func(rec model.SourceRecord) (string, error) {
		v, err := p.Lookup(rec)
		if err != nil {
			return "", err
		}
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("%w: %q holds %T", ErrFieldNotString, p.String(), v)
		}
		return s, nil
	}
}

// PathAccessor parses path and returns its accessor
func PathAccessor(path string) (FieldAccessor, error) {
	p, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	return p.Accessor(), nil
}

// KeyAccessor reads a top-level key verbatim, even if it contains dots
func KeyAccessor(key string) FieldAccessor {
	return FieldPath{key}.Accessor()
}
