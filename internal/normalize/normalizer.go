package normalize

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ppiankov/lexruler/internal/model"
)

// EmptyNamePolicy decides what happens to records with a blank name
type EmptyNamePolicy string

const (
	// SkipEmpty drops the record and reports an EmptyNameWarning
	SkipEmpty EmptyNamePolicy = model.EmptyNameSkip

	// RejectEmpty aborts the pass with an EmptyNameError
	RejectEmpty EmptyNamePolicy = model.EmptyNameReject
)

// ParsePolicy converts a configured policy name. Empty means skip.
func ParsePolicy(s string) (EmptyNamePolicy, error) {
	switch EmptyNamePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", SkipEmpty:
		return SkipEmpty, nil
	case RejectEmpty:
		return RejectEmpty, nil
	default:
		return "", fmt.Errorf("unknown empty name policy %q (want skip or reject)", s)
	}
}

// Result is the outcome of one normalization pass
type Result struct {
	Rules    model.RuleSet
	Warnings []EmptyNameWarning
}

// Skipped returns the indices of records dropped for blank names
func (r *Result) Skipped() []int {
	if len(r.Warnings) == 0 {
		return nil
	}
	idx := make([]int, len(r.Warnings))
	for i, w := range r.Warnings {
		idx[i] = w.Index
	}
	return idx
}

// Normalizer converts records to rules using a fixed accessor and policy
type Normalizer struct {
	accessor FieldAccessor
	path     string
	policy   EmptyNamePolicy
	workers  int
	logger   *slog.Logger
}

// Option configures a Normalizer
type Option func(*Normalizer)

// WithPolicy sets the empty-name policy
func WithPolicy(p EmptyNamePolicy) Option {
	return func(n *Normalizer) { n.policy = p }
}

// WithWorkers normalizes large inputs on n workers. Output order is unchanged.
func WithWorkers(workers int) Option {
	return func(n *Normalizer) { n.workers = workers }
}

// WithLogger sets the logger used for skip warnings
func WithLogger(logger *slog.Logger) Option {
	return func(n *Normalizer) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithPath records the field path for error messages
func WithPath(path string) Option {
	return func(n *Normalizer) { n.path = path }
}

// New creates a normalizer reading names through accessor
func New(accessor FieldAccessor, opts ...Option) *Normalizer {
	n := &Normalizer{
		accessor: accessor,
		policy:   SkipEmpty,
		workers:  1,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NewForPath creates a normalizer reading names at a dot-separated path
func NewForPath(path string, opts ...Option) (*Normalizer, error) {
	accessor, err := PathAccessor(path)
	if err != nil {
		return nil, fmt.Errorf("name path: %w", err)
	}
	return New(accessor, append([]Option{WithPath(path)}, opts...)...), nil
}

// Normalize converts records to a RuleSet tagged with label, one rule per
// record in input order. Any record error aborts the pass and no rules are
// returned.
func (n *Normalizer) Normalize(records []model.SourceRecord, label string) (*Result, error) {
	if label == "" {
		return nil, ErrEmptyLabel
	}
	if n.accessor == nil {
		return nil, fmt.Errorf("normalizer has no field accessor")
	}

	var (
		res *Result
		err error
	)
	if n.workers > 1 && len(records) >= parallelThreshold {
		res, err = n.normalizeParallel(records, label)
	} else {
		res, err = n.normalizeRange(records, 0, label)
	}
	if err != nil {
		return nil, err
	}

	for _, w := range res.Warnings {
		n.logger.Warn("Skipping record with empty name",
			slog.Int("index", w.Index),
			slog.String("label", label))
	}
	return res, nil
}

// normalizeRange converts records whose first element sits at offset in the
// full input, so indices in errors and warnings are absolute.
func (n *Normalizer) normalizeRange(records []model.SourceRecord, offset int, label string) (*Result, error) {
	lower := cases.Lower(language.Und)
	res := &Result{Rules: make(model.RuleSet, 0, len(records))}

	for i, rec := range records {
		idx := offset + i

		name, err := n.accessor(rec)
		if err != nil {
			return nil, &MissingFieldError{Index: idx, Path: n.path, Err: err}
		}

		tokens := Tokens(lower, name)
		if len(tokens) == 0 {
			if n.policy == RejectEmpty {
				return nil, &EmptyNameError{Index: idx}
			}
			res.Warnings = append(res.Warnings, EmptyNameWarning{Index: idx})
			continue
		}

		rule, err := model.NewMatchRule(label, tokens)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", idx, err)
		}
		res.Rules = append(res.Rules, rule)
	}

	return res, nil
}

// Tokens splits name on whitespace and lower-cases each token.
// A cases.Caser is stateful; callers must not share one across goroutines.
func Tokens(lower cases.Caser, name string) []string {
	fields := strings.FieldsFunc(name, isSeparator)
	for i, f := range fields {
		fields[i] = lower.String(f)
	}
	return fields
}

// isSeparator reports Unicode white space plus the ASCII file, group,
// record and unit separators (U+001C..U+001F)
func isSeparator(r rune) bool {
	return unicode.IsSpace(r) || (r >= '\x1c' && r <= '\x1f')
}

// Normalize is the single-call form: skip policy, sequential, default logger
func Normalize(records []model.SourceRecord, label string, accessor FieldAccessor) (model.RuleSet, error) {
	res, err := New(accessor).Normalize(records, label)
	if err != nil {
		return nil, err
	}
	return res.Rules, nil
}
