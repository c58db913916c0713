// Package source fetches entity listings from upstream services and decodes
// them into records for normalization.
package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/lexruler/internal/model"
)

// Source yields the raw records of one upstream listing
type Source interface {
	// Name returns the configured source name
	Name() string

	// URL returns the upstream URL or endpoint
	URL() string

	// Fetch retrieves and decodes all records. Any failure is an
	// *UpstreamFetchError; no partial record list is returned.
	Fetch(ctx context.Context) (*Batch, error)
}

// Batch is the decoded result of one fetch
type Batch struct {
	Records   []model.SourceRecord
	FromCache bool
}

// New picks the implementation for spec.Kind
func New(spec model.SourceConfig, fetcher *Fetcher) (Source, error) {
	if spec.URL == "" {
		return nil, fmt.Errorf("source %q: url is required", spec.Name)
	}

	switch strings.ToLower(spec.Kind) {
	case model.SourceKindREST:
		return NewRESTSource(spec, fetcher), nil
	case model.SourceKindSPARQL:
		return NewSPARQLSource(spec, fetcher)
	default:
		return nil, fmt.Errorf("source %q: %w %q", spec.Name, ErrUnknownKind, spec.Kind)
	}
}
