package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/template"

	"github.com/ppiankov/lexruler/internal/model"
)

const acceptSPARQLJSON = "application/sparql-results+json"

// SPARQLSource runs a SELECT query against a SPARQL endpoint and yields one
// record per result binding, e.g. {"label": {"type": "literal", "value": "..."}}
type SPARQLSource struct {
	spec    model.SourceConfig
	query   string
	fetcher *Fetcher
}

// sparqlResults is the SPARQL 1.1 JSON results envelope
type sparqlResults struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results *struct {
		Bindings []map[string]any `json:"bindings"`
	} `json:"results"`
}

// NewSPARQLSource renders the query template with spec.Vars
func NewSPARQLSource(spec model.SourceConfig, fetcher *Fetcher) (*SPARQLSource, error) {
	text := spec.Query
	if spec.QueryFile != "" {
		data, err := os.ReadFile(spec.QueryFile)
		if err != nil {
			return nil, fmt.Errorf("source %q: read query file: %w", spec.Name, err)
		}
		text = string(data)
	}
	if text == "" {
		return nil, fmt.Errorf("source %q: sparql query is required", spec.Name)
	}

	query, err := RenderQuery(text, spec.Vars)
	if err != nil {
		return nil, fmt.Errorf("source %q: %w", spec.Name, err)
	}

	return &SPARQLSource{spec: spec, query: query, fetcher: fetcher}, nil
}

// RenderQuery executes a query template. Missing variables are an error.
func RenderQuery(text string, vars map[string]any) (string, error) {
	tmpl, err := template.New("query").Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse query template: %w", err)
	}
	if vars == nil {
		vars = map[string]any{}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("render query template: %w", err)
	}
	return buf.String(), nil
}

// Name returns the source name
func (s *SPARQLSource) Name() string {
	return s.spec.Name
}

// Query returns the rendered query
func (s *SPARQLSource) Query() string {
	return s.query
}

// URL returns the full GET URL for the query
func (s *SPARQLSource) URL() string {
	params := map[string]string{
		"query":  s.query,
		"format": "json",
	}
	for k, v := range s.spec.Params {
		params[k] = v
	}
	return withParams(s.spec.URL, params)
}

// Fetch runs the query and decodes the bindings
func (s *SPARQLSource) Fetch(ctx context.Context) (*Batch, error) {
	reqURL := s.URL()

	resp, err := s.fetcher.FetchWithRetry(ctx, reqURL, acceptSPARQLJSON)
	if err != nil {
		return nil, withSource(err, s.spec.Name)
	}

	records, err := DecodeBindings(resp.Body)
	s.fetcher.settle(reqURL, resp, err)
	if err != nil {
		return nil, &UpstreamFetchError{
			Source:     s.spec.Name,
			URL:        reqURL,
			StatusCode: resp.StatusCode,
			Err:        err,
		}
	}

	return &Batch{Records: records, FromCache: resp.FromCache}, nil
}

// DecodeBindings parses a SPARQL JSON results document into records
func DecodeBindings(body []byte) ([]model.SourceRecord, error) {
	var res sparqlResults
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	if res.Results == nil {
		return nil, fmt.Errorf("%w: no results member", ErrMalformedBody)
	}

	records := make([]model.SourceRecord, len(res.Results.Bindings))
	for i, b := range res.Results.Bindings {
		records[i] = model.SourceRecord(b)
	}
	return records, nil
}
