package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/ppiankov/lexruler/internal/model"
	"github.com/ppiankov/lexruler/internal/normalize"
)

const acceptJSON = "application/json"

// RESTSource reads a JSON array of objects from a REST endpoint, optionally
// nested under RecordsPath (e.g. LEILex returns {"records": [...]})
type RESTSource struct {
	spec    model.SourceConfig
	fetcher *Fetcher
}

// NewRESTSource creates a REST source
func NewRESTSource(spec model.SourceConfig, fetcher *Fetcher) *RESTSource {
	return &RESTSource{spec: spec, fetcher: fetcher}
}

// Name returns the source name
func (s *RESTSource) Name() string {
	return s.spec.Name
}

// URL returns the request URL including query parameters
func (s *RESTSource) URL() string {
	return withParams(s.spec.URL, s.spec.Params)
}

// Fetch retrieves the listing and decodes its records
func (s *RESTSource) Fetch(ctx context.Context) (*Batch, error) {
	reqURL := s.URL()

	resp, err := s.fetcher.FetchWithRetry(ctx, reqURL, acceptJSON)
	if err != nil {
		return nil, withSource(err, s.spec.Name)
	}

	records, err := DecodeRecords(resp.Body, s.spec.RecordsPath)
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

// DecodeRecords parses body as JSON and returns the array of objects found
// at recordsPath. An empty path means the body itself is the array.
func DecodeRecords(body []byte, recordsPath string) ([]model.SourceRecord, error) {
	var root any
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}

	list := root
	if recordsPath != "" {
		obj, ok := root.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: top level is %s, want object", ErrMalformedBody, jsonKind(root))
		}
		path, err := normalize.ParsePath(recordsPath)
		if err != nil {
			return nil, fmt.Errorf("records path: %w", err)
		}
		list, err = path.Lookup(model.SourceRecord(obj))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
		}
	}

	return toRecords(list)
}

// toRecords converts a decoded JSON array of objects
func toRecords(v any) ([]model.SourceRecord, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: records are %s, want array", ErrMalformedBody, jsonKind(v))
	}

	records := make([]model.SourceRecord, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: record %d is %s, want object", ErrMalformedBody, i, jsonKind(item))
		}
		records[i] = model.SourceRecord(obj)
	}
	return records, nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// withParams appends query parameters to rawURL, keeping any it already has
func withParams(rawURL string, params map[string]string) string {
	if len(params) == 0 {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
