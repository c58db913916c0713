// Package pipeline turns one configured upstream source into a rule build:
// fetch, decode, normalize, report.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ppiankov/lexruler/internal/model"
	"github.com/ppiankov/lexruler/internal/normalize"
	"github.com/ppiankov/lexruler/internal/source"
)

// Pipeline orchestrates the complete build process
type Pipeline struct {
	fetcher  *source.Fetcher
	renderer *Renderer
	config   *model.Config
	logger   *slog.Logger
}

// NewPipeline creates a new pipeline with the given configuration
func NewPipeline(cfg *model.Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return NewPipelineWithFetcher(cfg, source.NewFetcherFromConfig(cfg, logger), logger)
}

// NewPipelineWithFetcher uses an existing fetcher, sharing its cache and
// rate limiter across pipelines
func NewPipelineWithFetcher(cfg *model.Config, fetcher *source.Fetcher, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		fetcher:  fetcher,
		renderer: NewRenderer(os.Stderr),
		config:   cfg,
		logger:   logger,
	}
}

// Build fetches spec's records and normalizes them into a rule set. On any
// failure no build is returned, so a partial rule set never reaches a matcher.
func (p *Pipeline) Build(ctx context.Context, spec model.SourceConfig) (*model.Build, error) {
	start := time.Now()

	if spec.Label == "" {
		return nil, fmt.Errorf("source %q: %w", spec.Name, normalize.ErrEmptyLabel)
	}

	// 1. Resolve source
	src, err := source.New(spec, p.fetcher)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}

	norm, err := p.normalizer(spec)
	if err != nil {
		return nil, err
	}

	// 2. Fetch records
	p.logger.Debug("Fetching source", slog.String("source", spec.Name), slog.String("url", spec.URL))
	batch, err := src.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	// 3. Normalize
	res, err := norm.Normalize(batch.Records, spec.Label)
	if err != nil {
		return nil, fmt.Errorf("normalize %s: %w", spec.Name, err)
	}

	// 4. Report
	report := model.BuildReport{
		ID:        ulid.Make().String(),
		Source:    spec.Name,
		Kind:      spec.Kind,
		URL:       src.URL(),
		Label:     spec.Label,
		Records:   len(batch.Records),
		Rules:     len(res.Rules),
		Skipped:   res.Skipped(),
		FromCache: batch.FromCache,
		FetchedAt: start.UTC(),
		Duration:  time.Since(start),
	}

	p.logger.Info("Built rule set",
		slog.String("source", spec.Name),
		slog.String("build", report.ID),
		slog.Int("records", report.Records),
		slog.Int("rules", report.Rules),
		slog.Int("skipped", len(report.Skipped)))

	return &model.Build{Report: report, Rules: res.Rules}, nil
}

// normalizer configures a Normalizer for spec from the pipeline config
func (p *Pipeline) normalizer(spec model.SourceConfig) (*normalize.Normalizer, error) {
	policy, err := normalize.ParsePolicy(p.config.Normalize.EmptyNamePolicy)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	norm, err := normalize.NewForPath(spec.NamePath,
		normalize.WithPolicy(policy),
		normalize.WithWorkers(p.config.Concurrency.NormalizeWorkers),
		normalize.WithLogger(p.logger.With(slog.String("source", spec.Name))))
	if err != nil {
		return nil, fmt.Errorf("source %q: %w", spec.Name, err)
	}
	return norm, nil
}

// Outputs names the files a build is written to. Empty paths are skipped.
type Outputs struct {
	Patterns string // JSONL, one matcher pattern per line
	JSON     string // Report and rules
	Markdown string // Human-readable report
}

// RenderBuild writes build to the requested outputs and prints a summary
func (p *Pipeline) RenderBuild(build *model.Build, out Outputs, verbose bool) error {
	return p.renderer.RenderAll(build, out, verbose)
}

// SetSummaryWriter redirects progress and summary lines
func (p *Pipeline) SetSummaryWriter(w io.Writer) {
	p.renderer = NewRenderer(w)
}
