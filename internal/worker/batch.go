package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/lexruler/internal/model"
)

// Builder defines the interface for building the rule set of one source
type Builder interface {
	Build(ctx context.Context, spec model.SourceConfig) (*model.Build, error)
}

// BuildJob represents a single source build
type BuildJob struct {
	Index   int
	Spec    model.SourceConfig
	Builder Builder
}

// Execute executes the build job
func (j *BuildJob) Execute(ctx context.Context) Result {
	build, err := j.Builder.Build(ctx, j.Spec)
	if err != nil {
		return &BuildResult{
			Index:  j.Index,
			Source: j.Spec.Name,
			Error:  err,
		}
	}
	return &BuildResult{
		Index:  j.Index,
		Source: j.Spec.Name,
		Build:  build,
	}
}

// BuildResult represents the result of a build job
type BuildResult struct {
	Index  int
	Source string
	Build  *model.Build
	Error  error
}

// GetError returns the error from the build result
func (r *BuildResult) GetError() error {
	return r.Error
}

// BatchProcessor builds multiple sources concurrently
type BatchProcessor struct {
	builder     Builder
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(builder Builder, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		builder:     builder,
		concurrency: concurrency,
	}
}

// ProcessSources builds every source and returns one result per spec, in
// the order given. A failing source does not stop the others.
func (b *BatchProcessor) ProcessSources(ctx context.Context, specs []model.SourceConfig) []*BuildResult {
	if len(specs) == 0 {
		return []*BuildResult{}
	}

	pool := NewPoolWithContext(ctx, b.concurrency)
	pool.Start()

	for i, spec := range specs {
		pool.Submit(&BuildJob{
			Index:   i,
			Spec:    spec,
			Builder: b.builder,
		})
	}

	out := make([]*BuildResult, len(specs))
	for _, result := range pool.Wait() {
		br := result.(*BuildResult)
		out[br.Index] = br
	}

	// Jobs dropped by cancellation still get a result
	for i, spec := range specs {
		if out[i] == nil {
			err := ctx.Err()
			if err == nil {
				err = fmt.Errorf("build not run")
			}
			out[i] = &BuildResult{Index: i, Source: spec.Name, Error: err}
		}
	}

	return out
}

// SelectSources returns the configured sources named in names, in the order
// of names. Unknown names are an error.
func SelectSources(cfg *model.Config, names []string) ([]model.SourceConfig, error) {
	specs := make([]model.SourceConfig, 0, len(names))
	for _, name := range names {
		spec, ok := cfg.FindSource(name)
		if !ok {
			return nil, fmt.Errorf("unknown source %q", name)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// ReadNamesFromFile reads source names from a file (one per line)
func ReadNamesFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var names []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			names = append(names, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return names, nil
}
