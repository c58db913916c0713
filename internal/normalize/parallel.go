package normalize

import (
	"context"

	"github.com/ppiankov/lexruler/internal/model"
	"github.com/ppiankov/lexruler/internal/worker"
)

// parallelThreshold is the smallest input worth splitting across workers
const parallelThreshold = 512

// minChunk keeps chunks large enough to amortize scheduling
const minChunk = 128

// chunkJob normalizes one contiguous slice of the input
type chunkJob struct {
	n       *Normalizer
	records []model.SourceRecord
	offset  int
	label   string
}

type chunkResult struct {
	res *Result
	err error
}

func (r *chunkResult) GetError() error {
	return r.err
}

// Execute normalizes the chunk with its own caser
func (j *chunkJob) Execute(ctx context.Context) worker.Result {
	res, err := j.n.normalizeRange(j.records, j.offset, j.label)
	return &chunkResult{res: res, err: err}
}

// normalizeParallel splits records into contiguous chunks and reassembles
// the per-chunk results in input order. Chunks are ascending, so the first
// failing chunk in submission order holds the lowest failing index and the
// returned error matches what a sequential pass would report.
func (n *Normalizer) normalizeParallel(records []model.SourceRecord, label string) (*Result, error) {
	size := (len(records) + n.workers - 1) / n.workers
	if size < minChunk {
		size = minChunk
	}

	pool := worker.NewPool(n.workers)
	pool.Start()

	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		pool.Submit(&chunkJob{n: n, records: records[start:end], offset: start, label: label})
	}

	out := &Result{Rules: make(model.RuleSet, 0, len(records))}
	for _, r := range pool.Wait() {
		cr := r.(*chunkResult)
		if cr.err != nil {
			return nil, cr.err
		}
		out.Rules = append(out.Rules, cr.res.Rules...)
		out.Warnings = append(out.Warnings, cr.res.Warnings...)
	}

	return out, nil
}
