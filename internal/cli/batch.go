package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/lexruler/internal/model"
	"github.com/ppiankov/lexruler/internal/pipeline"
	"github.com/ppiankov/lexruler/internal/worker"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
	namesFile    string
	withReports  bool
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch [source...]",
	Short: "Build pattern files for several sources in parallel",
	Long: `Batch builds several configured sources concurrently:
- Build every configured source, the named ones, or those listed in a file
- Fetch and normalize sources in parallel with configurable worker count
- Write <source>.jsonl per source into the output directory
- A failing source is reported and does not stop the others

Example:
  lexruler batch
  lexruler batch leilex animals --output-dir ./rules
  lexruler batch --file sources.txt --concurrency 2 --reports`,
	PreRunE: bindHTTPFlags,
	RunE:    runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	// Concurrency flags
	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of sources built concurrently (default: concurrency.workers)")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./lexruler-rules", "output directory for pattern files")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().StringVarP(&namesFile, "file", "f", "", "file listing source names (one per line)")
	batchCmd.Flags().BoolVar(&withReports, "reports", false, "also write <source>.json and <source>.md reports")

	addHTTPFlags(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if noCache {
		cfg.Cache.Enabled = false
	}
	if concurrency <= 0 {
		concurrency = cfg.Concurrency.Workers
	}

	specs, err := selectSpecs(cfg, args)
	if err != nil {
		return err
	}
	if len(specs) == 0 {
		return fmt.Errorf("no sources to build")
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Lexruler Batch Build\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Sources:      %d\n", len(specs))
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", concurrency)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "\n")

	// Create output directory
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	// One pipeline, so all sources share the cache and rate limiter
	p := pipeline.NewPipeline(cfg, nil)
	processor := worker.NewBatchProcessor(p, concurrency)

	fmt.Fprintf(os.Stderr, "⚙️  Building sources with %d workers...\n", concurrency)
	fmt.Fprintf(os.Stderr, "\n")

	results := processor.ProcessSources(ctx, specs)

	// Process results
	successCount := 0
	failureCount := 0
	renderer := pipeline.NewRenderer(os.Stderr)

	for _, result := range results {
		if result.Error != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.Source, result.Error)
			continue
		}

		slug := sanitizeFilename(result.Source)
		out := pipeline.Outputs{Patterns: filepath.Join(outputDir, slug+".jsonl")}
		if withReports {
			out.JSON = filepath.Join(outputDir, slug+".json")
			out.Markdown = filepath.Join(outputDir, slug+".md")
		}

		if err := renderer.RenderAll(result.Build, out, verbose); err != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.Source, err)
			continue
		}
		successCount++
	}

	// Summary
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d sources\n", len(results))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", successCount)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failureCount)
	fmt.Fprintf(os.Stderr, "  Output:    %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "\n")

	if failureCount > 0 {
		return fmt.Errorf("%d of %d sources failed", failureCount, len(results))
	}
	return nil
}

// selectSpecs resolves the sources named on the command line or in
// --file; with neither, every configured source is built
func selectSpecs(cfg *model.Config, args []string) ([]model.SourceConfig, error) {
	names := args
	if namesFile != "" {
		fromFile, err := worker.ReadNamesFromFile(namesFile)
		if err != nil {
			return nil, fmt.Errorf("read sources file: %w", err)
		}
		names = append(names, fromFile...)
	}
	if len(names) == 0 {
		return cfg.Sources, nil
	}
	return worker.SelectSources(cfg, names)
}

var filenameReplacer = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
	" ", "-",
)

// sanitizeFilename sanitizes a source name for use as a filename
func sanitizeFilename(s string) string {
	s = filenameReplacer.Replace(strings.TrimSpace(s))
	s = strings.Trim(s, ".")

	// Limit length
	if len(s) > 100 {
		s = s[:100]
	}
	if s == "" {
		s = "source"
	}
	return s
}
