package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/lexruler/internal/model"
)

// markdownRuleLimit caps the rule table; the JSONL export always has all rules
const markdownRuleLimit = 200

// Renderer writes builds to files and summaries to a writer
type Renderer struct {
	out io.Writer
}

// NewRenderer creates a renderer printing summaries to out
func NewRenderer(out io.Writer) *Renderer {
	if out == nil {
		out = os.Stderr
	}
	return &Renderer{out: out}
}

// RenderAll writes every requested output, then prints the summary
func (r *Renderer) RenderAll(build *model.Build, out Outputs, verbose bool) error {
	if out.Patterns != "" {
		if err := r.RenderPatterns(build.Rules, out.Patterns); err != nil {
			return fmt.Errorf("render patterns: %w", err)
		}
		if verbose {
			_, _ = fmt.Fprintf(r.out, "✓ Wrote patterns: %s\n", out.Patterns)
		}
	}

	if out.JSON != "" {
		if err := r.RenderJSON(build, out.JSON); err != nil {
			return fmt.Errorf("render JSON: %w", err)
		}
		if verbose {
			_, _ = fmt.Fprintf(r.out, "✓ Wrote JSON: %s\n", out.JSON)
		}
	}

	if out.Markdown != "" {
		if err := r.RenderMarkdown(build, out.Markdown); err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		if verbose {
			_, _ = fmt.Fprintf(r.out, "✓ Wrote Markdown: %s\n", out.Markdown)
		}
	}

	r.RenderSummary(build)
	return nil
}

// RenderPatterns writes rules as JSONL, one EntityRuler pattern per line
func (r *Renderer) RenderPatterns(rules model.RuleSet, path string) error {
	return writeFileAtomic(path, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		enc := json.NewEncoder(bw)
		enc.SetEscapeHTML(false)
		for i, rule := range rules {
			if err := enc.Encode(rule); err != nil {
				return fmt.Errorf("encode rule %d: %w", i, err)
			}
		}
		return bw.Flush()
	})
}

// RenderJSON writes the report and rules as one indented document
func (r *Renderer) RenderJSON(build *model.Build, path string) error {
	return writeFileAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(build)
	})
}

// RenderMarkdown writes a human-readable report with a rule table
func (r *Renderer) RenderMarkdown(build *model.Build, path string) error {
	return writeFileAtomic(path, func(w io.Writer) error {
		_, err := io.WriteString(w, Markdown(build))
		return err
	})
}

// Markdown formats build as a markdown report
func Markdown(build *model.Build) string {
	rep := build.Report
	var b strings.Builder

	fmt.Fprintf(&b, "# Rule build: %s\n\n", rep.Source)
	fmt.Fprintf(&b, "- **Build:** `%s`\n", rep.ID)
	fmt.Fprintf(&b, "- **Source:** %s (%s)\n", rep.URL, rep.Kind)
	fmt.Fprintf(&b, "- **Label:** `%s`\n", rep.Label)
	fmt.Fprintf(&b, "- **Fetched:** %s", rep.FetchedAt.Format(time.RFC3339))
	if rep.FromCache {
		b.WriteString(" (cached)")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "- **Records:** %d\n", rep.Records)
	fmt.Fprintf(&b, "- **Rules:** %d\n", rep.Rules)
	if len(rep.Skipped) > 0 {
		fmt.Fprintf(&b, "- **Skipped (empty name):** %d\n", len(rep.Skipped))
	}
	b.WriteString("\n## Rules\n\n")

	if len(build.Rules) == 0 {
		b.WriteString("_No rules._\n")
		return b.String()
	}

	b.WriteString("| # | Phrase | Tokens |\n|---|---|---|\n")
	for i, rule := range build.Rules {
		if i == markdownRuleLimit {
			fmt.Fprintf(&b, "\n_%d more rules in the patterns export._\n", len(build.Rules)-markdownRuleLimit)
			break
		}
		fmt.Fprintf(&b, "| %d | %s | %d |\n", i+1, escapeCell(rule.Phrase()), rule.Len())
	}
	return b.String()
}

// RenderSummary prints a short summary of build
func (r *Renderer) RenderSummary(build *model.Build) {
	rep := build.Report
	cached := ""
	if rep.FromCache {
		cached = " (cached)"
	}
	_, _ = fmt.Fprintf(r.out, "%s: %d records → %d %s rules%s in %s\n",
		rep.Source, rep.Records, rep.Rules, rep.Label, cached, rep.Duration.Round(time.Millisecond))
	if n := len(rep.Skipped); n > 0 {
		_, _ = fmt.Fprintf(r.out, "  skipped %d records with empty names\n", n)
	}
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// writeFileAtomic writes through a temp file in the target directory
func writeFileAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".lexruler-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
