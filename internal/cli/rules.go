package cli

import (
	"context"
	"fmt"
	"maps"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/lexruler/internal/model"
	"github.com/ppiankov/lexruler/internal/pipeline"
)

const defaultSourceName = "leilex"

var (
	outPatterns string
	outJSON     string
	outMD       string
	timeout     time.Duration
	noCache     bool

	srcKind        string
	srcURL         string
	srcRecordsPath string
	srcNamePath    string
	srcLabel       string
	srcQueryFile   string
	srcParams      map[string]string
	srcVars        map[string]string
)

// httpFlagKeys maps shared HTTP/normalize flags to their config keys
var httpFlagKeys = map[string]string{
	"ua":                "http.user_agent",
	"insecure":          "http.insecure_tls",
	"http-proxy":        "http.http_proxy",
	"https-proxy":       "http.https_proxy",
	"respect-robots":    "http.respect_robots",
	"retries":           "http.max_retries",
	"policy":            "normalize.empty_name_policy",
	"normalize-workers": "concurrency.normalize_workers",
}

// rulesCmd represents the rules command
var rulesCmd = &cobra.Command{
	Use:   "rules [source]",
	Short: "Build a pattern file from one upstream source",
	Long: `Rules fetches one upstream listing and writes its names as token patterns:
- Fetch records from a configured source (default: leilex)
- Read each record's name at the source's name path
- Split names on whitespace and lower-case every token
- Write one pattern per name, in upstream order

Nothing is written when the fetch or any record fails.

Example:
  lexruler rules
  lexruler rules animals --out animals.jsonl --md animals.md
  lexruler rules --url https://example.org/api/names --records-path data --name-path name --label ORG
  lexruler rules plants --kind sparql --url http://dbpedia.org/sparql --query-file plants.rq --name-path label.value --label PLANT`,
	Args:    cobra.MaximumNArgs(1),
	PreRunE: bindHTTPFlags,
	RunE:    runRules,
}

func init() {
	rootCmd.AddCommand(rulesCmd)

	// Output flags
	rulesCmd.Flags().StringVarP(&outPatterns, "out", "o", "patterns.jsonl", "output patterns JSONL path")
	rulesCmd.Flags().StringVar(&outJSON, "json", "", "output JSON report path (optional)")
	rulesCmd.Flags().StringVar(&outMD, "md", "", "output Markdown report path (optional)")

	addSourceFlags(rulesCmd)
	addHTTPFlags(rulesCmd)
	rulesCmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall build timeout")
}

// addSourceFlags registers the flags that describe or override a source
func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&srcKind, "kind", "", "source kind (rest, sparql)")
	cmd.Flags().StringVar(&srcURL, "url", "", "REST URL or SPARQL endpoint")
	cmd.Flags().StringVar(&srcRecordsPath, "records-path", "", "dot path to the record array in a REST response")
	cmd.Flags().StringVar(&srcNamePath, "name-path", "", "dot path to the name in each record")
	cmd.Flags().StringVar(&srcLabel, "label", "", "label attached to every pattern")
	cmd.Flags().StringVar(&srcQueryFile, "query-file", "", "SPARQL query template file")
	cmd.Flags().StringToStringVar(&srcParams, "param", nil, "extra query parameter key=value (repeatable)")
	cmd.Flags().StringToStringVar(&srcVars, "var", nil, "SPARQL template variable key=value (repeatable)")
}

// addHTTPFlags registers the flags listed in httpFlagKeys
func addHTTPFlags(cmd *cobra.Command) {
	def := model.DefaultConfig()
	cmd.Flags().String("ua", def.HTTP.UserAgent, "HTTP User-Agent")
	cmd.Flags().Bool("insecure", false, "skip TLS certificate verification (use for self-signed certs)")
	cmd.Flags().String("http-proxy", "", "HTTP proxy URL (overrides HTTP_PROXY env var)")
	cmd.Flags().String("https-proxy", "", "HTTPS proxy URL (overrides HTTPS_PROXY env var)")
	cmd.Flags().Bool("respect-robots", false, "honor robots.txt and crawl-delay of upstream hosts")
	cmd.Flags().Int("retries", def.HTTP.MaxRetries, "max attempts per upstream request")
	cmd.Flags().String("policy", def.Normalize.EmptyNamePolicy, "empty name policy (skip, reject)")
	cmd.Flags().Int("normalize-workers", def.Concurrency.NormalizeWorkers, "workers for normalizing large listings")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable cache (force fresh fetch)")
}

// bindHTTPFlags binds the running command's flags, so only its values reach viper
func bindHTTPFlags(cmd *cobra.Command, args []string) error {
	for name, key := range httpFlagKeys {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

func runRules(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if noCache {
		cfg.Cache.Enabled = false
	}

	spec, err := resolveSpec(cmd, cfg, args)
	if err != nil {
		return err
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Source: %s (%s)\n", spec.Name, spec.Kind)
		fmt.Fprintf(os.Stderr, "URL:    %s\n", spec.URL)
		fmt.Fprintf(os.Stderr, "Label:  %s\n", spec.Label)
		fmt.Fprintf(os.Stderr, "Cache:  %v\n", cfg.Cache.Enabled)
		fmt.Fprintln(os.Stderr)
	}

	// Create pipeline
	p := pipeline.NewPipeline(cfg, nil)

	if verbose {
		fmt.Fprintf(os.Stderr, "⚙️  Fetching records...\n")
	}

	build, err := p.Build(ctx, spec)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	// Render outputs
	out := pipeline.Outputs{Patterns: outPatterns, JSON: outJSON, Markdown: outMD}
	if err := p.RenderBuild(build, out, verbose); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}

	return nil
}

// resolveSpec picks the configured source named by args (default leilex)
// and applies any source flags on top. With --url and an unknown or absent
// name the flags describe an ad-hoc source.
func resolveSpec(cmd *cobra.Command, cfg *model.Config, args []string) (model.SourceConfig, error) {
	flags := cmd.Flags()
	adhoc := flags.Changed("url")

	name := defaultSourceName
	if len(args) > 0 {
		name = args[0]
	} else if adhoc {
		name = "adhoc"
	}

	spec, found := cfg.FindSource(name)
	if !found {
		if !adhoc {
			return model.SourceConfig{}, fmt.Errorf("unknown source %q (see 'lexruler sources', or pass --url)", name)
		}
		spec = model.SourceConfig{Name: name, Kind: model.SourceKindREST}
	}

	// Copy maps so flag values never leak into the shared config
	spec.Params = maps.Clone(spec.Params)
	spec.Vars = maps.Clone(spec.Vars)

	if flags.Changed("kind") {
		spec.Kind = srcKind
	}
	if adhoc {
		spec.URL = srcURL
	}
	if flags.Changed("records-path") {
		spec.RecordsPath = srcRecordsPath
	}
	if flags.Changed("name-path") {
		spec.NamePath = srcNamePath
	}
	if flags.Changed("label") {
		spec.Label = srcLabel
	}
	if flags.Changed("query-file") {
		spec.QueryFile = srcQueryFile
	}
	for k, v := range srcParams {
		if spec.Params == nil {
			spec.Params = make(map[string]string)
		}
		spec.Params[k] = v
	}
	for k, v := range srcVars {
		if spec.Vars == nil {
			spec.Vars = make(map[string]any)
		}
		spec.Vars[k] = v
	}

	if spec.NamePath == "" {
		return model.SourceConfig{}, fmt.Errorf("source %q: name path is required (--name-path)", spec.Name)
	}
	if spec.Label == "" {
		return model.SourceConfig{}, fmt.Errorf("source %q: label is required (--label)", spec.Name)
	}
	return spec, nil
}
