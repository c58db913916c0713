package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/lexruler/internal/model"
)

func newSourceCmd(t *testing.T, flags map[string]string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "rules"}
	addSourceFlags(cmd)
	for name, value := range flags {
		if err := cmd.Flags().Set(name, value); err != nil {
			t.Fatalf("set flag %s: %v", name, err)
		}
	}
	return cmd
}

func useConfigFile(t *testing.T, content string) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	viper.SetConfigFile(path)
	viper.SetEnvPrefix("LEXRULER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("read config: %v", err)
	}
}

func TestResolveSpec_Default(t *testing.T) {
	cfg := model.DefaultConfig()

	spec, err := resolveSpec(newSourceCmd(t, nil), cfg, nil)
	if err != nil {
		t.Fatalf("resolveSpec failed: %v", err)
	}
	if spec.Name != "leilex" || spec.Label != "LEI" || spec.NamePath != "LegalName" {
		t.Errorf("unexpected default source: %+v", spec)
	}
}

func TestResolveSpec_Overrides(t *testing.T) {
	cfg := model.DefaultConfig()
	cmd := newSourceCmd(t, map[string]string{
		"label": "COMPANY",
		"param": "country=BE",
	})

	spec, err := resolveSpec(cmd, cfg, []string{"leilex"})
	if err != nil {
		t.Fatalf("resolveSpec failed: %v", err)
	}
	if spec.Label != "COMPANY" || spec.Params["country"] != "BE" {
		t.Errorf("overrides not applied: %+v", spec)
	}
	if spec.Params["RegistrationStatus"] != "ISSUED" {
		t.Error("configured params should be kept")
	}

	orig, _ := cfg.FindSource("leilex")
	if orig.Params["country"] != "NL" {
		t.Error("overrides must not modify the configured source")
	}
}

func TestResolveSpec_AdHoc(t *testing.T) {
	cmd := newSourceCmd(t, map[string]string{
		"url":       "https://example.org/names",
		"name-path": "name",
		"label":     "ORG",
	})

	spec, err := resolveSpec(cmd, model.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("resolveSpec failed: %v", err)
	}
	if spec.Name != "adhoc" || spec.Kind != model.SourceKindREST || spec.URL != "https://example.org/names" {
		t.Errorf("unexpected ad-hoc source: %+v", spec)
	}
}

func TestResolveSpec_Errors(t *testing.T) {
	cfg := model.DefaultConfig()

	if _, err := resolveSpec(newSourceCmd(t, nil), cfg, []string{"plants"}); err == nil {
		t.Error("expected error for unknown source without --url")
	}

	cmd := newSourceCmd(t, map[string]string{"url": "https://example.org", "label": "X"})
	if _, err := resolveSpec(cmd, cfg, nil); err == nil || !strings.Contains(err.Error(), "name path") {
		t.Errorf("expected missing name path error, got %v", err)
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	useConfigFile(t, `
http:
  timeout: 7s
normalize:
  empty_name_policy: reject
sources:
  - name: leilex
    kind: rest
    url: https://api.leilex.com/API/LEI/
    params:
      RegistrationStatus: LAPSED
    records_path: records
    name_path: LegalName
    label: LEI
`)
	t.Setenv("LEXRULER_CONCURRENCY_WORKERS", "9")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}

	if cfg.HTTP.Timeout != 7*time.Second {
		t.Errorf("expected timeout from file, got %v", cfg.HTTP.Timeout)
	}
	if cfg.HTTP.UserAgent != model.DefaultConfig().HTTP.UserAgent {
		t.Error("unset keys should keep defaults")
	}
	if cfg.Normalize.EmptyNamePolicy != model.EmptyNameReject {
		t.Errorf("expected reject policy, got %q", cfg.Normalize.EmptyNamePolicy)
	}
	if cfg.Concurrency.Workers != 9 {
		t.Errorf("expected workers from env, got %d", cfg.Concurrency.Workers)
	}
	if len(cfg.Sources) != 1 {
		t.Fatalf("file sources should replace defaults, got %d", len(cfg.Sources))
	}
	if cfg.Sources[0].Params["RegistrationStatus"] != "LAPSED" {
		t.Errorf("param key case must be preserved: %v", cfg.Sources[0].Params)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	useConfigFile(t, `
sources:
  - name: a
    kind: rest
  - name: a
    kind: rest
`)
	if _, err := loadConfig(); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("expected duplicate source error, got %v", err)
	}

	useConfigFile(t, "normalize:\n  empty_name_policy: ignore\n")
	if _, err := loadConfig(); err == nil {
		t.Error("expected invalid policy error")
	}
}

func TestWriteDefaultConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := writeDefaultConfig(path); err != nil {
		t.Fatalf("writeDefaultConfig failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	useConfigFile(t, string(data))

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}

	def := model.DefaultConfig()
	if cfg.HTTP.Timeout != def.HTTP.Timeout || cfg.Cache.DiskTTL != def.Cache.DiskTTL {
		t.Errorf("durations did not round-trip: %v %v", cfg.HTTP.Timeout, cfg.Cache.DiskTTL)
	}
	animals, ok := cfg.FindSource("animals")
	if !ok {
		t.Fatal("animals source missing")
	}
	if animals.Query != model.DefaultAnimalQuery {
		t.Error("query template did not round-trip")
	}
	leilex, _ := cfg.FindSource("leilex")
	if leilex.Params["RegistrationStatus"] != "ISSUED" {
		t.Errorf("params did not round-trip: %v", leilex.Params)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"leilex":          "leilex",
		"dbpedia animals": "dbpedia-animals",
		"../etc/passwd":   "_etc_passwd",
		"a:b|c":           "a_b_c",
		"...":             "source",
	}
	for in, want := range tests {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
