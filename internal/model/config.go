package model

import (
	_ "embed"
	"time"
)

// DefaultAnimalQuery lists English labels of DBpedia animals
//
//go:embed queries/animal.rq
var DefaultAnimalQuery string

// Source kinds
const (
	SourceKindREST   = "rest"
	SourceKindSPARQL = "sparql"
)

// Empty-name policies for the normalizer
const (
	EmptyNameSkip   = "skip"
	EmptyNameReject = "reject"
)

// Config holds the complete lexruler configuration
type Config struct {
	HTTP         HTTPConfig         `yaml:"http" mapstructure:"http"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	Normalize    NormalizeConfig    `yaml:"normalize" mapstructure:"normalize"`
	Output       OutputConfig       `yaml:"output" mapstructure:"output"`
	Sources      []SourceConfig     `yaml:"sources" mapstructure:"sources"`
}

// HTTPConfig controls upstream requests
type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	InsecureTLS   bool          `yaml:"insecure_tls" mapstructure:"insecure_tls"`
	HTTPProxy     string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy    string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy       string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
	RespectRobots bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	MaxRetries    int           `yaml:"max_retries" mapstructure:"max_retries"`
}

// CacheConfig controls caching of upstream responses
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// RateLimitingConfig is applied per upstream domain
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// ConcurrencyConfig sizes the worker pools
type ConcurrencyConfig struct {
	Workers          int `yaml:"workers" mapstructure:"workers"`                     // sources built in parallel by batch
	NormalizeWorkers int `yaml:"normalize_workers" mapstructure:"normalize_workers"` // 1 = sequential normalization
}

// NormalizeConfig controls record normalization
type NormalizeConfig struct {
	EmptyNamePolicy string `yaml:"empty_name_policy" mapstructure:"empty_name_policy"` // skip or reject
}

// OutputConfig controls rendering
type OutputConfig struct {
	Verbose bool `yaml:"verbose" mapstructure:"verbose"`
}

// SourceConfig describes one upstream source of entity names
type SourceConfig struct {
	Name        string            `yaml:"name" mapstructure:"name"`
	Kind        string            `yaml:"kind" mapstructure:"kind"` // rest or sparql
	URL         string            `yaml:"url" mapstructure:"url"`   // REST URL or SPARQL endpoint
	Params      map[string]string `yaml:"params,omitempty" mapstructure:"params"`
	RecordsPath string            `yaml:"records_path,omitempty" mapstructure:"records_path"`
	NamePath    string            `yaml:"name_path" mapstructure:"name_path"`
	Label       string            `yaml:"label" mapstructure:"label"`
	Query       string            `yaml:"query,omitempty" mapstructure:"query"`
	QueryFile   string            `yaml:"query_file,omitempty" mapstructure:"query_file"`
	Vars        map[string]any    `yaml:"vars,omitempty" mapstructure:"vars"`
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Timeout:       30 * time.Second,
			UserAgent:     "lexruler/0.1 (+https://github.com/ppiankov/lexruler)",
			MaxBodyBytes:  20_000_000,
			RespectRobots: false,
			MaxRetries:    3,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".lexruler-cache",
			MemoryTTL: 10 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 2,
			BurstSize:         2,
		},
		Concurrency: ConcurrencyConfig{
			Workers:          4,
			NormalizeWorkers: 1,
		},
		Normalize: NormalizeConfig{
			EmptyNamePolicy: EmptyNameSkip,
		},
		Sources: DefaultSources(),
	}
}

// DefaultSources returns the two reference sources: Dutch LEI legal names
// and DBpedia animal labels
func DefaultSources() []SourceConfig {
	return []SourceConfig{
		{
			Name: "leilex",
			Kind: SourceKindREST,
			URL:  "https://api.leilex.com/API/LEI/",
			Params: map[string]string{
				"country":            "NL",
				"RegistrationStatus": "ISSUED",
			},
			RecordsPath: "records",
			NamePath:    "LegalName",
			Label:       "LEI",
		},
		{
			Name:     "animals",
			Kind:     SourceKindSPARQL,
			URL:      "http://dbpedia.org/sparql",
			NamePath: "label.value",
			Label:    "ANIMAL",
			Query:    DefaultAnimalQuery,
			Vars: map[string]any{
				"lang":  "en",
				"limit": 10000,
			},
		},
	}
}

// FindSource returns the configured source with the given name
func (c *Config) FindSource(name string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return SourceConfig{}, false
}
