package model

import "time"

// BuildReport describes one completed rule build
type BuildReport struct {
	ID        string        `json:"id"`                // ULID of the build
	Source    string        `json:"source"`            // Source name
	Kind      string        `json:"kind"`              // rest or sparql
	URL       string        `json:"url"`               // Upstream URL or endpoint
	Label     string        `json:"label"`             // Label attached to every rule
	Records   int           `json:"records"`           // Records received from upstream
	Rules     int           `json:"rules"`             // Rules produced
	Skipped   []int         `json:"skipped,omitempty"` // Records dropped for empty names
	FromCache bool          `json:"from_cache"`
	FetchedAt time.Time     `json:"fetched_at"`
	Duration  time.Duration `json:"duration_ns"`
}

// Build is a completed rule build ready to hand to a matcher
type Build struct {
	Report BuildReport `json:"report"`
	Rules  RuleSet     `json:"rules"`
}
