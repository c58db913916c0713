package model

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNewMatchRule(t *testing.T) {
	rule, err := NewMatchRule("LEI", []string{"van", "veen", "b.v."})
	if err != nil {
		t.Fatalf("NewMatchRule failed: %v", err)
	}
	if rule.Len() != 3 {
		t.Errorf("expected 3 constraints, got %d", rule.Len())
	}
	if rule.Phrase() != "van veen b.v." {
		t.Errorf("unexpected phrase: %q", rule.Phrase())
	}
	for _, c := range rule.Constraints {
		if c.Attr != AttrLower {
			t.Errorf("expected LOWER constraint, got %s", c.Attr)
		}
	}

	if _, err := NewMatchRule("", []string{"a"}); !errors.Is(err, ErrEmptyLabel) {
		t.Errorf("expected ErrEmptyLabel, got %v", err)
	}
	if _, err := NewMatchRule("LEI", nil); !errors.Is(err, ErrNoConstraints) {
		t.Errorf("expected ErrNoConstraints, got %v", err)
	}
}

func TestMatchRule_JSON(t *testing.T) {
	rule, _ := NewMatchRule("ANIMAL", []string{"american", "bison"})

	data, err := json.Marshal(rule)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"label":"ANIMAL","pattern":[{"LOWER":"american"},{"LOWER":"bison"}]}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestRuleSet_Labels(t *testing.T) {
	a, _ := NewMatchRule("LEI", []string{"a"})
	b, _ := NewMatchRule("ANIMAL", []string{"b"})
	c, _ := NewMatchRule("LEI", []string{"c"})

	labels := RuleSet{a, b, c}.Labels()
	if len(labels) != 2 || labels[0] != "LEI" || labels[1] != "ANIMAL" {
		t.Errorf("unexpected labels: %v", labels)
	}
	if got := (RuleSet{}).Labels(); len(got) != 0 {
		t.Errorf("expected no labels, got %v", got)
	}
}

func TestDefaultConfig_Sources(t *testing.T) {
	cfg := DefaultConfig()

	leilex, ok := cfg.FindSource("leilex")
	if !ok {
		t.Fatal("leilex source missing")
	}
	if leilex.Kind != SourceKindREST || leilex.Label != "LEI" || leilex.Params["country"] != "NL" {
		t.Errorf("unexpected leilex source: %+v", leilex)
	}

	animals, ok := cfg.FindSource("animals")
	if !ok {
		t.Fatal("animals source missing")
	}
	if animals.Kind != SourceKindSPARQL || animals.NamePath != "label.value" || animals.Query == "" {
		t.Errorf("unexpected animals source: %+v", animals)
	}

	if _, ok := cfg.FindSource("plants"); ok {
		t.Error("unexpected plants source")
	}
}
