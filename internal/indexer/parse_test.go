package indexer

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/wikistore/internal/models"
)

func TestParse_FrontMatterAndBody(t *testing.T) {
	text := "---\ntitle: Hello\ntags:\n  - go\n  - wiki\nalias: Greeting\n---\n# Hello\nSee [[World]].\n"
	p := Parse("Hello", text)

	want := []models.Attribute{
		{Word: "Hello", Key: "title", Value: "Hello"},
		{Word: "Hello", Key: KeyTag, Value: "go"},
		{Word: "Hello", Key: KeyTag, Value: "wiki"},
		{Word: "Hello", Key: KeyAlias, Value: "Greeting"},
	}
	if diff := cmp.Diff(want, p.Attributes); diff != "" {
		t.Errorf("attributes (-want +got):\n%s", diff)
	}

	if len(p.Relations) != 1 || p.Relations[0].Target != "World" {
		t.Fatalf("relations = %v", p.Relations)
	}
	if got := p.Relations[0].FirstCharPos; text[got:got+2] != "[[" {
		t.Errorf("link position %d does not point at the link", got)
	}
}

func TestParse_NoFrontMatter(t *testing.T) {
	p := Parse("Page", "# Just a heading\nSome text.\n")
	if len(p.Attributes) != 0 {
		t.Errorf("expected no attributes, got %v", p.Attributes)
	}
	want := []models.MatchTerm{{
		Term: "Just a heading", Word: "Page", Source: models.SourceContent,
		FirstCharPos: 2, CharLength: 14,
	}}
	if diff := cmp.Diff(want, p.MatchTerms); diff != "" {
		t.Errorf("match terms (-want +got):\n%s", diff)
	}
}

func TestParse_InvalidYAMLFallback(t *testing.T) {
	p := Parse("Page", "---\n: invalid: yaml: {{{\n---\nBody [[Link]]\n")
	if len(p.Attributes) != 0 {
		t.Errorf("expected no attributes on invalid YAML, got %v", p.Attributes)
	}
	if len(p.Relations) != 1 || p.Relations[0].Target != "Link" {
		t.Errorf("relations = %v", p.Relations)
	}
}

func TestParse_LinksKeepEveryOccurrence(t *testing.T) {
	p := Parse("P", "See [[Note A]] and [[Note B|label]].\nAlso [[Note A]] again. [[ ]] [[|x]]")
	want := []models.Relation{
		{Word: "P", Target: "Note A", FirstCharPos: 4},
		{Word: "P", Target: "Note B", FirstCharPos: 19},
		{Word: "P", Target: "Note A", FirstCharPos: 42},
	}
	if diff := cmp.Diff(want, p.Relations); diff != "" {
		t.Errorf("relations (-want +got):\n%s", diff)
	}
}

func TestParse_PositionsCountRunes(t *testing.T) {
	p := Parse("P", "größe [[Ziel]]")
	if len(p.Relations) != 1 || p.Relations[0].FirstCharPos != 6 {
		t.Errorf("relations = %v, want position 6", p.Relations)
	}
}

func TestParse_TagsInlineAndFrontMatter(t *testing.T) {
	p := Parse("P", "---\ntags: [alpha]\n---\nSome text #beta and #alpha again.")
	want := []models.Attribute{
		{Word: "P", Key: KeyTag, Value: "alpha"},
		{Word: "P", Key: KeyTag, Value: "beta"},
	}
	if diff := cmp.Diff(want, p.Attributes); diff != "" {
		t.Errorf("attributes (-want +got):\n%s", diff)
	}
}

func TestParse_Todos(t *testing.T) {
	p := Parse("P", "intro\ntodo: write tests  \n  done.work: ship it\nnot a todo: here\n")
	want := []models.Todo{
		{Word: "P", Key: "todo", Value: "write tests"},
		{Word: "P", Key: "done.work", Value: "ship it"},
	}
	if diff := cmp.Diff(want, p.Todos); diff != "" {
		t.Errorf("todos (-want +got):\n%s", diff)
	}
}

func TestParse_AliasesBecomeLinkTerms(t *testing.T) {
	p := Parse("Robert", "---\naliases:\n  - Bob\n  - Robert\n---\nbody")
	want := []models.MatchTerm{{
		Term: "Bob", Word: "Robert", Source: models.SourceProperties,
		ExplicitAlias: true, LinkTarget: true, FirstCharPos: -1, CharLength: -1,
	}}
	if diff := cmp.Diff(want, p.MatchTerms); diff != "" {
		t.Errorf("match terms (-want +got):\n%s", diff)
	}
}
