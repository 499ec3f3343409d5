// Package indexer derives page metadata from page text and keeps the
// wiki's cache in step with the files in its data directory.
package indexer

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/starford/wikistore/internal/models"
)

var (
	wikilinkRe = regexp.MustCompile(`\[\[(.*?)\]\]`)
	tagRe      = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
	todoRe     = regexp.MustCompile(`(?m)^[ \t]*(todo|done)((?:\.[A-Za-z0-9_]+)*):[ \t]*(.*?)[ \t]*$`)
	headingRe  = regexp.MustCompile(`(?m)^#[ \t]+(.+?)[ \t]*$`)
)

// Attribute keys with special meaning.
const (
	KeyAlias = "alias"
	KeyTag   = "tag"
)

// Parsed is the metadata derived from one page's text.
type Parsed struct {
	Attributes []models.Attribute
	MatchTerms []models.MatchTerm
	Relations  []models.Relation
	Todos      []models.Todo
}

// Parse extracts front matter properties, links, tags, todos, aliases and
// the first heading from text. Positions count runes from the start of text.
func Parse(word, text string) *Parsed {
	p := &Parsed{}
	fm, bodyStart := splitFrontMatter(text)
	body := text[bodyStart:]
	pos := func(i int) int { return utf8.RuneCountInString(text[:bodyStart+i]) }

	for _, key := range fm.keys {
		for _, v := range fm.values[key] {
			switch key {
			case "tags":
				p.addAttr(word, KeyTag, v)
			case "aliases":
				p.addAttr(word, KeyAlias, v)
			default:
				p.addAttr(word, key, v)
			}
		}
	}

	for _, m := range wikilinkRe.FindAllStringSubmatchIndex(body, -1) {
		target := body[m[2]:m[3]]
		if i := strings.Index(target, "|"); i >= 0 {
			target = target[:i]
		}
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		p.Relations = append(p.Relations, models.Relation{Word: word, Target: target, FirstCharPos: pos(m[0])})
	}

	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		p.addAttr(word, KeyTag, m[1])
	}

	for _, m := range todoRe.FindAllStringSubmatch(body, -1) {
		p.Todos = append(p.Todos, models.Todo{Word: word, Key: m[1] + m[2], Value: m[3]})
	}

	for _, a := range p.Attributes {
		if a.Key == KeyAlias && a.Value != "" && a.Value != word {
			p.MatchTerms = append(p.MatchTerms, models.MatchTerm{
				Term:          a.Value,
				Word:          word,
				Source:        models.SourceProperties,
				ExplicitAlias: true,
				LinkTarget:    true,
				FirstCharPos:  -1,
				CharLength:    -1,
			})
		}
	}

	if m := headingRe.FindStringSubmatchIndex(body); m != nil {
		title := body[m[2]:m[3]]
		p.MatchTerms = append(p.MatchTerms, models.MatchTerm{
			Term:         title,
			Word:         word,
			Source:       models.SourceContent,
			FirstCharPos: pos(m[2]),
			CharLength:   utf8.RuneCountInString(title),
		})
	}
	return p
}

func (p *Parsed) addAttr(word, key, value string) {
	for _, a := range p.Attributes {
		if a.Key == key && a.Value == value {
			return
		}
	}
	p.Attributes = append(p.Attributes, models.Attribute{Word: word, Key: key, Value: value})
}

// frontMatter keeps YAML keys in document order.
type frontMatter struct {
	keys   []string
	values map[string][]string
}

// splitFrontMatter parses a leading YAML block between --- lines and
// returns it with the byte offset where the body starts. Text without a
// valid block is all body.
func splitFrontMatter(text string) (frontMatter, int) {
	const delim = "---"
	data := []byte(text)
	lead := len(data) - len(bytes.TrimLeft(data, "\n"))
	trimmed := data[lead:]
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return frontMatter{}, 0
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return frontMatter{}, 0
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(rest[:idx], &doc); err != nil {
		return frontMatter{}, 0
	}
	fm, ok := mappingValues(&doc)
	if !ok {
		return frontMatter{}, 0
	}

	end := lead + len(delim) + idx + 1 + len(delim)
	if nl := strings.IndexByte(text[end:], '\n'); nl >= 0 {
		end += nl + 1
	} else {
		end = len(text)
	}
	return fm, end
}

func mappingValues(doc *yaml.Node) (frontMatter, bool) {
	fm := frontMatter{values: map[string][]string{}}
	if doc.Kind == 0 {
		return fm, true
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 || doc.Content[0].Kind != yaml.MappingNode {
		return fm, false
	}
	m := doc.Content[0]
	for i := 0; i+1 < len(m.Content); i += 2 {
		key := m.Content[i].Value
		if _, seen := fm.values[key]; !seen {
			fm.keys = append(fm.keys, key)
		}
		fm.values[key] = append(fm.values[key], scalars(m.Content[i+1])...)
	}
	return fm, true
}

func scalars(n *yaml.Node) []string {
	switch n.Kind {
	case yaml.ScalarNode:
		return []string{n.Value}
	case yaml.SequenceNode:
		var out []string
		for _, c := range n.Content {
			out = append(out, scalars(c)...)
		}
		return out
	case yaml.AliasNode:
		return scalars(n.Alias)
	}
	return nil
}
