// Package catalog describes the queryable schema and reference passages that
// query generation and informational answers are grounded on.
package catalog

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type Column struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Description string `yaml:"description,omitempty"`
}

type Table struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Columns     []Column `yaml:"columns"`
}

// Passage is a reference text used for informational answers.
type Passage struct {
	Source string `yaml:"source"`
	Text   string `yaml:"text"`
}

type Catalog struct {
	Tables    []Table   `yaml:"tables"`
	Knowledge []Passage `yaml:"knowledge,omitempty"`
}

// Load reads a YAML catalog file.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if len(c.Tables) == 0 {
		return fmt.Errorf("catalog has no tables")
	}
	seen := make(map[string]struct{}, len(c.Tables))
	for _, t := range c.Tables {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("catalog table without name")
		}
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("catalog table %q declared twice", t.Name)
		}
		seen[t.Name] = struct{}{}
		if len(t.Columns) == 0 {
			return fmt.Errorf("catalog table %q has no columns", t.Name)
		}
	}
	return nil
}

// Render formats the schema as prompt context, one TABLE line per table.
func (c *Catalog) Render() string {
	var b strings.Builder
	for _, t := range c.Tables {
		cols := make([]string, 0, len(t.Columns))
		for _, col := range t.Columns {
			cols = append(cols, strings.TrimSpace(col.Name+" "+col.Type))
		}
		fmt.Fprintf(&b, "TABLE %s (%s)", t.Name, strings.Join(cols, ", "))
		if t.Description != "" {
			fmt.Fprintf(&b, " -- %s", t.Description)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Search returns up to k passages ranked by word overlap with query.
func (c *Catalog) Search(query string, k int) []Passage {
	if c == nil {
		return nil
	}
	words := tokenize(query)
	if len(words) == 0 || k <= 0 {
		return nil
	}
	type scored struct {
		p     Passage
		score int
	}
	var hits []scored
	for _, p := range c.Knowledge {
		score := 0
		text := tokenize(p.Text + " " + p.Source)
		for w := range words {
			if _, ok := text[w]; ok {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{p: p, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	out := make([]Passage, 0, k)
	for i := 0; i < len(hits) && i < k; i++ {
		out = append(out, hits[i].p)
	}
	return out
}

func tokenize(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		if len(f) > 2 {
			out[f] = struct{}{}
		}
	}
	return out
}

// Default is the demo schema matching dataaccess.SeedDemo.
func Default() *Catalog {
	c, err := Parse([]byte(defaultYAML))
	if err != nil {
		panic(err)
	}
	return c
}

const defaultYAML = `
tables:
  - name: projects
    description: one row per project
    columns:
      - {name: id, type: integer}
      - {name: name, type: text}
      - {name: status, type: text, description: active, paused or closed}
      - {name: owner, type: text}
      - {name: budget, type: real}
  - name: work_orders
    description: work orders raised against projects
    columns:
      - {name: id, type: integer}
      - {name: project_id, type: integer}
      - {name: title, type: text}
      - {name: state, type: text, description: open or done}
      - {name: hours, type: real}
knowledge:
  - source: app
    text: The assistant answers project data questions, drafts work requests, summarizes projects and can export results to CSV or Excel, email reports and send notifications.
  - source: exports
    text: Exports are written as CSV by default. Ask for Excel or xlsx to get a spreadsheet.
`
