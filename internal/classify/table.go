package classify

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed categories.yaml
var defaultCategories []byte

//go:embed autotags.yaml
var defaultAutoTags []byte

var (
	defaultsOnce  sync.Once
	defaultTable  Table
	defaultTagMap Table
)

func loadDefaults() {
	var err error
	if defaultTable, err = LoadTable(bytes.NewReader(defaultCategories)); err != nil {
		panic(fmt.Sprintf("classify: embedded categories.yaml: %v", err))
	}
	if defaultTagMap, err = LoadTable(bytes.NewReader(defaultAutoTags)); err != nil {
		panic(fmt.Sprintf("classify: embedded autotags.yaml: %v", err))
	}
}

// DefaultTable returns the built-in category table.
func DefaultTable() Table {
	defaultsOnce.Do(loadDefaults)
	return defaultTable.clone()
}

// DefaultTagTable returns the built-in auto-tag table: for each top
// category, phrases that become tags when they occur in an item's text.
func DefaultTagTable() Table {
	defaultsOnce.Do(loadDefaults)
	return defaultTagMap.clone()
}

// LoadTable reads a YAML mapping of category name to keyword list. Mapping
// order is kept as table order.
func LoadTable(r io.Reader) (Table, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode table: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("decode table: empty document")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("decode table: line %d: expected mapping of category to keywords", root.Line)
	}

	table := make(Table, 0, len(root.Content)/2)
	seen := make(map[string]bool)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		name := strings.TrimSpace(key.Value)
		if name == "" {
			return nil, fmt.Errorf("decode table: line %d: empty category name", key.Line)
		}
		if seen[name] {
			return nil, fmt.Errorf("decode table: line %d: duplicate category %q", key.Line, name)
		}
		seen[name] = true

		var keywords []string
		if err := val.Decode(&keywords); err != nil {
			return nil, fmt.Errorf("decode table: category %q: %w", name, err)
		}
		table = append(table, Category{Name: name, Keywords: keywords})
	}
	return table, nil
}

// LoadTableFile reads a category table from path.
func LoadTableFile(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}
	defer f.Close()
	return LoadTable(f)
}

// Phrases returns the keyword list for a category name, or nil.
func (t Table) Phrases(name string) []string {
	for _, c := range t {
		if c.Name == name {
			return c.Keywords
		}
	}
	return nil
}

func (t Table) clone() Table {
	out := make(Table, len(t))
	for i, c := range t {
		out[i] = Category{Name: c.Name, Keywords: append([]string(nil), c.Keywords...)}
	}
	return out
}
