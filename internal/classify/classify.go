// Package classify assigns content categories by keyword matching against
// an ordered category table.
package classify

import "strings"

// General is the fallback category for text that matches no keyword.
const General = "General"

// Category is one row of the classifier table.
type Category struct {
	Name     string
	Keywords []string
}

// Table is an ordered list of categories. Order decides which category wins
// a tie for the top slot.
type Table []Category

// Result is the outcome of classifying one piece of text.
type Result struct {
	Categories []string
	Top        string
}

// Classifier matches lower-cased text against a fixed table. It holds no
// mutable state and is safe for concurrent use.
type Classifier struct {
	table Table
}

// New builds a classifier over table. Keywords are lower-cased once here;
// blank keywords are dropped. A keyword listed twice in one category,
// including spellings that differ only in case or surrounding space, is
// kept once, so it adds one hit rather than two.
func New(table Table) *Classifier {
	norm := make(Table, 0, len(table))
	for _, cat := range table {
		c := Category{Name: cat.Name}
		seen := make(map[string]bool, len(cat.Keywords))
		for _, kw := range cat.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && !seen[kw] {
				seen[kw] = true
				c.Keywords = append(c.Keywords, kw)
			}
		}
		norm = append(norm, c)
	}
	return &Classifier{table: norm}
}

// Classify returns every category with at least one keyword hit, in table
// order, and the top category: the first whose hit count strictly exceeds
// all earlier counts. Each keyword counts at most once per text. Text with
// no hits classifies as General.
func (c *Classifier) Classify(text string) Result {
	lower := strings.ToLower(text)

	var res Result
	best := 0
	for _, cat := range c.table {
		n := countHits(lower, cat.Keywords)
		if n == 0 {
			continue
		}
		res.Categories = append(res.Categories, cat.Name)
		if n > best {
			best = n
			res.Top = cat.Name
		}
	}

	if len(res.Categories) == 0 {
		return Result{Categories: []string{General}, Top: General}
	}
	return res
}

// Hits returns the per-category keyword hit counts for text, omitting
// categories with no hits.
func (c *Classifier) Hits(text string) map[string]int {
	lower := strings.ToLower(text)
	hits := make(map[string]int)
	for _, cat := range c.table {
		if n := countHits(lower, cat.Keywords); n > 0 {
			hits[cat.Name] = n
		}
	}
	return hits
}

// Categories lists the table's category names in order.
func (c *Classifier) Categories() []string {
	names := make([]string, len(c.table))
	for i, cat := range c.table {
		names[i] = cat.Name
	}
	return names
}

func countHits(lower string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			n++
		}
	}
	return n
}
