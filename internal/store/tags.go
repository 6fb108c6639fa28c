package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Tag is a normalized tag name with its stable id.
type Tag struct {
	ID   int64
	Name string
}

// FindOrCreateTags returns the id of each name, creating missing tags.
// Names must already be normalized. Output order matches input order.
// Concurrent callers racing on the same name get the same id.
func (db *DB) FindOrCreateTags(ctx context.Context, names []string) ([]int64, error) {
	ids := make([]int64, 0, len(names))
	now := time.Now().UnixMilli()
	for _, name := range names {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO tags (name, created_at) VALUES (?, ?)
			ON CONFLICT(name) DO NOTHING
		`, name, now); err != nil {
			return nil, fmt.Errorf("upsert tag %q: %w", name, err)
		}
		var id int64
		if err := db.QueryRowContext(ctx, `SELECT id FROM tags WHERE name = ?`, name).Scan(&id); err != nil {
			return nil, fmt.Errorf("get tag %q: %w", name, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// GetTagByName returns the tag with the given name, or nil.
func (db *DB) GetTagByName(ctx context.Context, name string) (*Tag, error) {
	var t Tag
	err := db.QueryRowContext(ctx, `SELECT id, name FROM tags WHERE name = ?`, name).Scan(&t.ID, &t.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tag: %w", err)
	}
	return &t, nil
}

// ListTags returns all tags with the number of items carrying each,
// most used first.
func (db *DB) ListTags(ctx context.Context) ([]TagCount, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT t.id, t.name, COUNT(it.item_id) AS n
		FROM tags t LEFT JOIN item_tags it ON it.tag_id = t.id
		GROUP BY t.id
		ORDER BY n DESC, t.name
	`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var out []TagCount
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.ID, &tc.Name, &tc.Items); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// TagCount is a tag with its item count.
type TagCount struct {
	Tag
	Items int
}
