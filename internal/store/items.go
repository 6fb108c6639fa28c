package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// SourceKind identifies where an item came from.
type SourceKind string

const (
	SourceFeed   SourceKind = "feed"
	SourceSocial SourceKind = "social"
	SourceManual SourceKind = "manual"
)

// Valid reports whether k is a known source kind.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceFeed, SourceSocial, SourceManual:
		return true
	}
	return false
}

// Media is one attached media reference.
type Media struct {
	URL  string `json:"url"`
	Kind string `json:"kind,omitempty"` // "image", "video"
}

// Item is a stored content item. Exactly one of URL and ExternalID is set.
type Item struct {
	ID          int64
	URL         string
	ExternalID  string
	Title       string
	Summary     string
	Body        string
	ImageURL    string
	Media       []Media
	Source      string
	SourceKind  SourceKind
	PublishedAt int64 // unix millis
	Lang        string
	Categories  []string
	TopCategory string
	Tags        []Tag
	Related     []int64
	Published   bool
	PinRank     *int
	CreatedAt   int64
	UpdatedAt   int64
}

// PublishedTime returns PublishedAt as a time.Time.
func (it *Item) PublishedTime() time.Time {
	return time.UnixMilli(it.PublishedAt)
}

// TagIDs returns the ids of the item's tags, in order.
func (it *Item) TagIDs() []int64 {
	ids := make([]int64, len(it.Tags))
	for i, t := range it.Tags {
		ids[i] = t.ID
	}
	return ids
}

// ItemFilter narrows ListItems.
type ItemFilter struct {
	Category    string
	Categories  []string // any of
	Source      string   // source name, case-insensitive
	SourceKind  SourceKind
	VisibleOnly bool
	Before      int64 // cursor: unpinned items published before this (unix millis)
	Limit       int
	Offset      int
}

const itemColumns = `id, url, external_id, title, summary, body, image_url, media, source, source_kind,
	published_at, lang, categories, top_category, related, published, pin_rank, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (*Item, error) {
	var (
		it                         Item
		url, externalID            sql.NullString
		media, categories, related string
		published                  int
		pinRank                    sql.NullInt64
	)
	err := row.Scan(&it.ID, &url, &externalID, &it.Title, &it.Summary, &it.Body, &it.ImageURL,
		&media, &it.Source, &it.SourceKind, &it.PublishedAt, &it.Lang, &categories, &it.TopCategory,
		&related, &published, &pinRank, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, err
	}
	it.URL = url.String
	it.ExternalID = externalID.String
	it.Published = published != 0
	if pinRank.Valid {
		p := int(pinRank.Int64)
		it.PinRank = &p
	}
	if err := json.Unmarshal([]byte(media), &it.Media); err != nil {
		return nil, fmt.Errorf("decode media for item %d: %w", it.ID, err)
	}
	if err := json.Unmarshal([]byte(categories), &it.Categories); err != nil {
		return nil, fmt.Errorf("decode categories for item %d: %w", it.ID, err)
	}
	if err := json.Unmarshal([]byte(related), &it.Related); err != nil {
		return nil, fmt.Errorf("decode related for item %d: %w", it.ID, err)
	}
	return &it, nil
}

// InsertItemIfAbsent stores it unless an item with the same URL or external
// ID already exists. On insert it.ID, CreatedAt and UpdatedAt are set and
// created is true. On conflict the existing item is returned and nothing is
// written. The check and insert are a single statement, so concurrent
// callers with the same identity produce exactly one row.
func (db *DB) InsertItemIfAbsent(ctx context.Context, it *Item) (existing *Item, created bool, err error) {
	media, categories, related, err := encodeItemJSON(it)
	if err != nil {
		return nil, false, err
	}
	now := time.Now().UnixMilli()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin insert item: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO items (url, external_id, title, summary, body, image_url, media, source, source_kind,
			published_at, lang, categories, top_category, related, published, pin_rank, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, nullString(it.URL), nullString(it.ExternalID), it.Title, it.Summary, it.Body, it.ImageURL, media,
		it.Source, it.SourceKind, it.PublishedAt, it.Lang, categories, it.TopCategory, related,
		boolInt(it.Published), nullInt(it.PinRank), now, now)
	if err != nil {
		return nil, false, fmt.Errorf("insert item: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		tx.Rollback()
		found, err := db.FindItemByIdentity(ctx, it.URL, it.ExternalID)
		if err != nil {
			return nil, false, err
		}
		if found == nil {
			return nil, false, fmt.Errorf("insert item: conflict but no existing row for url=%q external_id=%q", it.URL, it.ExternalID)
		}
		return found, false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("insert item id: %w", err)
	}
	if err := writeItemTags(ctx, tx, id, it.TagIDs()); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit insert item: %w", err)
	}

	it.ID = id
	it.CreatedAt = now
	it.UpdatedAt = now
	return nil, true, nil
}

// GetItem returns an item by id, or nil if not found.
func (db *DB) GetItem(ctx context.Context, id int64) (*Item, error) {
	it, err := scanItem(db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if err := db.loadTags(ctx, []*Item{it}); err != nil {
		return nil, err
	}
	return it, nil
}

// FindItemByIdentity returns the item whose URL or external ID matches,
// or nil. Empty arguments are ignored.
func (db *DB) FindItemByIdentity(ctx context.Context, url, externalID string) (*Item, error) {
	if url == "" && externalID == "" {
		return nil, nil
	}
	it, err := scanItem(db.QueryRowContext(ctx, `
		SELECT `+itemColumns+` FROM items
		WHERE (? != '' AND url = ?) OR (? != '' AND external_id = ?)
		ORDER BY id LIMIT 1
	`, url, url, externalID, externalID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find item: %w", err)
	}
	if err := db.loadTags(ctx, []*Item{it}); err != nil {
		return nil, err
	}
	return it, nil
}

// UpdateItem rewrites the editable fields of an existing item: content,
// classification, image, visibility and pin rank. Identity, source and
// related ids are left alone. Tags are replaced when it.Tags is non-nil.
func (db *DB) UpdateItem(ctx context.Context, it *Item) error {
	media, categories, _, err := encodeItemJSON(it)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update item: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE items SET title = ?, summary = ?, body = ?, image_url = ?, media = ?, lang = ?,
			categories = ?, top_category = ?, published = ?, pin_rank = ?, updated_at = ?
		WHERE id = ?
	`, it.Title, it.Summary, it.Body, it.ImageURL, media, it.Lang, categories, it.TopCategory,
		boolInt(it.Published), nullInt(it.PinRank), now, it.ID)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update item %d: %w", it.ID, ErrNotFound)
	}
	if it.Tags != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM item_tags WHERE item_id = ?`, it.ID); err != nil {
			return fmt.Errorf("clear item tags: %w", err)
		}
		if err := writeItemTags(ctx, tx, it.ID, it.TagIDs()); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update item: %w", err)
	}
	it.UpdatedAt = now
	return nil
}

// UpdateCategories replaces an item's classification.
func (db *DB) UpdateCategories(ctx context.Context, id int64, categories []string, top string) error {
	data, err := json.Marshal(categories)
	if err != nil {
		return fmt.Errorf("encode categories: %w", err)
	}
	res, err := db.ExecContext(ctx, `
		UPDATE items SET categories = ?, top_category = ?, updated_at = ? WHERE id = ?
	`, string(data), top, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("update categories: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update categories %d: %w", id, ErrNotFound)
	}
	return nil
}

// SetItemTags replaces an item's tag list with tagIDs, in order.
func (db *DB) SetItemTags(ctx context.Context, itemID int64, tagIDs []int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set tags: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE id = ?`, itemID).Scan(&exists); err != nil {
		return fmt.Errorf("check item: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("set tags on item %d: %w", itemID, ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM item_tags WHERE item_id = ?`, itemID); err != nil {
		return fmt.Errorf("clear item tags: %w", err)
	}
	if err := writeItemTags(ctx, tx, itemID, tagIDs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit set tags: %w", err)
	}
	return nil
}

// SetRelated replaces an item's related list.
func (db *DB) SetRelated(ctx context.Context, itemID int64, related []int64) error {
	if related == nil {
		related = []int64{}
	}
	data, err := json.Marshal(related)
	if err != nil {
		return fmt.Errorf("encode related: %w", err)
	}
	res, err := db.ExecContext(ctx, `UPDATE items SET related = ? WHERE id = ?`, string(data), itemID)
	if err != nil {
		return fmt.Errorf("set related: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set related on item %d: %w", itemID, ErrNotFound)
	}
	return nil
}

// ItemsWithAnyTag returns every item carrying at least one of tagIDs,
// most recently published first.
func (db *DB) ItemsWithAnyTag(ctx context.Context, tagIDs []int64) ([]*Item, error) {
	if len(tagIDs) == 0 {
		return nil, nil
	}
	return db.queryItems(ctx, `
		SELECT `+itemColumns+` FROM items
		WHERE id IN (SELECT item_id FROM item_tags WHERE tag_id IN (`+placeholders(len(tagIDs))+`))
		ORDER BY published_at DESC, id DESC
	`, int64Args(tagIDs)...)
}

// RecentItemsSharingTags returns up to limit items other than excludeID that
// share at least one of tagIDs, most recently published first.
func (db *DB) RecentItemsSharingTags(ctx context.Context, tagIDs []int64, excludeID int64, limit int) ([]*Item, error) {
	if len(tagIDs) == 0 || limit <= 0 {
		return nil, nil
	}
	args := append(int64Args(tagIDs), excludeID, limit)
	return db.queryItems(ctx, `
		SELECT `+itemColumns+` FROM items
		WHERE id IN (SELECT item_id FROM item_tags WHERE tag_id IN (`+placeholders(len(tagIDs))+`))
		  AND id != ?
		ORDER BY published_at DESC, id DESC
		LIMIT ?
	`, args...)
}

// RecentItems returns up to limit visible items published at or after
// since (unix millis), most recent first.
func (db *DB) RecentItems(ctx context.Context, since int64, limit int) ([]*Item, error) {
	return db.queryItems(ctx, `
		SELECT `+itemColumns+` FROM items
		WHERE published = 1 AND published_at >= ?
		ORDER BY published_at DESC, id DESC
		LIMIT ?
	`, since, limit)
}

// ListItems returns items matching f, newest first. Pinned items sort ahead
// of the rest by ascending pin rank. With a Before cursor only unpinned
// items are returned, so pinned items appear on the first page alone.
func (db *DB) ListItems(ctx context.Context, f ItemFilter) ([]*Item, error) {
	var (
		where []string
		args  []any
	)
	if f.Category != "" {
		where = append(where, `EXISTS (SELECT 1 FROM json_each(items.categories) WHERE value = ?)`)
		args = append(args, f.Category)
	}
	if len(f.Categories) > 0 {
		where = append(where, `EXISTS (SELECT 1 FROM json_each(items.categories) WHERE value IN (`+placeholders(len(f.Categories))+`))`)
		for _, c := range f.Categories {
			args = append(args, c)
		}
	}
	if f.Source != "" {
		where = append(where, `lower(source) = lower(?)`)
		args = append(args, f.Source)
	}
	if f.SourceKind != "" {
		where = append(where, `source_kind = ?`)
		args = append(args, f.SourceKind)
	}
	if f.VisibleOnly {
		where = append(where, `published = 1`)
	}
	if f.Before > 0 {
		where = append(where, `pin_rank IS NULL AND published_at < ?`)
		args = append(args, f.Before)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + itemColumns + ` FROM items`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY pin_rank IS NULL, pin_rank, published_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)
	return db.queryItems(ctx, query, args...)
}

// SearchItems returns up to limit visible items whose title or summary
// contains q, ignoring case, most recently published first.
func (db *DB) SearchItems(ctx context.Context, q string, limit int) ([]*Item, error) {
	q = strings.TrimSpace(q)
	if q == "" || limit <= 0 {
		return nil, nil
	}
	return db.queryItems(ctx, `
		SELECT `+itemColumns+` FROM items
		WHERE published = 1
		  AND (instr(lower(title), lower(?)) > 0 OR instr(lower(summary), lower(?)) > 0)
		ORDER BY published_at DESC, id DESC
		LIMIT ?
	`, q, q, limit)
}

// ListSources returns the distinct non-empty source names, sorted.
func (db *DB) ListSources(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT DISTINCT source FROM items WHERE source != '' ORDER BY source
	`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// ItemsAfter returns up to limit items with id greater than afterID, in id
// order. Used to page through the whole table.
func (db *DB) ItemsAfter(ctx context.Context, afterID int64, limit int) ([]*Item, error) {
	return db.queryItems(ctx, `
		SELECT `+itemColumns+` FROM items WHERE id > ? ORDER BY id LIMIT ?
	`, afterID, limit)
}

// ItemsByIDs returns the items with the given ids in the order of ids.
// Unknown ids are skipped.
func (db *DB) ItemsByIDs(ctx context.Context, ids []int64) ([]*Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	items, err := db.queryItems(ctx, `
		SELECT `+itemColumns+` FROM items WHERE id IN (`+placeholders(len(ids))+`)
	`, int64Args(ids)...)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	out := make([]*Item, 0, len(ids))
	for _, id := range ids {
		if it, ok := byID[id]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

// ItemCategories returns the categories of each of the given items.
func (db *DB) ItemCategories(ctx context.Context, ids []int64) (map[int64][]string, error) {
	out := make(map[int64][]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, categories FROM items WHERE id IN (`+placeholders(len(ids))+`)
	`, int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("item categories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id   int64
			data string
			cats []string
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan item categories: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &cats); err != nil {
			return nil, fmt.Errorf("decode categories for item %d: %w", id, err)
		}
		out[id] = cats
	}
	return out, rows.Err()
}

// CountItems returns the number of stored items.
func (db *DB) CountItems(ctx context.Context) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}

func (db *DB) queryItems(ctx context.Context, query string, args ...any) ([]*Item, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	var items []*Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	rows.Close()

	if err := db.loadTags(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// loadTags fills Tags on each item. Must not be called with open rows on
// the same connection.
func (db *DB) loadTags(ctx context.Context, items []*Item) error {
	if len(items) == 0 {
		return nil
	}
	byID := make(map[int64]*Item, len(items))
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		it.Tags = []Tag{}
		byID[it.ID] = it
		ids = append(ids, it.ID)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT it.item_id, t.id, t.name FROM item_tags it
		JOIN tags t ON t.id = it.tag_id
		WHERE it.item_id IN (`+placeholders(len(ids))+`)
		ORDER BY it.item_id, it.position
	`, int64Args(ids)...)
	if err != nil {
		return fmt.Errorf("load item tags: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			itemID int64
			t      Tag
		)
		if err := rows.Scan(&itemID, &t.ID, &t.Name); err != nil {
			return fmt.Errorf("scan item tag: %w", err)
		}
		byID[itemID].Tags = append(byID[itemID].Tags, t)
	}
	return rows.Err()
}

func writeItemTags(ctx context.Context, tx *sql.Tx, itemID int64, tagIDs []int64) error {
	seen := make(map[int64]bool, len(tagIDs))
	pos := 0
	for _, tagID := range tagIDs {
		if seen[tagID] {
			continue
		}
		seen[tagID] = true
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO item_tags (item_id, tag_id, position) VALUES (?, ?, ?)
		`, itemID, tagID, pos); err != nil {
			return fmt.Errorf("insert item tag: %w", err)
		}
		pos++
	}
	return nil
}

func encodeItemJSON(it *Item) (media, categories, related string, err error) {
	m := it.Media
	if m == nil {
		m = []Media{}
	}
	mb, err := json.Marshal(m)
	if err != nil {
		return "", "", "", fmt.Errorf("encode media: %w", err)
	}
	cb, err := json.Marshal(it.Categories)
	if err != nil {
		return "", "", "", fmt.Errorf("encode categories: %w", err)
	}
	r := it.Related
	if r == nil {
		r = []int64{}
	}
	rb, err := json.Marshal(r)
	if err != nil {
		return "", "", "", fmt.Errorf("encode related: %w", err)
	}
	return string(mb), string(cb), string(rb), nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
