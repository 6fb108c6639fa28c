package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "items: ingested content items",
		SQL: `
CREATE TABLE items (
    id            INTEGER PRIMARY KEY,
    url           TEXT UNIQUE,
    external_id   TEXT UNIQUE,
    title         TEXT NOT NULL,
    summary       TEXT NOT NULL DEFAULT '',
    body          TEXT NOT NULL DEFAULT '',
    image_url     TEXT NOT NULL DEFAULT '',
    media         TEXT NOT NULL DEFAULT '[]',
    source        TEXT NOT NULL DEFAULT '',
    source_kind   TEXT NOT NULL CHECK (source_kind IN ('feed', 'social', 'manual')),
    published_at  INTEGER NOT NULL,
    lang          TEXT NOT NULL DEFAULT 'en',

    -- Classification
    categories    TEXT NOT NULL DEFAULT '["General"]',
    top_category  TEXT NOT NULL DEFAULT 'General',

    -- Related item ids, ordered
    related       TEXT NOT NULL DEFAULT '[]',

    published     INTEGER NOT NULL DEFAULT 1,
    pin_rank      INTEGER,
    created_at    INTEGER NOT NULL,
    updated_at    INTEGER NOT NULL,

    CHECK (url IS NOT NULL OR external_id IS NOT NULL)
);

CREATE INDEX idx_items_published_at ON items(published_at DESC);
CREATE INDEX idx_items_top_category ON items(top_category);
`,
	},
	{
		Version:     2,
		Description: "tags: normalized tag names and item membership",
		SQL: `
CREATE TABLE tags (
    id         INTEGER PRIMARY KEY,
    name       TEXT NOT NULL UNIQUE,
    created_at INTEGER NOT NULL
);

CREATE TABLE item_tags (
    item_id  INTEGER NOT NULL,
    tag_id   INTEGER NOT NULL,
    position INTEGER NOT NULL,
    PRIMARY KEY (item_id, tag_id),
    FOREIGN KEY (item_id) REFERENCES items(id) ON DELETE CASCADE,
    FOREIGN KEY (tag_id) REFERENCES tags(id) ON DELETE CASCADE
);

CREATE INDEX idx_item_tags_tag ON item_tags(tag_id);
`,
	},
	{
		Version:     3,
		Description: "devices: delivery tokens, subscriptions and interest vectors",
		SQL: `
CREATE TABLE devices (
    device_id           TEXT PRIMARY KEY,
    token               TEXT NOT NULL,
    interest            TEXT,
    interest_updated_at INTEGER,
    created_at          INTEGER NOT NULL,
    updated_at          INTEGER NOT NULL
);

CREATE TABLE device_categories (
    device_id TEXT NOT NULL,
    category  TEXT NOT NULL,
    PRIMARY KEY (device_id, category),
    FOREIGN KEY (device_id) REFERENCES devices(device_id) ON DELETE CASCADE
);

CREATE INDEX idx_device_categories_category ON device_categories(category);
`,
	},
	{
		Version:     4,
		Description: "interactions: per-device engagement events",
		SQL: `
CREATE TABLE interactions (
    id         INTEGER PRIMARY KEY,
    device_id  TEXT NOT NULL,
    item_id    INTEGER NOT NULL,
    kind       TEXT NOT NULL CHECK (kind IN ('viewed', 'favorited', 'shared')),
    dwell_ms   INTEGER,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (item_id) REFERENCES items(id) ON DELETE CASCADE
);

CREATE INDEX idx_interactions_device ON interactions(device_id, created_at);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
