package store

import (
	"context"
	"fmt"
	"time"
)

// InteractionKind is the type of engagement a device reported.
type InteractionKind string

const (
	Viewed    InteractionKind = "viewed"
	Favorited InteractionKind = "favorited"
	Shared    InteractionKind = "shared"
)

// Valid reports whether k is a known interaction kind.
func (k InteractionKind) Valid() bool {
	switch k {
	case Viewed, Favorited, Shared:
		return true
	}
	return false
}

// Interaction is one engagement event.
type Interaction struct {
	ID        int64
	DeviceID  string
	ItemID    int64
	Kind      InteractionKind
	DwellMS   *int64
	CreatedAt int64 // unix millis
}

// AddInteraction records an event. CreatedAt defaults to now.
func (db *DB) AddInteraction(ctx context.Context, ev *Interaction) error {
	if ev.CreatedAt == 0 {
		ev.CreatedAt = time.Now().UnixMilli()
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO interactions (device_id, item_id, kind, dwell_ms, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, ev.DeviceID, ev.ItemID, ev.Kind, ev.DwellMS, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}
	ev.ID, _ = res.LastInsertId()
	return nil
}

// InteractionsSince returns a device's events at or after since (unix
// millis), oldest first.
func (db *DB) InteractionsSince(ctx context.Context, deviceID string, since int64) ([]Interaction, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, device_id, item_id, kind, dwell_ms, created_at
		FROM interactions
		WHERE device_id = ? AND created_at >= ?
		ORDER BY created_at, id
	`, deviceID, since)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		var ev Interaction
		if err := rows.Scan(&ev.ID, &ev.DeviceID, &ev.ItemID, &ev.Kind, &ev.DwellMS, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
