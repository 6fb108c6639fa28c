package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// Device is a registered notification target with its category
// subscriptions and interest vector.
type Device struct {
	DeviceID          string
	Token             string
	Categories        []string
	Interest          map[string]float64 // nil until the first profile build
	InterestUpdatedAt *int64
	CreatedAt         int64
	UpdatedAt         int64
}

// DeviceToken pairs a device with its current delivery token.
type DeviceToken struct {
	DeviceID string
	Token    string
}

// UpsertDevice registers a device or updates its token and subscriptions.
// The stored category set is replaced by d.Categories.
func (db *DB) UpsertDevice(ctx context.Context, d *Device) error {
	now := time.Now().UnixMilli()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert device: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO devices (device_id, token, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at
	`, d.DeviceID, d.Token, now, now); err != nil {
		return fmt.Errorf("upsert device: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM device_categories WHERE device_id = ?`, d.DeviceID); err != nil {
		return fmt.Errorf("clear device categories: %w", err)
	}
	for _, c := range d.Categories {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO device_categories (device_id, category) VALUES (?, ?)
		`, d.DeviceID, c); err != nil {
			return fmt.Errorf("insert device category: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert device: %w", err)
	}
	d.UpdatedAt = now
	return nil
}

// GetDevice returns a device by id, or nil if not found.
func (db *DB) GetDevice(ctx context.Context, deviceID string) (*Device, error) {
	var (
		d        Device
		interest sql.NullString
	)
	err := db.QueryRowContext(ctx, `
		SELECT device_id, token, interest, interest_updated_at, created_at, updated_at
		FROM devices WHERE device_id = ?
	`, deviceID).Scan(&d.DeviceID, &d.Token, &interest, &d.InterestUpdatedAt, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}
	if interest.Valid {
		if err := json.Unmarshal([]byte(interest.String), &d.Interest); err != nil {
			return nil, fmt.Errorf("decode interest for device %s: %w", deviceID, err)
		}
	}

	rows, err := db.QueryContext(ctx, `
		SELECT category FROM device_categories WHERE device_id = ? ORDER BY category
	`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("get device categories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan device category: %w", err)
		}
		d.Categories = append(d.Categories, c)
	}
	return &d, rows.Err()
}

// DeviceTokensForCategories returns each device subscribed to at least one
// of categories, once.
func (db *DB) DeviceTokensForCategories(ctx context.Context, categories []string) ([]DeviceToken, error) {
	if len(categories) == 0 {
		return nil, nil
	}
	args := make([]any, len(categories))
	for i, c := range categories {
		args[i] = c
	}
	rows, err := db.QueryContext(ctx, `
		SELECT d.device_id, d.token FROM devices d
		WHERE d.device_id IN (
			SELECT device_id FROM device_categories WHERE category IN (`+placeholders(len(categories))+`)
		)
		ORDER BY d.device_id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("device tokens: %w", err)
	}
	defer rows.Close()

	var out []DeviceToken
	for rows.Next() {
		var dt DeviceToken
		if err := rows.Scan(&dt.DeviceID, &dt.Token); err != nil {
			return nil, fmt.Errorf("scan device token: %w", err)
		}
		out = append(out, dt)
	}
	return out, rows.Err()
}

// PruneDevice deletes a device and its interaction history, but only while
// it still holds token. A device that re-registered with a new token in the
// meantime is kept. Reports whether a row was removed.
func (db *DB) PruneDevice(ctx context.Context, deviceID, token string) (bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin prune device: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM devices WHERE device_id = ? AND token = ?`, deviceID, token)
	if err != nil {
		return false, fmt.Errorf("prune device: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM interactions WHERE device_id = ?`, deviceID); err != nil {
		return false, fmt.Errorf("prune device interactions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit prune device: %w", err)
	}
	return true, nil
}

// SetInterest replaces a device's interest vector in a single write.
func (db *DB) SetInterest(ctx context.Context, deviceID string, vector map[string]float64) error {
	if vector == nil {
		vector = map[string]float64{}
	}
	data, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("encode interest: %w", err)
	}
	res, err := db.ExecContext(ctx, `
		UPDATE devices SET interest = ?, interest_updated_at = ? WHERE device_id = ?
	`, string(data), time.Now().UnixMilli(), deviceID)
	if err != nil {
		return fmt.Errorf("set interest: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set interest for device %s: %w", deviceID, ErrNotFound)
	}
	return nil
}

// ListDeviceIDs returns every registered device id.
func (db *DB) ListDeviceIDs(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT device_id FROM devices ORDER BY device_id`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan device id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
