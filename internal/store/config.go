package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

func (db *DB) ListConfig(ctx context.Context) ([]ConfigItem, error) {
	var rows []struct {
		Key       string `db:"key"`
		Value     string `db:"value"`
		UpdatedAt int64  `db:"updated_at"`
	}
	if err := db.conn.SelectContext(ctx, &rows, `SELECT key, value, updated_at FROM config ORDER BY key`); err != nil {
		return nil, fmt.Errorf("failed to list config: %w", err)
	}
	items := make([]ConfigItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, ConfigItem{Key: r.Key, Value: json.RawMessage(r.Value), UpdatedAt: r.UpdatedAt})
	}
	return items, nil
}

func (db *DB) GetConfig(ctx context.Context, key string) (*ConfigItem, error) {
	var row struct {
		Value     string `db:"value"`
		UpdatedAt int64  `db:"updated_at"`
	}
	err := db.conn.GetContext(ctx, &row, db.q(`SELECT value, updated_at FROM config WHERE key = ?`), key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to get config: %w", err)
	}
	return &ConfigItem{Key: key, Value: json.RawMessage(row.Value), UpdatedAt: row.UpdatedAt}, nil
}

// SetConfig upserts key with a JSON value.
func (db *DB) SetConfig(ctx context.Context, key string, value json.RawMessage) (*ConfigItem, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("config key is required")
	}
	if !json.Valid(value) {
		return nil, errors.New("config value must be valid JSON")
	}
	now := db.timestamp()
	_, err := db.conn.ExecContext(ctx, db.q(`
		INSERT INTO config (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`),
		key, string(value), now)
	if err != nil {
		return nil, fmt.Errorf("failed to set config: %w", err)
	}
	return &ConfigItem{Key: key, Value: value, UpdatedAt: now}, nil
}
