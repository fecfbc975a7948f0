package store

import (
	"context"
	"fmt"
	"time"

	"nexuslog/internal/provider"
)

var _ provider.UsageRecorder = (*DB)(nil)

// RecordUsage appends one usage row.
func (db *DB) RecordUsage(ctx context.Context, rec provider.UsageRecord) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = db.now()
	}
	details := JSONMap(rec.Details)
	if details == nil {
		details = JSONMap{}
	}
	_, err := db.conn.ExecContext(ctx, db.q(`
		INSERT INTO usage_logs (timestamp, provider, model, feature, input_tokens, output_tokens, cost_usd, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		ts.UTC().Unix(), rec.Provider, rec.Model, string(rec.Feature), rec.InputTokens, rec.OutputTokens, rec.CostUSD, details)
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

func (db *DB) RecentUsage(ctx context.Context, limit int) ([]UsageLog, error) {
	if limit <= 0 {
		limit = 100
	}
	logs := []UsageLog{}
	err := db.conn.SelectContext(ctx, &logs, db.q(`
		SELECT id, timestamp, provider, model, feature, input_tokens, output_tokens, cost_usd, details
		FROM usage_logs ORDER BY timestamp DESC, id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", err)
	}
	return logs, nil
}

type ProviderUsage struct {
	Provider     string  `db:"provider" json:"provider"`
	Calls        int     `db:"calls" json:"calls"`
	InputTokens  int     `db:"input_tokens" json:"input_tokens"`
	OutputTokens int     `db:"output_tokens" json:"output_tokens"`
	CostUSD      float64 `db:"cost_usd" json:"cost_usd"`
}

// UsageSummary aggregates usage per provider since the given time.
func (db *DB) UsageSummary(ctx context.Context, since time.Time) ([]ProviderUsage, error) {
	out := []ProviderUsage{}
	err := db.conn.SelectContext(ctx, &out, db.q(`
		SELECT provider,
		       COUNT(*) AS calls,
		       COALESCE(SUM(input_tokens), 0) AS input_tokens,
		       COALESCE(SUM(output_tokens), 0) AS output_tokens,
		       COALESCE(SUM(cost_usd), 0) AS cost_usd
		FROM usage_logs
		WHERE timestamp >= ?
		GROUP BY provider
		ORDER BY provider`), since.UTC().Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to summarize usage: %w", err)
	}
	return out, nil
}
