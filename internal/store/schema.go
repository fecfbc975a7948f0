package store

import (
	"context"
	"fmt"
	"strings"
)

// DefaultCategories are seeded on migration. The last one is the catch-all.
var DefaultCategories = []struct {
	Name        string
	Description string
}{
	{"Content Ideas", "Ideas for blogs, videos and social posts"},
	{"VibeCoding Projects", "Coding projects and technical ideas"},
	{"Stock Trading", "Trades, tickers and market notes"},
	{"To-Do", "Tasks and reminders"},
	{"To Learn", "Things to study or look into"},
	{"General Notes", "Everything else"},
}

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS categories (
  id          {{pk}},
  name        TEXT NOT NULL,
  description TEXT,
  parent_id   BIGINT REFERENCES categories(id) ON DELETE CASCADE,
  created_at  BIGINT NOT NULL,
  updated_at  BIGINT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_categories_parent_name
ON categories ((COALESCE(parent_id, 0)), name);

CREATE TABLE IF NOT EXISTS entries (
  id                {{pk}},
  raw_content       TEXT,
  processed_content TEXT,
  content_type      TEXT NOT NULL,
  file_path         TEXT,
  category_id       BIGINT REFERENCES categories(id) ON DELETE SET NULL,
  subcategory_id    BIGINT REFERENCES categories(id) ON DELETE SET NULL,
  source            TEXT NOT NULL DEFAULT 'telegram',
  metadata          TEXT NOT NULL DEFAULT '{}',
  external_id       TEXT,
  created_at        BIGINT NOT NULL,
  updated_at        BIGINT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_external_id ON entries (external_id);
CREATE INDEX IF NOT EXISTS idx_entries_created ON entries (created_at DESC);
CREATE INDEX IF NOT EXISTS idx_entries_category ON entries (category_id, created_at DESC);

CREATE TABLE IF NOT EXISTS content_ideas (
  id               {{pk}},
  entry_id         BIGINT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
  title            TEXT NOT NULL DEFAULT '',
  idea_description TEXT NOT NULL,
  ai_prompt        TEXT NOT NULL DEFAULT '',
  output_types     TEXT NOT NULL DEFAULT '[]',
  status           TEXT NOT NULL DEFAULT 'idea',
  created_at       BIGINT NOT NULL,
  updated_at       BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_content_ideas_entry ON content_ideas (entry_id);

CREATE TABLE IF NOT EXISTS projects (
  id          {{pk}},
  name        TEXT NOT NULL,
  description TEXT,
  category_id BIGINT REFERENCES categories(id) ON DELETE SET NULL,
  tasks       TEXT NOT NULL DEFAULT '[]',
  status      TEXT NOT NULL DEFAULT 'active',
  created_at  BIGINT NOT NULL,
  updated_at  BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS config (
  key        TEXT PRIMARY KEY,
  value      TEXT NOT NULL,
  updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS usage_logs (
  id            {{pk}},
  timestamp     BIGINT NOT NULL,
  provider      TEXT NOT NULL,
  model         TEXT NOT NULL,
  feature       TEXT NOT NULL,
  input_tokens  INTEGER NOT NULL DEFAULT 0,
  output_tokens INTEGER NOT NULL DEFAULT 0,
  cost_usd      {{float}} NOT NULL DEFAULT 0,
  details       TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_usage_logs_timestamp ON usage_logs (timestamp DESC);
`

func (db *DB) schema() string {
	pk, float := "BIGSERIAL PRIMARY KEY", "DOUBLE PRECISION"
	if db.driver == DriverSQLite {
		pk, float = "INTEGER PRIMARY KEY AUTOINCREMENT", "REAL"
	}
	return strings.NewReplacer("{{pk}}", pk, "{{float}}", float).Replace(schemaTemplate)
}

// Migrate creates the schema and seeds the default categories. It is safe to
// run on every start.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(db.schema(), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	for _, c := range DefaultCategories {
		if _, err := db.EnsureCategory(ctx, c.Name, c.Description, 0); err != nil {
			return fmt.Errorf("failed to seed category %q: %w", c.Name, err)
		}
	}
	return nil
}
