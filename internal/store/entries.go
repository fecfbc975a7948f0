package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

const entryColumns = `id, COALESCE(raw_content, '') AS raw_content, COALESCE(processed_content, '') AS processed_content,
	content_type, file_path, category_id, subcategory_id, source, metadata, external_id, created_at, updated_at`

type LockState int

const (
	// LockAcquired means the caller owns the placeholder row and must finish
	// it with SaveEntry or FailLock.
	LockAcquired LockState = iota + 1
	// LockInProgress means another delivery holds the placeholder.
	LockInProgress
	// LockDuplicate means the item was already processed.
	LockDuplicate
)

func (s LockState) String() string {
	switch s {
	case LockAcquired:
		return "acquired"
	case LockInProgress:
		return "in_progress"
	case LockDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

type LockResult struct {
	State   LockState
	EntryID int64
}

// AcquireLock inserts the placeholder row for externalID. The unique index on
// external_id is the arbiter between concurrent deliveries; the insert is the
// first mutation for the item.
func (db *DB) AcquireLock(ctx context.Context, externalID, contentType, source string) (LockResult, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return LockResult{}, errors.New("external id is required")
	}

	if existing, err := db.EntryByExternalID(ctx, externalID); err == nil {
		return lockResultFor(existing), nil
	} else if !errors.Is(err, ErrEntryNotFound) {
		return LockResult{}, err
	}

	now := db.timestamp()
	var id int64
	err := db.conn.GetContext(ctx, &id, db.q(`
		INSERT INTO entries (raw_content, processed_content, content_type, file_path, source, metadata, external_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_id) DO NOTHING
		RETURNING id`),
		LockRawContent, LockProcessedContent, contentType, LockFilePath, source,
		JSONMap{"external_id": externalID}, externalID, now, now)
	if err == nil {
		return LockResult{State: LockAcquired, EntryID: id}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return LockResult{}, fmt.Errorf("failed to insert processing lock: %w", err)
	}

	// Lost the race: the winner's row is committed and visible now.
	existing, err := db.EntryByExternalID(ctx, externalID)
	if err != nil {
		return LockResult{}, err
	}
	return lockResultFor(existing), nil
}

func lockResultFor(e *Entry) LockResult {
	if e.IsLock() {
		return LockResult{State: LockInProgress, EntryID: e.ID}
	}
	return LockResult{State: LockDuplicate, EntryID: e.ID}
}

func (db *DB) EntryByExternalID(ctx context.Context, externalID string) (*Entry, error) {
	var e Entry
	err := db.conn.GetContext(ctx, &e, db.q(`SELECT `+entryColumns+` FROM entries WHERE external_id = ?`), externalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get entry by external id: %w", err)
	}
	return &e, nil
}

// SaveEntry writes e and, when idea is non-nil, its linked content idea in
// one transaction. A non-zero e.ID updates that row in place, which is how a
// processing lock is resolved.
func (db *DB) SaveEntry(ctx context.Context, e *Entry, idea *ContentIdea) error {
	if e == nil {
		return errors.New("entry is required")
	}
	if e.Metadata == nil {
		e.Metadata = JSONMap{}
	}
	if e.Source == "" {
		e.Source = "telegram"
	}
	now := db.timestamp()

	return db.inTx(ctx, func(tx *sqlx.Tx) error {
		if e.ID > 0 {
			res, err := tx.ExecContext(ctx, db.q(`
				UPDATE entries
				SET raw_content = ?, processed_content = ?, content_type = ?, file_path = ?,
				    category_id = ?, subcategory_id = ?, source = ?, metadata = ?, updated_at = ?
				WHERE id = ?`),
				e.RawContent, e.ProcessedContent, e.ContentType, e.FilePath,
				e.CategoryID, e.SubcategoryID, e.Source, e.Metadata, now, e.ID)
			if err != nil {
				return fmt.Errorf("failed to update entry: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return ErrEntryNotFound
			}
			e.UpdatedAt = now
		} else {
			err := tx.GetContext(ctx, &e.ID, db.q(`
				INSERT INTO entries (raw_content, processed_content, content_type, file_path, category_id,
				                     subcategory_id, source, metadata, external_id, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				RETURNING id`),
				e.RawContent, e.ProcessedContent, e.ContentType, e.FilePath, e.CategoryID,
				e.SubcategoryID, e.Source, e.Metadata, e.ExternalID, now, now)
			if err != nil {
				return fmt.Errorf("failed to insert entry: %w", err)
			}
			e.CreatedAt, e.UpdatedAt = now, now
		}

		if idea == nil {
			return nil
		}
		idea.EntryID = e.ID
		return db.insertContentIdea(ctx, tx, idea, now)
	})
}

// FailLock promotes a placeholder row to a terminal degraded entry so later
// deliveries of the same item see it as processed. filePath keeps any media
// that was saved before the failure; empty stores NULL.
func (db *DB) FailLock(ctx context.Context, id int64, raw, processed, filePath string, categoryID int64) error {
	res, err := db.conn.ExecContext(ctx, db.q(`
		UPDATE entries
		SET raw_content = ?, processed_content = ?, file_path = ?, category_id = ?, updated_at = ?
		WHERE id = ? AND raw_content = ?`),
		raw, processed, nullString(filePath), nullInt(categoryID), db.timestamp(), id, LockRawContent)
	if err != nil {
		return fmt.Errorf("failed to release processing lock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (db *DB) GetEntry(ctx context.Context, id int64) (*Entry, error) {
	var e Entry
	err := db.conn.GetContext(ctx, &e, db.q(`SELECT `+entryColumns+` FROM entries WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return &e, nil
}

type EntryFilter struct {
	CategoryID  int64
	ContentType string
	Since       time.Time
	Until       time.Time
	Limit       int
	Offset      int
}

// ListEntries returns finished entries, newest first. Placeholder rows are
// excluded.
func (db *DB) ListEntries(ctx context.Context, f EntryFilter) ([]Entry, error) {
	where := []string{"COALESCE(raw_content, '') <> ?"}
	args := []any{LockRawContent}
	if f.CategoryID > 0 {
		where = append(where, "(category_id = ? OR subcategory_id = ?)")
		args = append(args, f.CategoryID, f.CategoryID)
	}
	if f.ContentType != "" {
		where = append(where, "content_type = ?")
		args = append(args, f.ContentType)
	}
	if !f.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.Since.UTC().Unix())
	}
	if !f.Until.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, f.Until.UTC().Unix())
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, max(f.Offset, 0))

	query := `SELECT ` + entryColumns + ` FROM entries WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	entries := []Entry{}
	if err := db.conn.SelectContext(ctx, &entries, db.q(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	return entries, nil
}

// DeleteEntry removes an entry and its content ideas.
func (db *DB) DeleteEntry(ctx context.Context, id int64) error {
	return db.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, db.q(`DELETE FROM content_ideas WHERE entry_id = ?`), id); err != nil {
			return fmt.Errorf("failed to delete content ideas: %w", err)
		}
		res, err := tx.ExecContext(ctx, db.q(`DELETE FROM entries WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("failed to delete entry: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrEntryNotFound
		}
		return nil
	})
}

type Stats struct {
	TotalEntries      int            `json:"total_entries"`
	TotalCategories   int            `json:"total_categories"`
	TotalContentIdeas int            `json:"total_content_ideas"`
	TotalProjects     int            `json:"total_projects"`
	EntriesByType     map[string]int `json:"entries_by_type"`
}

func (db *DB) Stats(ctx context.Context) (Stats, error) {
	st := Stats{EntriesByType: map[string]int{}}
	counts := []struct {
		dst   *int
		query string
	}{
		{&st.TotalEntries, `SELECT COUNT(*) FROM entries WHERE COALESCE(raw_content, '') <> ?`},
		{&st.TotalCategories, `SELECT COUNT(*) FROM categories WHERE parent_id IS NULL`},
		{&st.TotalContentIdeas, `SELECT COUNT(*) FROM content_ideas`},
		{&st.TotalProjects, `SELECT COUNT(*) FROM projects`},
	}
	for i, c := range counts {
		var args []any
		if i == 0 {
			args = append(args, LockRawContent)
		}
		if err := db.conn.GetContext(ctx, c.dst, db.q(c.query), args...); err != nil {
			return Stats{}, fmt.Errorf("failed to count: %w", err)
		}
	}

	var rows []struct {
		ContentType string `db:"content_type"`
		Count       int    `db:"n"`
	}
	err := db.conn.SelectContext(ctx, &rows, db.q(`
		SELECT content_type, COUNT(*) AS n FROM entries
		WHERE COALESCE(raw_content, '') <> ?
		GROUP BY content_type`), LockRawContent)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count entries by type: %w", err)
	}
	for _, r := range rows {
		st.EntriesByType[r.ContentType] = r.Count
	}
	return st, nil
}
