package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

const ideaColumns = `id, entry_id, title, idea_description, ai_prompt, output_types, status, created_at, updated_at`

var DefaultOutputTypes = []string{"blog", "youtube", "linkedin", "shorts", "reels"}

func (db *DB) insertContentIdea(ctx context.Context, tx *sqlx.Tx, idea *ContentIdea, now int64) error {
	if strings.TrimSpace(idea.IdeaDescription) == "" {
		return errors.New("content idea description is required")
	}
	if strings.TrimSpace(idea.AIPrompt) == "" {
		return errors.New("content idea prompt is required")
	}
	if len(idea.OutputTypes) == 0 {
		idea.OutputTypes = append(StringList(nil), DefaultOutputTypes...)
	}
	if idea.Status == "" {
		idea.Status = "idea"
	}
	err := tx.GetContext(ctx, &idea.ID, db.q(`
		INSERT INTO content_ideas (entry_id, title, idea_description, ai_prompt, output_types, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		idea.EntryID, idea.Title, idea.IdeaDescription, idea.AIPrompt, idea.OutputTypes, idea.Status, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert content idea: %w", err)
	}
	idea.CreatedAt, idea.UpdatedAt = now, now
	return nil
}

func (db *DB) ListContentIdeas(ctx context.Context, status string, limit int) ([]ContentIdea, error) {
	if limit <= 0 {
		limit = 100
	}
	ideas := []ContentIdea{}
	var err error
	if status != "" {
		err = db.conn.SelectContext(ctx, &ideas, db.q(`SELECT `+ideaColumns+` FROM content_ideas WHERE status = ? ORDER BY created_at DESC, id DESC LIMIT ?`), status, limit)
	} else {
		err = db.conn.SelectContext(ctx, &ideas, db.q(`SELECT `+ideaColumns+` FROM content_ideas ORDER BY created_at DESC, id DESC LIMIT ?`), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list content ideas: %w", err)
	}
	return ideas, nil
}

func (db *DB) ContentIdeasForEntry(ctx context.Context, entryID int64) ([]ContentIdea, error) {
	ideas := []ContentIdea{}
	err := db.conn.SelectContext(ctx, &ideas, db.q(`SELECT `+ideaColumns+` FROM content_ideas WHERE entry_id = ? ORDER BY id`), entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list content ideas for entry: %w", err)
	}
	return ideas, nil
}

func (db *DB) GetContentIdea(ctx context.Context, id int64) (*ContentIdea, error) {
	var idea ContentIdea
	err := db.conn.GetContext(ctx, &idea, db.q(`SELECT `+ideaColumns+` FROM content_ideas WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrContentIdeaNotFound
		}
		return nil, fmt.Errorf("failed to get content idea: %w", err)
	}
	return &idea, nil
}

// ContentIdeaUpdate carries the optional fields of an update; nil leaves the
// column untouched.
type ContentIdeaUpdate struct {
	Status      *string
	Title       *string
	AIPrompt    *string
	OutputTypes []string
}

func (db *DB) UpdateContentIdea(ctx context.Context, id int64, u ContentIdeaUpdate) (*ContentIdea, error) {
	idea, err := db.GetContentIdea(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Status != nil {
		idea.Status = *u.Status
	}
	if u.Title != nil {
		idea.Title = *u.Title
	}
	if u.AIPrompt != nil {
		idea.AIPrompt = *u.AIPrompt
	}
	if u.OutputTypes != nil {
		idea.OutputTypes = StringList(u.OutputTypes)
	}
	idea.UpdatedAt = db.timestamp()
	_, err = db.conn.ExecContext(ctx, db.q(`
		UPDATE content_ideas SET status = ?, title = ?, ai_prompt = ?, output_types = ?, updated_at = ?
		WHERE id = ?`),
		idea.Status, idea.Title, idea.AIPrompt, idea.OutputTypes, idea.UpdatedAt, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update content idea: %w", err)
	}
	return idea, nil
}
