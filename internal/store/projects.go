package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const projectColumns = `id, name, description, category_id, tasks, status, created_at, updated_at`

func (db *DB) ListProjects(ctx context.Context) ([]Project, error) {
	projects := []Project{}
	if err := db.conn.SelectContext(ctx, &projects, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC, id DESC`); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

func (db *DB) GetProject(ctx context.Context, id int64) (*Project, error) {
	var p Project
	err := db.conn.GetContext(ctx, &p, db.q(`SELECT `+projectColumns+` FROM projects WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &p, nil
}

func (db *DB) CreateProject(ctx context.Context, p *Project) error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("project name is required")
	}
	if p.Status == "" {
		p.Status = "active"
	}
	if p.Tasks == nil {
		p.Tasks = StringList{}
	}
	now := db.timestamp()
	err := db.conn.GetContext(ctx, &p.ID, db.q(`
		INSERT INTO projects (name, description, category_id, tasks, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		p.Name, p.Description, p.CategoryID, p.Tasks, p.Status, now, now)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	p.CreatedAt, p.UpdatedAt = now, now
	return nil
}
