package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"nexuslog/internal/provider"
)

const categoryColumns = `id, name, description, parent_id, created_at, updated_at`

// IsCatchAll reports whether c is the top-level catch-all that unmatched
// items fall back to.
func (c *Category) IsCatchAll() bool {
	return c.TopLevel() && c.Name == provider.CatchAllCategory
}

func (db *DB) ListCategories(ctx context.Context) ([]Category, error) {
	cats := []Category{}
	err := db.conn.SelectContext(ctx, &cats, `SELECT `+categoryColumns+` FROM categories ORDER BY parent_id IS NOT NULL, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return cats, nil
}

func (db *DB) TopLevelCategories(ctx context.Context) ([]Category, error) {
	cats := []Category{}
	err := db.conn.SelectContext(ctx, &cats, `SELECT `+categoryColumns+` FROM categories WHERE parent_id IS NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list top-level categories: %w", err)
	}
	return cats, nil
}

func (db *DB) CountTopLevelCategories(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.GetContext(ctx, &n, `SELECT COUNT(*) FROM categories WHERE parent_id IS NULL`); err != nil {
		return 0, fmt.Errorf("failed to count categories: %w", err)
	}
	return n, nil
}

func (db *DB) Subcategories(ctx context.Context, parentID int64) ([]Category, error) {
	cats := []Category{}
	err := db.conn.SelectContext(ctx, &cats, db.q(`SELECT `+categoryColumns+` FROM categories WHERE parent_id = ? ORDER BY id`), parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subcategories: %w", err)
	}
	return cats, nil
}

func (db *DB) GetCategory(ctx context.Context, id int64) (*Category, error) {
	var c Category
	err := db.conn.GetContext(ctx, &c, db.q(`SELECT `+categoryColumns+` FROM categories WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return &c, nil
}

// FindCategory looks up name under parentID (0 for top level), first with an
// exact match and then case-insensitively.
func (db *DB) FindCategory(ctx context.Context, name string, parentID int64) (*Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrCategoryNotFound
	}
	parent := `parent_id IS NULL`
	args := []any{name}
	if parentID > 0 {
		parent = `parent_id = ?`
		args = append(args, parentID)
	}

	var c Category
	err := db.conn.GetContext(ctx, &c, db.q(`SELECT `+categoryColumns+` FROM categories WHERE name = ? AND `+parent+` LIMIT 1`), args...)
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to find category: %w", err)
	}

	args[0] = strings.ToLower(name)
	err = db.conn.GetContext(ctx, &c, db.q(`SELECT `+categoryColumns+` FROM categories WHERE LOWER(name) = ? AND `+parent+` ORDER BY id LIMIT 1`), args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("failed to find category: %w", err)
	}
	return &c, nil
}

// CreateCategory inserts a category. Top-level limits are enforced by the
// category resolver, not here.
func (db *DB) CreateCategory(ctx context.Context, name, description string, parentID int64) (*Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("category name is required")
	}
	now := db.timestamp()
	c := Category{
		Name:        name,
		Description: nullString(description),
		ParentID:    nullInt(parentID),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := db.conn.GetContext(ctx, &c.ID, db.q(`
		INSERT INTO categories (name, description, parent_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`),
		c.Name, c.Description, c.ParentID, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrCategoryExists
		}
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	return &c, nil
}

// EnsureCategory returns the category named name under parentID, creating it
// when missing. A concurrent creator winning the race is not an error.
func (db *DB) EnsureCategory(ctx context.Context, name, description string, parentID int64) (*Category, error) {
	if c, err := db.FindCategory(ctx, name, parentID); err == nil {
		return c, nil
	} else if !errors.Is(err, ErrCategoryNotFound) {
		return nil, err
	}
	c, err := db.CreateCategory(ctx, name, description, parentID)
	if errors.Is(err, ErrCategoryExists) {
		return db.FindCategory(ctx, name, parentID)
	}
	return c, err
}

func (db *DB) UpdateCategory(ctx context.Context, id int64, name, description string) (*Category, error) {
	c, err := db.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	if name = strings.TrimSpace(name); name != "" && name != c.Name {
		if c.IsCatchAll() {
			return nil, ErrProtectedCategory
		}
		c.Name = name
	}
	if description != "" {
		c.Description = nullString(description)
	}
	c.UpdatedAt = db.timestamp()
	_, err = db.conn.ExecContext(ctx, db.q(`UPDATE categories SET name = ?, description = ?, updated_at = ? WHERE id = ?`),
		c.Name, c.Description, c.UpdatedAt, id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrCategoryExists
		}
		return nil, fmt.Errorf("failed to update category: %w", err)
	}
	return c, nil
}

// DeleteCategory removes a category and its subcategories. Entries keep their
// rows with the reference cleared.
func (db *DB) DeleteCategory(ctx context.Context, id int64) error {
	c, err := db.GetCategory(ctx, id)
	if err != nil {
		return err
	}
	if c.IsCatchAll() {
		return ErrProtectedCategory
	}

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	detach := []string{
		`UPDATE entries SET category_id = NULL WHERE category_id = ? OR category_id IN (SELECT id FROM categories WHERE parent_id = ?)`,
		`UPDATE entries SET subcategory_id = NULL WHERE subcategory_id = ? OR subcategory_id IN (SELECT id FROM categories WHERE parent_id = ?)`,
		`UPDATE projects SET category_id = NULL WHERE category_id = ? OR category_id IN (SELECT id FROM categories WHERE parent_id = ?)`,
	}
	for _, stmt := range detach {
		if _, err := tx.ExecContext(ctx, db.q(stmt), id, id); err != nil {
			return fmt.Errorf("failed to detach category: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, db.q(`DELETE FROM categories WHERE parent_id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete subcategories: %w", err)
	}
	res, err := tx.ExecContext(ctx, db.q(`DELETE FROM categories WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCategoryNotFound
	}
	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "constraint failed: unique")
}
