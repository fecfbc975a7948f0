package category

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"nexuslog/internal/provider"
	"nexuslog/internal/store"
)

const (
	DefaultMaxTopLevel = 10
	CatchAll           = provider.CatchAllCategory

	autoCategoryDescription    = "Auto-created category"
	autoSubcategoryDescription = "Auto-created by AI"
	catchAllDescription        = "Everything else"
)

type Store interface {
	FindCategory(ctx context.Context, name string, parentID int64) (*store.Category, error)
	CreateCategory(ctx context.Context, name, description string, parentID int64) (*store.Category, error)
	EnsureCategory(ctx context.Context, name, description string, parentID int64) (*store.Category, error)
	CountTopLevelCategories(ctx context.Context) (int, error)
	ListCategories(ctx context.Context) ([]store.Category, error)
}

// Resolution is where an item was filed.
type Resolution struct {
	CategoryID      int64
	CategoryName    string
	SubcategoryID   int64
	SubcategoryName string
	// Created is set when a new top-level category was created.
	Created bool
	// Capped is set when the proposed name was new but the top-level limit
	// was reached, so the item went to the catch-all.
	Capped bool
}

type Resolver struct {
	store       Store
	maxTopLevel int
	logger      *slog.Logger
}

func New(st Store, maxTopLevel int, logger *slog.Logger) *Resolver {
	if maxTopLevel <= 0 {
		maxTopLevel = DefaultMaxTopLevel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: st, maxTopLevel: maxTopLevel, logger: logger}
}

// Resolve maps a proposed category and optional subcategory to stored rows.
// Matching is exact first, then case-insensitive. A new top-level name is
// created only while fewer than the maximum exist. Subcategories are created
// under the resolved parent without limit.
//
// Two concurrent resolutions of different new names can both pass the count
// check, so the limit may be exceeded by the number of racing creators.
func (r *Resolver) Resolve(ctx context.Context, name, subcategory string) (Resolution, error) {
	parent, res, err := r.resolveTopLevel(ctx, strings.TrimSpace(name))
	if err != nil {
		return Resolution{}, err
	}
	res.CategoryID = parent.ID
	res.CategoryName = parent.Name

	subcategory = strings.TrimSpace(subcategory)
	if subcategory == "" || strings.EqualFold(subcategory, "null") || strings.EqualFold(subcategory, "none") {
		return res, nil
	}
	sub, err := r.store.EnsureCategory(ctx, subcategory, autoSubcategoryDescription, parent.ID)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve subcategory %q: %w", subcategory, err)
	}
	res.SubcategoryID = sub.ID
	res.SubcategoryName = sub.Name
	return res, nil
}

func (r *Resolver) resolveTopLevel(ctx context.Context, name string) (*store.Category, Resolution, error) {
	if name == "" {
		c, err := r.CatchAll(ctx)
		return c, Resolution{}, err
	}

	c, err := r.store.FindCategory(ctx, name, 0)
	if err == nil {
		return c, Resolution{}, nil
	}
	if !errors.Is(err, store.ErrCategoryNotFound) {
		return nil, Resolution{}, fmt.Errorf("resolve category %q: %w", name, err)
	}

	count, err := r.store.CountTopLevelCategories(ctx)
	if err != nil {
		return nil, Resolution{}, err
	}
	if count >= r.maxTopLevel {
		r.logger.Info("category limit reached, using catch-all", "proposed", name, "limit", r.maxTopLevel)
		c, err := r.CatchAll(ctx)
		return c, Resolution{Capped: true}, err
	}

	c, err = r.store.CreateCategory(ctx, name, autoCategoryDescription, 0)
	if errors.Is(err, store.ErrCategoryExists) {
		c, err = r.store.FindCategory(ctx, name, 0)
		return c, Resolution{}, err
	}
	if err != nil {
		return nil, Resolution{}, fmt.Errorf("create category %q: %w", name, err)
	}
	r.logger.Info("category created", "category", c.Name, "id", c.ID)
	return c, Resolution{Created: true}, nil
}

// CatchAll returns the catch-all category. A missing catch-all is recreated
// only while the top-level limit has room; otherwise the oldest top-level
// category stands in for it.
func (r *Resolver) CatchAll(ctx context.Context) (*store.Category, error) {
	c, err := r.store.FindCategory(ctx, CatchAll, 0)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, store.ErrCategoryNotFound) {
		return nil, fmt.Errorf("resolve catch-all category: %w", err)
	}

	count, err := r.store.CountTopLevelCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve catch-all category: %w", err)
	}
	if count < r.maxTopLevel {
		c, err := r.store.EnsureCategory(ctx, CatchAll, catchAllDescription, 0)
		if err != nil {
			return nil, fmt.Errorf("resolve catch-all category: %w", err)
		}
		r.logger.Warn("catch-all category was missing and has been recreated", "id", c.ID)
		return c, nil
	}

	all, err := r.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve catch-all category: %w", err)
	}
	for i := range all {
		if all[i].TopLevel() {
			r.logger.Warn("catch-all category missing at the limit, using fallback", "fallback", all[i].Name, "limit", r.maxTopLevel)
			return &all[i], nil
		}
	}
	return nil, errors.New("resolve catch-all category: no top-level category available")
}

// Node is a top-level category with its subcategories.
type Node struct {
	store.Category
	Children []store.Category
}

// Tree returns the category hierarchy in id order.
func (r *Resolver) Tree(ctx context.Context) ([]Node, error) {
	all, err := r.store.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	var nodes []Node
	index := map[int64]int{}
	for _, c := range all {
		if c.TopLevel() {
			index[c.ID] = len(nodes)
			nodes = append(nodes, Node{Category: c})
		}
	}
	for _, c := range all {
		if c.TopLevel() {
			continue
		}
		if i, ok := index[c.ParentID.Int64]; ok {
			nodes[i].Children = append(nodes[i].Children, c)
		}
	}
	return nodes, nil
}

// Names returns the top-level category names, used as classifier hints.
func (r *Resolver) Names(ctx context.Context) ([]string, error) {
	nodes, err := r.Tree(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.Name)
	}
	return names, nil
}

// Format renders the tree for a chat reply.
func Format(nodes []Node) string {
	if len(nodes) == 0 {
		return "No categories found."
	}
	var b strings.Builder
	b.WriteString("📂 Categories\n\n")
	for _, n := range nodes {
		fmt.Fprintf(&b, "• %s\n", n.Name)
		for _, c := range n.Children {
			fmt.Fprintf(&b, "  - %s\n", c.Name)
		}
	}
	return b.String()
}
