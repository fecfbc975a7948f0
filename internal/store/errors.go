package store

import "errors"

var (
	ErrEntryNotFound       = errors.New("entry not found")
	ErrCategoryNotFound    = errors.New("category not found")
	ErrContentIdeaNotFound = errors.New("content idea not found")
	ErrProjectNotFound     = errors.New("project not found")
	ErrConfigNotFound      = errors.New("config key not found")

	// ErrCategoryExists is returned when a sibling with the same name exists.
	ErrCategoryExists = errors.New("category already exists")
	// ErrProtectedCategory is returned when deleting or renaming the
	// top-level catch-all category.
	ErrProtectedCategory = errors.New("the catch-all category cannot be deleted or renamed")
)
