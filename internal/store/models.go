package store

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Placeholder values written into a lock row until ingestion finishes.
const (
	LockRawContent       = "PROCESSING_LOCK"
	LockProcessedContent = "Processing..."
	LockFilePath         = "pending"
)

// JSONMap is a JSON object stored in a TEXT column.
type JSONMap map[string]any

func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *JSONMap) Scan(value any) error {
	b, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("JSONMap: %w", err)
	}
	if len(b) == 0 {
		*j = JSONMap{}
		return nil
	}
	return json.Unmarshal(b, j)
}

// StringList is a JSON array of strings stored in a TEXT column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(value any) error {
	b, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("StringList: %w", err)
	}
	if len(b) == 0 {
		*l = StringList{}
		return nil
	}
	return json.Unmarshal(b, (*[]string)(l))
}

func jsonBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("expected []byte or string, got %T", value)
	}
}

type Entry struct {
	ID               int64          `db:"id" json:"id"`
	RawContent       string         `db:"raw_content" json:"raw_content"`
	ProcessedContent string         `db:"processed_content" json:"processed_content"`
	ContentType      string         `db:"content_type" json:"content_type"`
	FilePath         sql.NullString `db:"file_path" json:"-"`
	CategoryID       sql.NullInt64  `db:"category_id" json:"-"`
	SubcategoryID    sql.NullInt64  `db:"subcategory_id" json:"-"`
	Source           string         `db:"source" json:"source"`
	Metadata         JSONMap        `db:"metadata" json:"metadata"`
	ExternalID       sql.NullString `db:"external_id" json:"-"`
	CreatedAt        int64          `db:"created_at" json:"-"`
	UpdatedAt        int64          `db:"updated_at" json:"-"`
}

// IsLock reports whether e is a placeholder row still being processed.
func (e *Entry) IsLock() bool {
	return e.RawContent == LockRawContent
}

func (e *Entry) Created() time.Time {
	return time.Unix(e.CreatedAt, 0).UTC()
}

type Category struct {
	ID          int64          `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	Description sql.NullString `db:"description" json:"-"`
	ParentID    sql.NullInt64  `db:"parent_id" json:"-"`
	CreatedAt   int64          `db:"created_at" json:"-"`
	UpdatedAt   int64          `db:"updated_at" json:"-"`
}

func (c *Category) TopLevel() bool {
	return !c.ParentID.Valid
}

type ContentIdea struct {
	ID              int64      `db:"id" json:"id"`
	EntryID         int64      `db:"entry_id" json:"entry_id"`
	Title           string     `db:"title" json:"title"`
	IdeaDescription string     `db:"idea_description" json:"idea_description"`
	AIPrompt        string     `db:"ai_prompt" json:"ai_prompt"`
	OutputTypes     StringList `db:"output_types" json:"output_types"`
	Status          string     `db:"status" json:"status"`
	CreatedAt       int64      `db:"created_at" json:"-"`
	UpdatedAt       int64      `db:"updated_at" json:"-"`
}

type Project struct {
	ID          int64          `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	Description sql.NullString `db:"description" json:"-"`
	CategoryID  sql.NullInt64  `db:"category_id" json:"-"`
	Tasks       StringList     `db:"tasks" json:"tasks"`
	Status      string         `db:"status" json:"status"`
	CreatedAt   int64          `db:"created_at" json:"-"`
	UpdatedAt   int64          `db:"updated_at" json:"-"`
}

type ConfigItem struct {
	Key       string          `db:"key" json:"key"`
	Value     json.RawMessage `db:"value" json:"value"`
	UpdatedAt int64           `db:"updated_at" json:"-"`
}

type UsageLog struct {
	ID           int64   `db:"id" json:"id"`
	Timestamp    int64   `db:"timestamp" json:"timestamp"`
	Provider     string  `db:"provider" json:"provider"`
	Model        string  `db:"model" json:"model"`
	Feature      string  `db:"feature" json:"feature"`
	InputTokens  int     `db:"input_tokens" json:"input_tokens"`
	OutputTokens int     `db:"output_tokens" json:"output_tokens"`
	CostUSD      float64 `db:"cost_usd" json:"cost_usd"`
	Details      JSONMap `db:"details" json:"details"`
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id > 0}
}
