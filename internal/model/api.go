package model

import (
	"encoding/json"
	"time"
)

type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error     APIError `json:"error"`
	RequestID string   `json:"request_id,omitempty"`
}

type HealthResponse struct {
	OK bool `json:"ok"`
}

type ReadyResponse struct {
	OK          bool   `json:"ok"`
	ServiceName string `json:"service_name,omitempty"`
}

type Entry struct {
	ID               int64          `json:"id"`
	RawContent       string         `json:"raw_content"`
	ProcessedContent string         `json:"processed_content"`
	ContentType      string         `json:"content_type"`
	FilePath         string         `json:"file_path,omitempty"`
	CategoryID       *int64         `json:"category_id"`
	SubcategoryID    *int64         `json:"subcategory_id"`
	Source           string         `json:"source"`
	Metadata         map[string]any `json:"metadata"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

type EntryListResponse struct {
	Entries []Entry `json:"entries"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

type CreateEntryRequest struct {
	Content       string   `json:"content"`
	ContentType   string   `json:"content_type,omitempty"`
	Title         string   `json:"title,omitempty"`
	Category      string   `json:"category,omitempty"`
	Subcategory   string   `json:"subcategory,omitempty"`
	IsContentIdea bool     `json:"is_content_idea,omitempty"`
	OutputTypes   []string `json:"output_types,omitempty"`
}

type CreateEntryResponse struct {
	EntryID       int64  `json:"entry_id"`
	ContentIdeaID int64  `json:"content_idea_id,omitempty"`
	Category      string `json:"category"`
	Subcategory   string `json:"subcategory,omitempty"`
}

type Category struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ParentID    *int64    `json:"parent_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type CategoryNode struct {
	Category
	Subcategories []Category `json:"subcategories"`
}

type CategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ParentID    int64  `json:"parent_id,omitempty"`
}

type ContentIdea struct {
	ID              int64     `json:"id"`
	EntryID         int64     `json:"entry_id"`
	Title           string    `json:"title"`
	IdeaDescription string    `json:"idea_description"`
	AIPrompt        string    `json:"ai_prompt"`
	OutputTypes     []string  `json:"output_types"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type ContentIdeaUpdateRequest struct {
	Status      *string  `json:"status,omitempty"`
	Title       *string  `json:"title,omitempty"`
	AIPrompt    *string  `json:"ai_prompt,omitempty"`
	OutputTypes []string `json:"output_types,omitempty"`
}

type Project struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CategoryID  *int64    `json:"category_id"`
	Tasks       []string  `json:"tasks"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

type ProjectRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	CategoryID  int64    `json:"category_id,omitempty"`
	Tasks       []string `json:"tasks,omitempty"`
	Status      string   `json:"status,omitempty"`
}

type ConfigItem struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type ConfigUpdateRequest struct {
	Value json.RawMessage `json:"value"`
}

type UsageRecord struct {
	Timestamp    time.Time      `json:"timestamp"`
	Provider     string         `json:"provider"`
	Model        string         `json:"model"`
	Feature      string         `json:"feature"`
	InputTokens  int            `json:"input_tokens"`
	OutputTokens int            `json:"output_tokens"`
	CostUSD      float64        `json:"cost_usd"`
	Details      map[string]any `json:"details,omitempty"`
}

type ProviderCost struct {
	Provider     string  `json:"provider"`
	Calls        int     `json:"calls"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

type UsageResponse struct {
	Since        time.Time      `json:"since"`
	TotalCostUSD float64        `json:"total_cost_usd"`
	Summary      []ProviderCost `json:"summary"`
	Recent       []UsageRecord  `json:"recent"`
}

type IngestRequest struct {
	Text       string `json:"text"`
	ExternalID string `json:"external_id,omitempty"`
}

type IngestItem struct {
	EntryID       int64  `json:"entry_id"`
	ContentIdeaID int64  `json:"content_idea_id,omitempty"`
	Title         string `json:"title"`
	Category      string `json:"category"`
	Subcategory   string `json:"subcategory,omitempty"`
	Intent        string `json:"intent,omitempty"`
	IsContentIdea bool   `json:"is_content_idea"`
}

type IngestTimings struct {
	Extraction     int64 `json:"extraction"`
	Classification int64 `json:"classification"`
	Total          int64 `json:"total"`
}

type IngestResponse struct {
	Outcome      string        `json:"outcome"`
	EntryID      int64         `json:"entry_id,omitempty"`
	ContentType  string        `json:"content_type,omitempty"`
	Items        []IngestItem  `json:"items"`
	Notes        []string      `json:"notes,omitempty"`
	TradeMessage string        `json:"trade_message,omitempty"`
	Degraded     bool          `json:"degraded,omitempty"`
	Error        string        `json:"error,omitempty"`
	Confirmation string        `json:"confirmation"`
	TimingsMS    IngestTimings `json:"timings_ms"`
}

type SpeechRequest struct {
	Text string `json:"text"`
}

type ComponentStatus struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type ProviderStatus struct {
	Active  []string `json:"active"`
	Skipped []string `json:"skipped"`
}

type WebhookStatus struct {
	URL                string `json:"url"`
	PendingUpdateCount int    `json:"pending_update_count"`
	LastErrorMessage   string `json:"last_error_message,omitempty"`
}

type TelegramStatus struct {
	Configured bool           `json:"configured"`
	Webhook    *WebhookStatus `json:"webhook,omitempty"`
	Error      string         `json:"error,omitempty"`
}

type SystemStatusResponse struct {
	OK        bool            `json:"ok"`
	Database  ComponentStatus `json:"database"`
	Providers ProviderStatus  `json:"providers"`
	Telegram  TelegramStatus  `json:"telegram"`
	Storage   string          `json:"storage,omitempty"`
	Sheets    bool            `json:"sheets"`
}
