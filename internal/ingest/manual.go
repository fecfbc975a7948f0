package ingest

import (
	"context"
	"errors"
	"strings"

	"nexuslog/internal/classify"
)

var ErrEmptyContent = errors.New("content is required")

// ManualEntry is an entry typed in by a user rather than extracted from a
// message. It skips extraction and classification but still goes through
// category resolution and the content-idea flow.
type ManualEntry struct {
	Content       string
	ContentType   string
	Title         string
	Category      string
	Subcategory   string
	IsContentIdea bool
	OutputTypes   []string
	Source        string
}

func (s *Service) CreateManual(ctx context.Context, m ManualEntry) (SavedItem, error) {
	content := strings.TrimSpace(m.Content)
	if content == "" {
		return SavedItem{}, ErrEmptyContent
	}
	if m.ContentType == "" {
		m.ContentType = string(KindText)
	}
	if m.Source == "" {
		m.Source = SourceAPI
	}

	md := classify.ParseMetadata(content)
	md.IsContentIdea = md.IsContentIdea || m.IsContentIdea
	if len(m.OutputTypes) > 0 {
		md.OutputTypes = m.OutputTypes
	}
	title := strings.TrimSpace(m.Title)
	if title == "" {
		title = classify.UntitledEntry
	}

	res := Result{ContentType: m.ContentType}
	return s.saveItem(ctx, itemInput{
		item: classify.Item{
			Intent:           classify.IntentNote,
			Title:            title,
			ProcessedContent: content,
			Category:         m.Category,
			Subcategory:      m.Subcategory,
			IsContentIdea:    m.IsContentIdea,
		},
		first:  true,
		raw:    content,
		res:    &res,
		md:     md,
		source: m.Source,
	})
}
