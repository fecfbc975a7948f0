package httpapi

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"nexuslog/internal/ingest"
	"nexuslog/internal/model"
	"nexuslog/internal/store"
)

const (
	defaultEntryLimit = 50
	maxEntryLimit     = 500
	maxSpeechRunes    = 5000
)

// Raw HTML in notes is dropped; goldmark only passes it through with
// html.WithUnsafe.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
)

func (s *server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultEntryLimit)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}
	if limit == 0 {
		limit = defaultEntryLimit
	}
	limit = min(limit, maxEntryLimit)
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}
	categoryID, err := queryInt(r, "category_id", 0)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}

	filter := store.EntryFilter{
		CategoryID:  int64(categoryID),
		ContentType: strings.TrimSpace(r.URL.Query().Get("content_type")),
		Limit:       limit,
		Offset:      offset,
	}
	for name, dst := range map[string]*time.Time{"since": &filter.Since, "until": &filter.Until} {
		raw := strings.TrimSpace(r.URL.Query().Get(name))
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, "invalid_request", name+" must be an RFC 3339 timestamp", nil)
			return
		}
		*dst = t
	}

	entries, err := s.store.ListEntries(r.Context(), filter)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	resp := model.EntryListResponse{Entries: make([]model.Entry, 0, len(entries)), Limit: limit, Offset: offset}
	for i := range entries {
		resp.Entries = append(resp.Entries, toModelEntry(&entries[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	entry, err := s.store.GetEntry(r.Context(), id)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}

	if r.URL.Query().Get("format") != "html" {
		writeJSON(w, http.StatusOK, toModelEntry(entry))
		return
	}
	page, err := renderEntry(entry)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}

func renderEntry(e *store.Entry) ([]byte, error) {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(e.ProcessedContent), &body); err != nil {
		return nil, fmt.Errorf("render entry %d: %w", e.ID, err)
	}
	title := fmt.Sprintf("Entry %d", e.ID)
	if t, _ := e.Metadata["title"].(string); strings.TrimSpace(t) != "" {
		title = t
	}

	var page bytes.Buffer
	page.WriteString("<!doctype html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&page, "<title>%s</title>\n</head>\n<body>\n<article>\n", html.EscapeString(title))
	page.Write(body.Bytes())
	page.WriteString("</article>\n</body>\n</html>\n")
	return page.Bytes(), nil
}

func (s *server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEntryRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "content is required", nil)
		return
	}

	saved, err := s.ingester.CreateManual(r.Context(), ingest.ManualEntry{
		Content:       req.Content,
		ContentType:   strings.TrimSpace(req.ContentType),
		Title:         req.Title,
		Category:      req.Category,
		Subcategory:   req.Subcategory,
		IsContentIdea: req.IsContentIdea,
		OutputTypes:   req.OutputTypes,
		Source:        ingest.SourceAPI,
	})
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, model.CreateEntryResponse{
		EntryID:       saved.EntryID,
		ContentIdeaID: saved.IdeaID,
		Category:      saved.Category,
		Subcategory:   saved.Subcategory,
	})
}

func (s *server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteEntry(r.Context(), id); err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req model.IngestRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "text is required", nil)
		return
	}

	ctx := r.Context()
	if s.cfg.IngestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.IngestTimeout)
		defer cancel()
	}
	res := s.ingester.Ingest(ctx, ingest.Request{
		Kind:       ingest.KindText,
		Text:       req.Text,
		ExternalID: req.ExternalID,
		Source:     ingest.SourceAPI,
	})

	status := http.StatusOK
	switch res.Outcome {
	case ingest.OutcomeCreated:
		status = http.StatusCreated
	case ingest.OutcomeFailed:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, toIngestResponse(res))
}

func (s *server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	var req model.SpeechRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "text is required", nil)
		return
	}
	if len([]rune(text)) > maxSpeechRunes {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", fmt.Sprintf("text exceeds %d characters", maxSpeechRunes), nil)
		return
	}

	var audio []byte
	if s.speaker != nil {
		audio = s.speaker.Speak(r.Context(), text)
	}
	if len(audio) == 0 {
		s.writeError(w, r, http.StatusServiceUnavailable, "speech_unavailable", "no provider could synthesize speech", nil)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(audio))
	w.Header().Set("Content-Length", fmt.Sprint(len(audio)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}

func toModelEntry(e *store.Entry) model.Entry {
	out := model.Entry{
		ID:               e.ID,
		RawContent:       e.RawContent,
		ProcessedContent: e.ProcessedContent,
		ContentType:      e.ContentType,
		FilePath:         e.FilePath.String,
		CategoryID:       optionalID(e.CategoryID.Int64, e.CategoryID.Valid),
		SubcategoryID:    optionalID(e.SubcategoryID.Int64, e.SubcategoryID.Valid),
		Source:           e.Source,
		Metadata:         e.Metadata,
		CreatedAt:        unixTime(e.CreatedAt),
		UpdatedAt:        unixTime(e.UpdatedAt),
	}
	if out.Metadata == nil {
		out.Metadata = map[string]any{}
	}
	return out
}

func toIngestResponse(res ingest.Result) model.IngestResponse {
	out := model.IngestResponse{
		Outcome:      string(res.Outcome),
		EntryID:      res.EntryID,
		ContentType:  res.ContentType,
		Items:        make([]model.IngestItem, 0, len(res.Items)),
		Notes:        res.Notes,
		TradeMessage: res.TradeMessage,
		Degraded:     res.Degraded,
		Confirmation: ingest.Confirmation(res),
		TimingsMS: model.IngestTimings{
			Extraction:     res.Timings.Extraction.Milliseconds(),
			Classification: res.Timings.Classification.Milliseconds(),
			Total:          res.Timings.Total.Milliseconds(),
		},
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	for _, it := range res.Items {
		out.Items = append(out.Items, model.IngestItem{
			EntryID:       it.EntryID,
			ContentIdeaID: it.IdeaID,
			Title:         it.Title,
			Category:      it.Category,
			Subcategory:   it.Subcategory,
			Intent:        it.Intent,
			IsContentIdea: it.IsContentIdea,
		})
	}
	return out
}

func optionalID(id int64, valid bool) *int64 {
	if !valid {
		return nil
	}
	return &id
}

func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
