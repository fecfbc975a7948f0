package ingest

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"nexuslog/internal/category"
	"nexuslog/internal/classify"
	"nexuslog/internal/extractor"
	"nexuslog/internal/provider"
	"nexuslog/internal/sheets"
	"nexuslog/internal/store"
)

type Kind string

const (
	KindText      Kind = "text"
	KindImage     Kind = "image"
	KindAudio     Kind = "audio"
	KindVideo     Kind = "video"
	KindAnimation Kind = "animation"
	KindDocument  Kind = "document"
)

type Outcome string

const (
	OutcomeCreated    Outcome = "created"
	OutcomeInProgress Outcome = "in_progress"
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeFailed     Outcome = "failed"
)

const (
	SourceTelegram = "telegram"
	SourceAPI      = "api"

	failedPrefix = "Processing failed: "
	tradeMissing = "⚠️ Trade detected but Date/Stock missing for Sheet."
)

var errNoTranscription = errors.New("transcription returned no text")

type Store interface {
	AcquireLock(ctx context.Context, externalID, contentType, source string) (store.LockResult, error)
	SaveEntry(ctx context.Context, e *store.Entry, idea *store.ContentIdea) error
	FailLock(ctx context.Context, id int64, raw, processed, filePath string, categoryID int64) error
}

type Categories interface {
	Resolve(ctx context.Context, name, subcategory string) (category.Resolution, error)
	CatchAll(ctx context.Context) (*store.Category, error)
	Names(ctx context.Context) ([]string, error)
}

type Extractor interface {
	Extract(ctx context.Context, in extractor.Input) extractor.Result
}

type Classifier interface {
	Classify(ctx context.Context, res extractor.Result, categories []string) []classify.Item
}

// AI is the slice of the provider router ingestion needs.
type AI interface {
	Transcribe(ctx context.Context, m provider.Media) string
	TranscribeVideo(ctx context.Context, m provider.Media) string
	GenerateContentPrompt(ctx context.Context, idea string) string
}

type Files interface {
	Save(ctx context.Context, data []byte, logicalPath, contentType string) string
	NewKey(dir, ext string) string
}

type Sheets interface {
	AppendContentIdea(ctx context.Context, description, prompt string, outputTypes []string) error
	LogTradeJournal(ctx context.Context, t sheets.TradeEntry) (sheets.TradeResult, error)
}

type Observer interface {
	ObserveIngestion(outcome string)
}

type Deps struct {
	Store      Store
	Categories Categories
	Extractor  Extractor
	Classifier Classifier
	AI         AI
	Files      Files
	// Sheets is optional; leave nil when no spreadsheet is configured.
	Sheets   Sheets
	Observer Observer
	Logger   *slog.Logger
}

// Media is an inbound attachment.
type Media struct {
	Data     []byte
	MIMEType string
	FileName string
	// FileID names the stored object; FileUniqueID is the dedup key.
	FileID       string
	FileUniqueID string
}

type Request struct {
	Kind  Kind
	Text  string
	Media *Media
	Reply *extractor.ReplyContext
	// ExternalID overrides the dedup key derived from Media.
	ExternalID string
	Source     string
}

type SavedItem struct {
	EntryID       int64
	IdeaID        int64
	Title         string
	Category      string
	Subcategory   string
	Content       string
	Intent        string
	IsContentIdea bool
}

type Timings struct {
	Extraction     time.Duration
	Classification time.Duration
	Total          time.Duration
}

type Result struct {
	Outcome     Outcome
	Kind        Kind
	EntryID     int64
	ContentType string
	FilePath    string
	Items       []SavedItem
	Notes       []string
	// TradeMessage reports the trade journal mirror for the first item.
	TradeMessage string
	// Degraded is set when the item was stored as-is after a failure.
	Degraded bool
	Err      error
	Timings  Timings
}

type Service struct {
	store      Store
	categories Categories
	extractor  Extractor
	classifier Classifier
	ai         AI
	files      Files
	sheets     Sheets
	observer   Observer
	logger     *slog.Logger
}

func New(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      d.Store,
		categories: d.Categories,
		extractor:  d.Extractor,
		classifier: d.Classifier,
		ai:         d.AI,
		files:      d.Files,
		sheets:     d.Sheets,
		observer:   d.Observer,
		logger:     logger,
	}
}

// ExternalID is the dedup key of an attachment: the platform's unique file
// id, or a content hash when the caller has none.
func ExternalID(m *Media) string {
	if m == nil {
		return ""
	}
	if id := strings.TrimSpace(m.FileUniqueID); id != "" {
		return id
	}
	if len(m.Data) == 0 {
		return ""
	}
	sum := sha256.Sum256(m.Data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// Ingest runs one inbound item through dedup, enrichment, classification
// and persistence. It never panics on provider trouble; every path ends in
// a Result the caller can turn into a confirmation.
func (s *Service) Ingest(ctx context.Context, req Request) Result {
	started := time.Now()
	if req.Kind == "" {
		req.Kind = KindText
	}
	if req.Source == "" {
		req.Source = SourceTelegram
	}
	externalID := strings.TrimSpace(req.ExternalID)
	if externalID == "" {
		externalID = ExternalID(req.Media)
	}

	var lockID int64
	if externalID != "" {
		lock, err := s.store.AcquireLock(ctx, externalID, mediaContentType(req.Kind, req.Media), req.Source)
		if err != nil {
			return s.finish(Result{Outcome: OutcomeFailed, Kind: req.Kind, Err: fmt.Errorf("acquire lock: %w", err)}, started)
		}
		switch lock.State {
		case store.LockInProgress:
			return s.finish(Result{Outcome: OutcomeInProgress, Kind: req.Kind, EntryID: lock.EntryID}, started)
		case store.LockDuplicate:
			return s.finish(Result{Outcome: OutcomeDuplicate, Kind: req.Kind, EntryID: lock.EntryID}, started)
		}
		lockID = lock.EntryID
	}

	res, err := s.process(ctx, req, externalID, lockID)
	if err == nil {
		res.Outcome = OutcomeCreated
		return s.finish(res, started)
	}

	s.logger.Error("ingestion failed", "kind", req.Kind, "external_id", externalID, "error", err)
	if lockID > 0 {
		s.releaseLock(ctx, lockID, rawFallback(req), res.FilePath, err)
		return s.finish(Result{Outcome: OutcomeFailed, Kind: req.Kind, EntryID: lockID, FilePath: res.FilePath, Err: err}, started)
	}
	if req.Kind == KindText && strings.TrimSpace(req.Text) != "" {
		return s.finish(s.saveBasic(ctx, req, err), started)
	}
	return s.finish(Result{Outcome: OutcomeFailed, Kind: req.Kind, Err: err}, started)
}

func (s *Service) finish(res Result, started time.Time) Result {
	res.Timings.Total = time.Since(started)
	if s.observer != nil {
		s.observer.ObserveIngestion(string(res.Outcome))
	}
	return res
}

func (s *Service) process(ctx context.Context, req Request, externalID string, lockID int64) (Result, error) {
	res := Result{Kind: req.Kind}
	text := strings.TrimSpace(req.Text)

	var pm *provider.Media
	if req.Media != nil && len(req.Media.Data) > 0 {
		m := provider.Media{Data: req.Media.Data, MIMEType: req.Media.MIMEType, FileName: req.Media.FileName}
		pm = &m
		res.FilePath = s.files.Save(ctx, req.Media.Data, s.storagePath(req.Kind, req.Media), req.Media.MIMEType)
	}

	in := extractor.Input{Text: text, Reply: req.Reply}
	switch req.Kind {
	case KindAudio:
		if pm == nil {
			return res, errors.New("audio payload is empty")
		}
		in.Transcription = s.ai.Transcribe(ctx, *pm)
		if in.Transcription == "" {
			return res, errNoTranscription
		}
	case KindVideo:
		if pm != nil {
			in.Transcription = s.ai.TranscribeVideo(ctx, *pm)
		}
	case KindImage, KindAnimation:
		in.Image = pm
	case KindDocument:
		if pm != nil && strings.HasPrefix(pm.MIMEType, "image/") {
			in.Image = pm
		} else if req.Media != nil && req.Media.FileName != "" {
			in.Text = strings.TrimSpace(text + "\n[Document: " + req.Media.FileName + "]")
		}
	}

	extractStarted := time.Now()
	ex := s.extractor.Extract(ctx, in)
	res.Timings.Extraction = time.Since(extractStarted)
	res.Notes = ex.Notes

	names, err := s.categories.Names(ctx)
	if err != nil {
		s.logger.Warn("category names unavailable for classification", "error", err)
	}
	classifyStarted := time.Now()
	items := s.classifier.Classify(ctx, ex, names)
	res.Timings.Classification = time.Since(classifyStarted)
	if len(items) == 0 {
		return res, errors.New("classification produced no items")
	}

	md := classify.ParseMetadata(strings.TrimSpace(text + " " + ex.Transcription))
	res.ContentType = contentTypeFor(req.Kind, ex, req.Media)
	raw := rawContent(ex)
	sourceURL := ex.SourceURL()

	for i, item := range items {
		saved, err := s.saveItem(ctx, itemInput{
			item:       item,
			first:      i == 0,
			lockID:     lockID,
			externalID: externalID,
			raw:        raw,
			res:        &res,
			md:         md,
			sourceURL:  sourceURL,
			source:     req.Source,
		})
		if err != nil {
			if len(res.Items) == 0 {
				return res, err
			}
			s.logger.Error("failed to store follow-up item", "index", i, "error", err)
			break
		}
		res.Items = append(res.Items, saved)
	}
	res.EntryID = res.Items[0].EntryID

	if first := items[0]; first.IsTrade() {
		res.TradeMessage = s.logTrade(ctx, first)
	}
	return res, nil
}

type itemInput struct {
	item       classify.Item
	first      bool
	lockID     int64
	externalID string
	raw        string
	res        *Result
	md         classify.Metadata
	sourceURL  string
	source     string
}

// saveItem persists a single classified item, with its content idea when
// flagged.
func (s *Service) saveItem(ctx context.Context, in itemInput) (SavedItem, error) {
	item := in.item
	resolution, err := s.categories.Resolve(ctx, item.Category, item.Subcategory)
	if err != nil {
		return SavedItem{}, fmt.Errorf("resolve category: %w", err)
	}
	isIdea := in.md.IsContentIdea || item.IsContentIdea

	outputTypes := in.md.OutputTypes
	if outputTypes == nil {
		outputTypes = []string{}
	}
	meta := store.JSONMap{
		"is_content_idea": isIdea,
		"output_types":    outputTypes,
		"title":           item.Title,
		"intent":          item.Intent,
	}
	if in.sourceURL != "" {
		meta["source_url"] = in.sourceURL
	}

	entry := &store.Entry{
		RawContent:       in.raw,
		ProcessedContent: item.ProcessedContent,
		ContentType:      string(KindText),
		CategoryID:       nullID(resolution.CategoryID),
		SubcategoryID:    nullID(resolution.SubcategoryID),
		Source:           in.source,
		Metadata:         meta,
	}
	if entry.RawContent == "" {
		entry.RawContent = item.ProcessedContent
	}
	if in.first {
		entry.ID = in.lockID
		entry.ContentType = in.res.ContentType
		if in.res.FilePath != "" {
			entry.FilePath = nullText(in.res.FilePath)
		}
		if in.externalID != "" {
			meta["file_unique_id"] = in.externalID
			entry.ExternalID = nullText(in.externalID)
		}
	}

	var idea *store.ContentIdea
	if isIdea {
		types := in.md.OutputTypes
		if len(types) == 0 {
			types = store.DefaultOutputTypes
		}
		idea = &store.ContentIdea{
			Title:           ideaTitle(item),
			IdeaDescription: item.ProcessedContent,
			AIPrompt:        s.ai.GenerateContentPrompt(ctx, item.ProcessedContent),
			OutputTypes:     store.StringList(types),
		}
	}
	if err := s.store.SaveEntry(ctx, entry, idea); err != nil {
		return SavedItem{}, err
	}

	saved := SavedItem{
		EntryID:       entry.ID,
		Title:         item.Title,
		Category:      resolution.CategoryName,
		Subcategory:   resolution.SubcategoryName,
		Content:       item.ProcessedContent,
		Intent:        item.Intent,
		IsContentIdea: isIdea,
	}
	if idea != nil {
		saved.IdeaID = idea.ID
		s.mirrorIdea(ctx, idea, in.md.OutputTypes)
	}
	return saved, nil
}

func (s *Service) mirrorIdea(ctx context.Context, idea *store.ContentIdea, outputTypes []string) {
	if s.sheets == nil {
		return
	}
	if err := s.sheets.AppendContentIdea(ctx, idea.IdeaDescription, idea.AIPrompt, outputTypes); err != nil {
		s.logger.Warn("content idea sheet sync failed", "idea_id", idea.ID, "error", err)
	}
}

func (s *Service) logTrade(ctx context.Context, item classify.Item) string {
	if item.Date == "" || item.StockSymbol == "" {
		return tradeMissing
	}
	if s.sheets == nil {
		return "⚠️ Sheet Error: Google Sheets is not configured"
	}
	res, err := s.sheets.LogTradeJournal(ctx, sheets.TradeEntry{
		Date:        item.Date,
		StockSymbol: item.StockSymbol,
		Commentary:  item.ProcessedContent,
	})
	if err != nil {
		s.logger.Warn("trade journal sync failed", "symbol", item.StockSymbol, "error", err)
		return "⚠️ Sheet Error: " + err.Error()
	}
	return "📊 Sheet Updated: " + res.Message
}

// releaseLock turns the placeholder into a terminal degraded entry so later
// deliveries of the same item report it as processed.
func (s *Service) releaseLock(ctx context.Context, lockID int64, raw, filePath string, cause error) {
	// The request context may be what failed; the release must still land.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	var catchAllID int64
	if c, err := s.categories.CatchAll(ctx); err == nil {
		catchAllID = c.ID
	} else {
		s.logger.Error("catch-all category unavailable", "error", err)
	}
	if err := s.store.FailLock(ctx, lockID, raw, failedPrefix+cause.Error(), filePath, catchAllID); err != nil {
		s.logger.Error("failed to release processing lock", "entry_id", lockID, "error", err)
	}
}

// saveBasic stores plain text as-is when enrichment or classification broke.
func (s *Service) saveBasic(ctx context.Context, req Request, cause error) Result {
	md := classify.ParseMetadata(req.Text)
	if md.OutputTypes == nil {
		md.OutputTypes = []string{}
	}
	entry := &store.Entry{
		RawContent:       req.Text,
		ProcessedContent: req.Text,
		ContentType:      string(KindText),
		Source:           req.Source,
		Metadata: store.JSONMap{
			"is_content_idea": false,
			"output_types":    md.OutputTypes,
			"degraded":        true,
		},
	}
	categoryName := provider.CatchAllCategory
	if c, err := s.categories.CatchAll(ctx); err == nil {
		entry.CategoryID = nullID(c.ID)
		categoryName = c.Name
	}
	if err := s.store.SaveEntry(ctx, entry, nil); err != nil {
		return Result{Outcome: OutcomeFailed, Kind: req.Kind, Err: errors.Join(cause, err)}
	}
	return Result{
		Outcome:     OutcomeCreated,
		Kind:        req.Kind,
		EntryID:     entry.ID,
		ContentType: entry.ContentType,
		Degraded:    true,
		Err:         cause,
		Items: []SavedItem{{
			EntryID:  entry.ID,
			Title:    classify.UntitledEntry,
			Category: categoryName,
			Content:  req.Text,
			Intent:   classify.IntentNote,
		}},
	}
}

func (s *Service) storagePath(kind Kind, m *Media) string {
	dir, ext := storageDir(kind, m)
	if m.FileID == "" {
		return s.files.NewKey(dir, ext)
	}
	unique := m.FileUniqueID
	if unique == "" {
		unique = "file"
	}
	return path.Join(dir, m.FileID+"_"+unique+ext)
}

func storageDir(kind Kind, m *Media) (string, string) {
	switch kind {
	case KindImage:
		return "images", ".jpg"
	case KindAudio:
		return "audio", ".ogg"
	case KindVideo, KindAnimation:
		return "video", ".mp4"
	default:
		ext := path.Ext(m.FileName)
		if ext == "" {
			ext = ".bin"
		}
		return "documents", ext
	}
}

func mediaContentType(kind Kind, m *Media) string {
	switch kind {
	case KindImage:
		return "image"
	case KindAudio:
		return "audio"
	case KindVideo, KindAnimation:
		return "video"
	case KindDocument:
		if m != nil && strings.HasPrefix(m.MIMEType, "image/") {
			return "image"
		}
		return "document"
	default:
		return "text"
	}
}

func contentTypeFor(kind Kind, ex extractor.Result, m *Media) string {
	if kind != KindText {
		return mediaContentType(kind, m)
	}
	switch {
	case len(ex.YouTube) > 0 || len(ex.Videos) > 0:
		return "video"
	case len(ex.URLs) > 0:
		return "link"
	default:
		return "text"
	}
}

func rawContent(ex extractor.Result) string {
	var parts []string
	for _, p := range []string{ex.Text, ex.Transcription} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 && ex.ImageAnalysis != "" {
		parts = append(parts, ex.ImageAnalysis)
	}
	return strings.Join(parts, "\n\n")
}

func rawFallback(req Request) string {
	if t := strings.TrimSpace(req.Text); t != "" {
		return t
	}
	return "[" + string(req.Kind) + "]"
}

func ideaTitle(item classify.Item) string {
	if t := strings.TrimSpace(item.Title); t != "" && t != classify.UntitledEntry {
		return t
	}
	r := []rune(item.ProcessedContent)
	if len(r) > 50 {
		return string(r[:50]) + "..."
	}
	return item.ProcessedContent
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id > 0}
}

func nullText(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
