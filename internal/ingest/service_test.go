package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexuslog/internal/category"
	"nexuslog/internal/classify"
	"nexuslog/internal/extractor"
	"nexuslog/internal/provider"
	"nexuslog/internal/sheets"
	"nexuslog/internal/store"
)

type fakeExtractor struct {
	mu    sync.Mutex
	calls []extractor.Input
	notes []string
	urls  []string
}

func (f *fakeExtractor) Extract(_ context.Context, in extractor.Input) extractor.Result {
	f.mu.Lock()
	f.calls = append(f.calls, in)
	f.mu.Unlock()
	res := extractor.Result{Text: in.Text, Transcription: in.Transcription, URLs: f.urls, Notes: f.notes}
	if in.Image != nil {
		res.ImageAnalysis = "a chart of AAPL"
	}
	return res
}

type fakePrompter struct {
	answer string
}

func (f fakePrompter) Prompt(context.Context, string) string {
	return f.answer
}

type fakeClassifier struct {
	items []classify.Item
	block chan struct{}
}

func (f *fakeClassifier) Classify(ctx context.Context, _ extractor.Result, _ []string) []classify.Item {
	if f.block != nil {
		<-f.block
	}
	return f.items
}

type fakeAI struct {
	transcript string
	prompts    int
}

func (f *fakeAI) Transcribe(context.Context, provider.Media) string      { return f.transcript }
func (f *fakeAI) TranscribeVideo(context.Context, provider.Media) string { return f.transcript }
func (f *fakeAI) GenerateContentPrompt(_ context.Context, idea string) string {
	f.prompts++
	return "Write a post about: " + idea
}

type fakeFiles struct {
	paths []string
}

func (f *fakeFiles) Save(_ context.Context, _ []byte, logicalPath, _ string) string {
	f.paths = append(f.paths, logicalPath)
	return "/files/" + logicalPath
}

func (f *fakeFiles) NewKey(dir, ext string) string {
	return dir + "/generated" + ext
}

type fakeSheets struct {
	ideas  []string
	trades []sheets.TradeEntry
	err    error
}

func (f *fakeSheets) AppendContentIdea(_ context.Context, description, _ string, _ []string) error {
	f.ideas = append(f.ideas, description)
	return f.err
}

func (f *fakeSheets) LogTradeJournal(_ context.Context, t sheets.TradeEntry) (sheets.TradeResult, error) {
	f.trades = append(f.trades, t)
	if f.err != nil {
		return sheets.TradeResult{}, f.err
	}
	return sheets.TradeResult{Message: "Added new row for " + t.StockSymbol + " on " + t.Date}, nil
}

type countingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *countingObserver) ObserveIngestion(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

type fixture struct {
	svc      *Service
	db       *store.DB
	ai       *fakeAI
	files    *fakeFiles
	sheets   *fakeSheets
	observer *countingObserver
	ext      *fakeExtractor
}

func newFixture(t *testing.T, classifier Classifier) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, store.Config{Driver: store.DriverSQLite, URL: filepath.Join(t.TempDir(), "ingest.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		db:       db,
		ai:       &fakeAI{transcript: "buy milk tomorrow"},
		files:    &fakeFiles{},
		sheets:   &fakeSheets{},
		observer: &countingObserver{},
		ext:      &fakeExtractor{},
	}
	f.svc = New(Deps{
		Store:      db,
		Categories: category.New(db, category.DefaultMaxTopLevel, logger),
		Extractor:  f.ext,
		Classifier: classifier,
		AI:         f.ai,
		Files:      f.files,
		Sheets:     f.sheets,
		Observer:   f.observer,
		Logger:     logger,
	})
	return f
}

func item(title, content, cat string) classify.Item {
	return classify.Item{Intent: classify.IntentNote, Title: title, ProcessedContent: content, Category: cat}
}

func TestParseFailureStillCreatesOneCatchAllEntry(t *testing.T) {
	paragraph := "Sure! This looks like a note about your weekend plans and groceries."
	f := newFixture(t, classify.New(fakePrompter{answer: paragraph}, time.Second, nil))
	ctx := context.Background()

	res := f.svc.Ingest(ctx, Request{Kind: KindText, Text: "weekend: hike, groceries"})
	require.Equal(t, OutcomeCreated, res.Outcome)
	require.Len(t, res.Items, 1)

	entry, err := f.db.GetEntry(ctx, res.EntryID)
	require.NoError(t, err)
	assert.Equal(t, paragraph, entry.ProcessedContent)
	assert.Equal(t, "weekend: hike, groceries", entry.RawContent)

	catchAll, err := f.db.FindCategory(ctx, provider.CatchAllCategory, 0)
	require.NoError(t, err)
	assert.Equal(t, catchAll.ID, entry.CategoryID.Int64)

	entries, err := f.db.ListEntries(ctx, store.EntryFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSameMediaTwiceProducesOneEntry(t *testing.T) {
	f := newFixture(t, &fakeClassifier{items: []classify.Item{item("Groceries", "Buy milk tomorrow", "to-do")}})
	ctx := context.Background()
	req := Request{
		Kind:  KindAudio,
		Media: &Media{Data: []byte("ogg"), MIMEType: "audio/ogg", FileID: "f1", FileUniqueID: "u1"},
	}

	first := f.svc.Ingest(ctx, req)
	require.Equal(t, OutcomeCreated, first.Outcome)
	assert.Equal(t, "audio", first.ContentType)
	assert.Equal(t, "/files/audio/f1_u1.ogg", first.FilePath)

	second := f.svc.Ingest(ctx, req)
	assert.Equal(t, OutcomeDuplicate, second.Outcome)
	assert.Equal(t, first.EntryID, second.EntryID)
	assert.Contains(t, Confirmation(second), "already processed this voice note")

	entries, err := f.db.ListEntries(ctx, store.EntryFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "u1", entries[0].ExternalID.String)
	assert.Equal(t, "buy milk tomorrow", entries[0].RawContent)
	assert.Equal(t, []string{"audio/f1_u1.ogg"}, f.files.paths)
	assert.Equal(t, []string{"created", "duplicate"}, f.observer.outcomes)
}

func TestConcurrentDeliveryReportsInProgress(t *testing.T) {
	block := make(chan struct{})
	f := newFixture(t, &fakeClassifier{items: []classify.Item{item("Chart", "AAPL chart", "Stock Trading")}, block: block})
	ctx := context.Background()
	req := Request{Kind: KindImage, Media: &Media{Data: []byte("png"), MIMEType: "image/png", FileID: "p1", FileUniqueID: "pu1"}}

	done := make(chan Result)
	go func() { done <- f.svc.Ingest(ctx, req) }()

	require.Eventually(t, func() bool {
		_, err := f.db.EntryByExternalID(ctx, "pu1")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	second := f.svc.Ingest(ctx, req)
	assert.Equal(t, OutcomeInProgress, second.Outcome)
	assert.Equal(t, "⏳ Still processing this image...", Confirmation(second))

	close(block)
	first := <-done
	require.Equal(t, OutcomeCreated, first.Outcome)
	assert.Equal(t, first.EntryID, second.EntryID)
}

func TestMediaWithoutUniqueIDUsesContentHash(t *testing.T) {
	f := newFixture(t, &fakeClassifier{items: []classify.Item{item("Doc", "A document", "General Notes")}})
	ctx := context.Background()
	req := Request{Kind: KindDocument, Media: &Media{Data: []byte("%PDF-1.4"), MIMEType: "application/pdf", FileName: "plan.pdf"}}

	first := f.svc.Ingest(ctx, req)
	require.Equal(t, OutcomeCreated, first.Outcome)
	assert.Equal(t, "document", first.ContentType)
	assert.Equal(t, []string{"documents/generated.pdf"}, f.files.paths)
	require.Len(t, f.ext.calls, 1)
	assert.Equal(t, "[Document: plan.pdf]", f.ext.calls[0].Text)

	second := f.svc.Ingest(ctx, req)
	assert.Equal(t, OutcomeDuplicate, second.Outcome)

	entry, err := f.db.GetEntry(ctx, first.EntryID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(entry.ExternalID.String, "sha256:"))
}

func TestContentIdeaIsStoredWithPrompt(t *testing.T) {
	idea := item("AI agents", "How AI agents change support teams", "Content Ideas")
	f := newFixture(t, &fakeClassifier{items: []classify.Item{idea}})
	ctx := context.Background()

	res := f.svc.Ingest(ctx, Request{Kind: KindText, Text: "content idea for linkedin: AI agents in support"})
	require.Equal(t, OutcomeCreated, res.Outcome)
	require.Len(t, res.Items, 1)
	assert.True(t, res.Items[0].IsContentIdea)

	ideas, err := f.db.ContentIdeasForEntry(ctx, res.EntryID)
	require.NoError(t, err)
	require.Len(t, ideas, 1)
	assert.Equal(t, "AI agents", ideas[0].Title)
	assert.NotEmpty(t, ideas[0].AIPrompt)
	assert.Equal(t, store.StringList{"linkedin"}, ideas[0].OutputTypes)
	assert.Equal(t, []string{"How AI agents change support teams"}, f.sheets.ideas)
	assert.Contains(t, Confirmation(res), "💡 Marked as content idea")

	entry, err := f.db.GetEntry(ctx, res.EntryID)
	require.NoError(t, err)
	assert.Equal(t, true, entry.Metadata["is_content_idea"])
}

func TestNoIdeaWhenNotFlagged(t *testing.T) {
	f := newFixture(t, &fakeClassifier{items: []classify.Item{item("Lunch", "Lunch with Sam at noon", "to-do")}})
	ctx := context.Background()

	res := f.svc.Ingest(ctx, Request{Kind: KindText, Text: "lunch with Sam at noon"})
	require.Equal(t, OutcomeCreated, res.Outcome)

	ideas, err := f.db.ContentIdeasForEntry(ctx, res.EntryID)
	require.NoError(t, err)
	assert.Empty(t, ideas)
	assert.Zero(t, f.ai.prompts)
	assert.Empty(t, f.sheets.ideas)
}

func TestFailedMediaPromotesLock(t *testing.T) {
	f := newFixture(t, &fakeClassifier{items: []classify.Item{item("x", "y", "to-do")}})
	f.ai.transcript = ""
	ctx := context.Background()
	req := Request{Kind: KindAudio, Media: &Media{Data: []byte("ogg"), MIMEType: "audio/ogg", FileID: "f2", FileUniqueID: "u2"}}

	res := f.svc.Ingest(ctx, req)
	require.Equal(t, OutcomeFailed, res.Outcome)
	require.ErrorIs(t, res.Err, errNoTranscription)
	assert.True(t, strings.HasPrefix(Confirmation(res), "❌ Error processing voice note: "))

	entry, err := f.db.GetEntry(ctx, res.EntryID)
	require.NoError(t, err)
	assert.False(t, entry.IsLock())
	assert.Equal(t, "Processing failed: "+errNoTranscription.Error(), entry.ProcessedContent)

	again := f.svc.Ingest(ctx, req)
	assert.Equal(t, OutcomeDuplicate, again.Outcome)
}

func TestFailedMediaKeepsSavedFile(t *testing.T) {
	f := newFixture(t, &fakeClassifier{items: []classify.Item{item("x", "y", "to-do")}})
	f.ai.transcript = ""
	ctx := context.Background()

	res := f.svc.Ingest(ctx, Request{Kind: KindAudio, Media: &Media{Data: []byte("ogg"), MIMEType: "audio/ogg", FileID: "f3", FileUniqueID: "u3"}})
	require.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, []string{"audio/f3_u3.ogg"}, f.files.paths)
	assert.Equal(t, "/files/audio/f3_u3.ogg", res.FilePath)

	entry, err := f.db.GetEntry(ctx, res.EntryID)
	require.NoError(t, err)
	require.True(t, entry.FilePath.Valid)
	assert.Equal(t, "/files/audio/f3_u3.ogg", entry.FilePath.String)
	assert.Equal(t, "[audio]", entry.RawContent)
}

func TestMultipleItemsShareOneMessage(t *testing.T) {
	f := newFixture(t, &fakeClassifier{items: []classify.Item{
		item("Pasta", "Carbonara recipe", "Recipes"),
		item("Call mom", "Call mom on Sunday", "to-do"),
	}})
	f.ext.urls = []string{"https://example.com/pasta"}
	ctx := context.Background()

	res := f.svc.Ingest(ctx, Request{Kind: KindText, Text: "carbonara https://example.com/pasta and call mom sunday"})
	require.Equal(t, OutcomeCreated, res.Outcome)
	require.Len(t, res.Items, 2)
	assert.Equal(t, res.Items[0].EntryID, res.EntryID)

	first, err := f.db.GetEntry(ctx, res.Items[0].EntryID)
	require.NoError(t, err)
	assert.Equal(t, "link", first.ContentType)
	assert.Equal(t, "https://example.com/pasta", first.Metadata["source_url"])

	second, err := f.db.GetEntry(ctx, res.Items[1].EntryID)
	require.NoError(t, err)
	assert.Equal(t, "text", second.ContentType)

	msg := Confirmation(res)
	assert.True(t, strings.HasPrefix(msg, "✅ Created 2 entries!"))
	assert.Contains(t, msg, "1. Pasta\n   📁 Recipes (ID: ")
}

func TestTradeJournalMessages(t *testing.T) {
	trade := classify.Item{
		Intent:           classify.IntentTradeJournal,
		Title:            "AAPL exit",
		ProcessedContent: "Sold AAPL too early",
		Category:         "Stock Trading",
		Date:             "3/7/2025",
		StockSymbol:      "AAPL",
	}

	t.Run("logged", func(t *testing.T) {
		f := newFixture(t, &fakeClassifier{items: []classify.Item{trade}})
		res := f.svc.Ingest(context.Background(), Request{Kind: KindText, Text: "sold aapl too early"})
		assert.Equal(t, "📊 Sheet Updated: Added new row for AAPL on 3/7/2025", res.TradeMessage)
		require.Len(t, f.sheets.trades, 1)
		assert.Equal(t, "Sold AAPL too early", f.sheets.trades[0].Commentary)
		assert.Contains(t, Confirmation(res), res.TradeMessage)
	})

	t.Run("missing symbol", func(t *testing.T) {
		noSymbol := trade
		noSymbol.StockSymbol = ""
		f := newFixture(t, &fakeClassifier{items: []classify.Item{noSymbol}})
		res := f.svc.Ingest(context.Background(), Request{Kind: KindText, Text: "sold too early"})
		assert.Equal(t, tradeMissing, res.TradeMessage)
		assert.Empty(t, f.sheets.trades)
	})

	t.Run("sheet error", func(t *testing.T) {
		f := newFixture(t, &fakeClassifier{items: []classify.Item{trade}})
		f.sheets.err = errors.New("quota exceeded")
		res := f.svc.Ingest(context.Background(), Request{Kind: KindText, Text: "sold aapl too early"})
		assert.Equal(t, OutcomeCreated, res.Outcome)
		assert.Equal(t, "⚠️ Sheet Error: quota exceeded", res.TradeMessage)
	})
}

func TestImageConfirmationShowsAnalysis(t *testing.T) {
	f := newFixture(t, &fakeClassifier{items: []classify.Item{item("Chart", "AAPL daily chart with support at 170", "Stock Trading")}})
	res := f.svc.Ingest(context.Background(), Request{
		Kind:  KindImage,
		Media: &Media{Data: []byte("png"), MIMEType: "image/png", FileID: "p9", FileUniqueID: "pu9"},
	})
	require.Equal(t, OutcomeCreated, res.Outcome)
	require.Len(t, f.ext.calls, 1)
	require.NotNil(t, f.ext.calls[0].Image)

	want := "✅ Image analyzed! Entry ID: " + strconv.FormatInt(res.EntryID, 10) + "\n📁 Category: Stock Trading\n\n📋 Analysis:\nAAPL daily chart with support at 170"
	assert.Equal(t, want, Confirmation(res))
}

func TestNotesMessageShowsFirstThree(t *testing.T) {
	assert.Empty(t, NotesMessage(nil))
	got := NotesMessage([]string{"a", "b", "c", "d"})
	assert.Equal(t, "📥 Extracted:\n• a\n• b\n• c", got)
}

func TestPreviewCutsRunes(t *testing.T) {
	assert.Equal(t, "héllo", preview("héllo", 5))
	assert.Equal(t, "hé...", preview("héllo", 2))
}
