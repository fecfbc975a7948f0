package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexuslog/internal/provider"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, Config{Driver: "sqlite", URL: filepath.Join(t.TempDir(), "nexuslog.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))
	return db
}

func TestMigrateSeedsDefaultCategoriesOnce(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Migrate(ctx))

	cats, err := db.TopLevelCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, len(DefaultCategories))
	for i, c := range cats {
		assert.Equal(t, DefaultCategories[i].Name, c.Name)
		assert.True(t, c.TopLevel())
	}
}

func TestSQLiteDSNAddsPragmas(t *testing.T) {
	assert.Equal(t, "/tmp/a.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", sqliteDSN("sqlite:///tmp/a.db"))
	assert.Equal(t, "a.db?mode=rwc&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", sqliteDSN("a.db?mode=rwc"))
	assert.Equal(t, "a.db?_pragma=foreign_keys(1)", sqliteDSN("a.db?_pragma=foreign_keys(1)"))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mysql", URL: "x"})
	require.Error(t, err)
}

func TestAcquireLockStates(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first, err := db.AcquireLock(ctx, "AgADfile1", "audio", "telegram")
	require.NoError(t, err)
	assert.Equal(t, LockAcquired, first.State)
	assert.Positive(t, first.EntryID)

	again, err := db.AcquireLock(ctx, "AgADfile1", "audio", "telegram")
	require.NoError(t, err)
	assert.Equal(t, LockInProgress, again.State)
	assert.Equal(t, first.EntryID, again.EntryID)

	e, err := db.GetEntry(ctx, first.EntryID)
	require.NoError(t, err)
	assert.True(t, e.IsLock())
	assert.Equal(t, LockProcessedContent, e.ProcessedContent)
	assert.Equal(t, LockFilePath, e.FilePath.String)

	e.RawContent = "hello"
	e.ProcessedContent = "Hello there"
	require.NoError(t, db.SaveEntry(ctx, e, nil))

	dup, err := db.AcquireLock(ctx, "AgADfile1", "audio", "telegram")
	require.NoError(t, err)
	assert.Equal(t, LockDuplicate, dup.State)
	assert.Equal(t, first.EntryID, dup.EntryID)
	assert.Equal(t, "duplicate", dup.State.String())
}

func TestAcquireLockConcurrentDeliveriesYieldOneOwner(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	results := make([]LockResult, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = db.AcquireLock(ctx, "same-file", "image", "telegram")
		}(i)
	}
	wg.Wait()

	acquired := 0
	for i := range n {
		require.NoError(t, errs[i])
		if results[i].State == LockAcquired {
			acquired++
		} else {
			assert.Equal(t, LockInProgress, results[i].State)
		}
	}
	assert.Equal(t, 1, acquired)

	var rows int
	require.NoError(t, db.conn.Get(&rows, `SELECT COUNT(*) FROM entries WHERE external_id = 'same-file'`))
	assert.Equal(t, 1, rows)
}

func TestSaveEntryWithContentIdeaIsAtomic(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	cat, err := db.FindCategory(ctx, "Content Ideas", 0)
	require.NoError(t, err)

	e := &Entry{
		RawContent:       "video idea: go generics",
		ProcessedContent: "Explain Go generics in ten minutes",
		ContentType:      "text",
		CategoryID:       nullInt(cat.ID),
		Metadata:         JSONMap{"is_content_idea": true},
	}
	idea := &ContentIdea{
		Title:           "Go generics",
		IdeaDescription: "Explain Go generics in ten minutes",
		AIPrompt:        "Write a script about Go generics",
	}
	require.NoError(t, db.SaveEntry(ctx, e, idea))
	assert.Positive(t, e.ID)
	assert.Equal(t, "telegram", e.Source)
	assert.Equal(t, e.ID, idea.EntryID)
	assert.Equal(t, "idea", idea.Status)
	assert.Equal(t, StringList(DefaultOutputTypes), idea.OutputTypes)

	ideas, err := db.ContentIdeasForEntry(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, ideas, 1)
	assert.Equal(t, "Go generics", ideas[0].Title)
	assert.Equal(t, StringList{"blog", "youtube", "linkedin", "shorts", "reels"}, ideas[0].OutputTypes)

	// A rejected idea rolls back the entry it belongs to.
	bad := &Entry{RawContent: "x", ProcessedContent: "x", ContentType: "text"}
	err = db.SaveEntry(ctx, bad, &ContentIdea{Title: "no body"})
	require.Error(t, err)

	entries, err := db.ListEntries(ctx, EntryFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFailLockPromotesPlaceholder(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	lock, err := db.AcquireLock(ctx, "sha256:abc", "document", "api")
	require.NoError(t, err)
	general, err := db.FindCategory(ctx, "General Notes", 0)
	require.NoError(t, err)

	require.NoError(t, db.FailLock(ctx, lock.EntryID, "report.pdf", "Processing failed: boom", "", general.ID))

	e, err := db.GetEntry(ctx, lock.EntryID)
	require.NoError(t, err)
	assert.False(t, e.IsLock())
	assert.Equal(t, "Processing failed: boom", e.ProcessedContent)
	assert.False(t, e.FilePath.Valid)
	assert.Equal(t, general.ID, e.CategoryID.Int64)

	// Already terminal.
	assert.ErrorIs(t, db.FailLock(ctx, lock.EntryID, "x", "y", "", 0), ErrEntryNotFound)

	next, err := db.AcquireLock(ctx, "sha256:abc", "document", "api")
	require.NoError(t, err)
	assert.Equal(t, LockDuplicate, next.State)
}

func TestListEntriesFiltersAndHidesLocks(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	clock := time.Unix(1_700_000_000, 0)
	db.SetClock(func() time.Time { return clock })

	todo, err := db.FindCategory(ctx, "to-do", 0)
	require.NoError(t, err)
	assert.Equal(t, "To-Do", todo.Name)

	for i, ct := range []string{"text", "image", "text"} {
		clock = clock.Add(time.Minute)
		e := &Entry{RawContent: "r", ProcessedContent: "p", ContentType: ct}
		if i == 2 {
			e.CategoryID = nullInt(todo.ID)
		}
		require.NoError(t, db.SaveEntry(ctx, e, nil))
	}
	_, err = db.AcquireLock(ctx, "pending-one", "video", "telegram")
	require.NoError(t, err)

	all, err := db.ListEntries(ctx, EntryFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.GreaterOrEqual(t, all[0].CreatedAt, all[1].CreatedAt)

	texts, err := db.ListEntries(ctx, EntryFilter{ContentType: "text"})
	require.NoError(t, err)
	assert.Len(t, texts, 2)

	inTodo, err := db.ListEntries(ctx, EntryFilter{CategoryID: todo.ID})
	require.NoError(t, err)
	assert.Len(t, inTodo, 1)

	page, err := db.ListEntries(ctx, EntryFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, all[1].ID, page[0].ID)

	st, err := db.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.TotalEntries)
	assert.Equal(t, 6, st.TotalCategories)
	assert.Equal(t, map[string]int{"text": 2, "image": 1}, st.EntriesByType)
}

func TestDeleteEntryRemovesIdeas(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	e := &Entry{RawContent: "r", ProcessedContent: "p", ContentType: "text"}
	require.NoError(t, db.SaveEntry(ctx, e, &ContentIdea{IdeaDescription: "p", AIPrompt: "prompt"}))

	require.NoError(t, db.DeleteEntry(ctx, e.ID))
	_, err := db.GetEntry(ctx, e.ID)
	assert.ErrorIs(t, err, ErrEntryNotFound)

	ideas, err := db.ListContentIdeas(ctx, "", 0)
	require.NoError(t, err)
	assert.Empty(t, ideas)

	assert.ErrorIs(t, db.DeleteEntry(ctx, e.ID), ErrEntryNotFound)
}

func TestCategoryCRUD(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	reading, err := db.CreateCategory(ctx, "Reading", "Books", 0)
	require.NoError(t, err)

	_, err = db.CreateCategory(ctx, "Reading", "", 0)
	assert.ErrorIs(t, err, ErrCategoryExists)

	sub, err := db.EnsureCategory(ctx, "Fiction", "Auto-created by AI", reading.ID)
	require.NoError(t, err)
	same, err := db.EnsureCategory(ctx, "fiction", "", reading.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, same.ID)

	// Same name under a different parent is a different category.
	other, err := db.EnsureCategory(ctx, "Fiction", "", 0)
	require.NoError(t, err)
	assert.NotEqual(t, sub.ID, other.ID)

	subs, err := db.Subcategories(ctx, reading.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "Fiction", subs[0].Name)

	updated, err := db.UpdateCategory(ctx, reading.ID, "Reading List", "")
	require.NoError(t, err)
	assert.Equal(t, "Reading List", updated.Name)
	assert.Equal(t, "Books", updated.Description.String)

	e := &Entry{RawContent: "r", ProcessedContent: "p", ContentType: "text", CategoryID: nullInt(reading.ID), SubcategoryID: nullInt(sub.ID)}
	require.NoError(t, db.SaveEntry(ctx, e, nil))

	require.NoError(t, db.DeleteCategory(ctx, reading.ID))
	_, err = db.GetCategory(ctx, sub.ID)
	assert.ErrorIs(t, err, ErrCategoryNotFound)

	kept, err := db.GetEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.False(t, kept.CategoryID.Valid)
	assert.False(t, kept.SubcategoryID.Valid)

	assert.ErrorIs(t, db.DeleteCategory(ctx, reading.ID), ErrCategoryNotFound)
}

func TestCatchAllCannotBeDeletedOrRenamed(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	general, err := db.FindCategory(ctx, "General Notes", 0)
	require.NoError(t, err)
	assert.True(t, general.IsCatchAll())

	assert.ErrorIs(t, db.DeleteCategory(ctx, general.ID), ErrProtectedCategory)
	_, err = db.UpdateCategory(ctx, general.ID, "Misc", "")
	assert.ErrorIs(t, err, ErrProtectedCategory)

	updated, err := db.UpdateCategory(ctx, general.ID, "General Notes", "Anything unfiled")
	require.NoError(t, err)
	assert.Equal(t, "Anything unfiled", updated.Description.String)

	// A subcategory with the same name is an ordinary category.
	todo, err := db.FindCategory(ctx, "To-Do", 0)
	require.NoError(t, err)
	sub, err := db.EnsureCategory(ctx, "General Notes", "", todo.ID)
	require.NoError(t, err)
	assert.False(t, sub.IsCatchAll())
	require.NoError(t, db.DeleteCategory(ctx, sub.ID))

	n, err := db.CountTopLevelCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestContentIdeaUpdate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	e := &Entry{RawContent: "r", ProcessedContent: "p", ContentType: "text"}
	idea := &ContentIdea{IdeaDescription: "p", AIPrompt: "prompt", OutputTypes: StringList{"blog"}}
	require.NoError(t, db.SaveEntry(ctx, e, idea))

	status := "in_progress"
	got, err := db.UpdateContentIdea(ctx, idea.ID, ContentIdeaUpdate{Status: &status, OutputTypes: []string{"youtube", "shorts"}})
	require.NoError(t, err)
	assert.Equal(t, "in_progress", got.Status)
	assert.Equal(t, "prompt", got.AIPrompt)

	filtered, err := db.ListContentIdeas(ctx, "in_progress", 10)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, StringList{"youtube", "shorts"}, filtered[0].OutputTypes)

	_, err = db.UpdateContentIdea(ctx, 999, ContentIdeaUpdate{})
	assert.ErrorIs(t, err, ErrContentIdeaNotFound)
}

func TestProjects(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	p := &Project{Name: "Blog engine", Tasks: StringList{"design", "ship"}}
	require.NoError(t, db.CreateProject(ctx, p))
	assert.Equal(t, "active", p.Status)

	got, err := db.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StringList{"design", "ship"}, got.Tasks)

	list, err := db.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = db.GetProject(ctx, 42)
	assert.ErrorIs(t, err, ErrProjectNotFound)
	assert.Error(t, db.CreateProject(ctx, &Project{}))
}

func TestConfigUpsert(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.GetConfig(ctx, "provider_order")
	assert.ErrorIs(t, err, ErrConfigNotFound)

	_, err = db.SetConfig(ctx, "provider_order", json.RawMessage(`["gemini"]`))
	require.NoError(t, err)
	_, err = db.SetConfig(ctx, "provider_order", json.RawMessage(`["ollama","gemini"]`))
	require.NoError(t, err)

	item, err := db.GetConfig(ctx, "provider_order")
	require.NoError(t, err)
	assert.JSONEq(t, `["ollama","gemini"]`, string(item.Value))

	items, err := db.ListConfig(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	_, err = db.SetConfig(ctx, "bad", json.RawMessage(`{nope`))
	assert.Error(t, err)
}

func TestRecordUsageAndSummary(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	var rec provider.UsageRecorder = db
	ts := time.Unix(1_700_000_000, 0)
	require.NoError(t, rec.RecordUsage(ctx, provider.UsageRecord{
		Timestamp: ts, Provider: "gemini", Model: "gemini-2.5-flash", Feature: provider.Categorize,
		InputTokens: 100, OutputTokens: 20, CostUSD: 0.00008,
	}))
	require.NoError(t, rec.RecordUsage(ctx, provider.UsageRecord{
		Timestamp: ts.Add(time.Second), Provider: "gemini", Model: "gemini-2.5-flash", Feature: provider.FreeFormPrompt,
		InputTokens: 10, OutputTokens: 5, Details: map[string]any{"note": "x"},
	}))
	require.NoError(t, rec.RecordUsage(ctx, provider.UsageRecord{
		Timestamp: ts.Add(2 * time.Second), Provider: "replicate", Model: "qwen/qwen3-tts", Feature: provider.SynthesizeSpeech,
		InputTokens: 50, CostUSD: 0.001,
	}))

	recent, err := db.RecentUsage(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "replicate", recent[0].Provider)
	assert.Equal(t, "process_message", recent[1].Feature)
	assert.Equal(t, "x", recent[1].Details["note"])

	summary, err := db.UsageSummary(ctx, ts)
	require.NoError(t, err)
	require.Len(t, summary, 2)
	assert.Equal(t, "gemini", summary[0].Provider)
	assert.Equal(t, 2, summary[0].Calls)
	assert.Equal(t, 110, summary[0].InputTokens)
	assert.InDelta(t, 0.00008, summary[0].CostUSD, 1e-9)
}
