package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"nexuslog/internal/extractor"
	"nexuslog/internal/provider"
)

const (
	IntentNote         = "note"
	IntentTradeJournal = "trade_journal"

	UntitledEntry  = "Untitled Entry"
	emptyInputText = "No content to process"
	emptyInputName = "Empty Input"

	maxContextFallback  = 500
	maxResponseFallback = 1000
)

// DefaultCategories are always offered to the model, after the stored ones.
var DefaultCategories = []string{"Content Ideas", "VibeCoding Projects", "Stock Trading", "To-Do", "To Learn", provider.CatchAllCategory}

type Prompter interface {
	Prompt(ctx context.Context, prompt string) string
}

// Item is one log entry proposed by the model. A single message can yield
// several, e.g. "add X to todo and Y as a content idea".
type Item struct {
	Intent           string `json:"intent"`
	Date             string `json:"date"`
	StockSymbol      string `json:"stock_symbol"`
	Title            string `json:"title"`
	ProcessedContent string `json:"processed_content"`
	Category         string `json:"category"`
	Subcategory      string `json:"subcategory"`
	IsContentIdea    bool   `json:"is_content_idea"`
}

// IsTrade reports whether the item should be mirrored to the trade journal.
func (i Item) IsTrade() bool {
	return i.Intent == IntentTradeJournal
}

// UnmarshalJSON tolerates models that answer "true" instead of true.
func (i *Item) UnmarshalJSON(b []byte) error {
	type plain Item
	aux := struct {
		*plain
		IsContentIdea any `json:"is_content_idea"`
	}{plain: (*plain)(i)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	switch v := aux.IsContentIdea.(type) {
	case bool:
		i.IsContentIdea = v
	case string:
		v = strings.ToLower(strings.TrimSpace(v))
		i.IsContentIdea = v == "true" || v == "yes"
	default:
		i.IsContentIdea = false
	}
	return nil
}

type Service struct {
	prompter Prompter
	timeout  time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

func New(prompter Prompter, timeout time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		prompter: prompter,
		timeout:  timeout,
		now:      time.Now,
		logger:   logger,
	}
}

// Classify turns extracted content into one or more items. It never fails;
// an unusable model answer degrades to a single catch-all item.
func (s *Service) Classify(ctx context.Context, res extractor.Result, categories []string) []Item {
	fullContext := BuildContext(res)
	if strings.TrimSpace(fullContext) == "" {
		return []Item{{
			Intent:           IntentNote,
			Title:            emptyInputName,
			ProcessedContent: emptyInputText,
			Category:         provider.CatchAllCategory,
		}}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	prompt := SmartLoggerPrompt(fullContext, MergeCategories(categories), s.now())
	items, err := ParseItems(s.prompter.Prompt(ctx, prompt), fullContext)
	if err != nil {
		s.logger.Warn("classification response unusable, using default item", "error", err)
	}
	return items
}

// BuildContext merges every extracted part into the labeled text block the
// model classifies.
func BuildContext(res extractor.Result) string {
	var parts []string
	if res.Text != "" {
		parts = append(parts, "USER MESSAGE: "+res.Text)
	}
	if res.Transcription != "" {
		parts = append(parts, "VOICE NOTE (transcribed): "+res.Transcription)
	}
	for _, yt := range res.YouTube {
		parts = append(parts, fmt.Sprintf("YOUTUBE VIDEO:\n- Title: %s\n- Channel: %s\n- Duration: %d minutes\n- URL: %s",
			orUnknown(yt.Title), orUnknown(yt.Channel), yt.DurationSeconds/60, yt.URL))
	}
	for _, v := range res.Videos {
		parts = append(parts, fmt.Sprintf("VIDEO (%s):\n- Title: %s\n- Duration: %d minutes\n- URL: %s",
			orUnknown(v.Platform), orUnknown(v.Title), v.DurationSeconds/60, v.URL))
	}
	for _, p := range res.Pages {
		parts = append(parts, fmt.Sprintf("WEB PAGE:\n- URL: %s\n- Title: %s", p.URL, orUnknown(p.Title)))
	}
	if res.ImageAnalysis != "" {
		parts = append(parts, "IMAGE: "+res.ImageAnalysis)
	}
	for _, a := range res.ImageURLAnalyses {
		parts = append(parts, "IMAGE FROM URL ANALYSIS: "+a.Analysis)
	}
	if res.Reply != nil {
		text := strings.TrimSpace(res.Reply.Text)
		if text == "" {
			text = "[media content]"
		}
		parts = append(parts, "REPLYING TO MESSAGE: "+text)
	}
	return strings.Join(parts, "\n\n")
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}

// MergeCategories appends the defaults to the stored names, dropping
// blanks and case-insensitive duplicates.
func MergeCategories(stored []string) []string {
	all := append(append([]string(nil), stored...), DefaultCategories...)
	seen := make(map[string]struct{}, len(all))
	out := make([]string, 0, len(all))
	for _, name := range all {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}
	return out
}

func SmartLoggerPrompt(fullContext string, categories []string, now time.Time) string {
	return fmt.Sprintf(`You are NexusLog Smart Logger. Analyze the input and respond in JSON.

INPUT CONTENT:
%s

INSTRUCTIONS:
1. **NO SUMMARIZATION**: Do not summarize articles, videos, or external content.
2. **Text/Voice Notes**: Correct grammar, spelling, and formatting ONLY. Retain the original message length, tone, and details.
3. **Media/Links**: detailed log entry with the Title and Metadata. Do not hallucinate content you don't see.
4. **Multiple items**: If the message asks for several separate things, return one item per thing.

**SPECIAL HANDLING**:
- **Content Ideas**: If the input sounds like a blog post, video idea, social media post, or business idea:
    - Set "is_content_idea" to true.
    - Set "category" to "Content Ideas".
- **Trading Journal**: If the input mentions "Trading Journal", "Trade", "Sold", "Bought" with a stock symbol (e.g., AAPL, TSLA) and/or date:
    - Set "intent" to "trade_journal".
    - Extract "date" (format: M/D/YYYY, today is %s).
    - Extract "stock_symbol" (Ticker).
    - Content should be the commentary/lessons.
- **YouTube Education**: If a YouTube video is a tutorial, how-to, or educational, categorize as "To Learn" with subcategory "Videos". Articles to read later go to "To Learn" with subcategory "Reading List".

CATEGORIES: %s

Respond ONLY with valid JSON:
{
  "items": [
    {
      "intent": "note" | "trade_journal",
      "date": "M/D/YYYY",
      "stock_symbol": "SYMBOL",
      "title": "<Short descriptive title>",
      "processed_content": "<The corrected text OR metadata description>",
      "category": "<category>",
      "subcategory": "<subcategory (optional)>",
      "is_content_idea": true/false
    }
  ]
}`, fullContext, SheetDate(now), strings.Join(categories, ", "))
}

// SheetDate formats t the way the trade journal stores dates (M/D/YYYY).
func SheetDate(t time.Time) string {
	return fmt.Sprintf("%d/%d/%d", int(t.Month()), t.Day(), t.Year())
}

// ParseItems decodes a model answer. The returned items are always usable;
// a non-nil error only explains why the defaults were substituted.
func ParseItems(raw, fullContext string) ([]Item, error) {
	fallback := Item{
		Intent:           IntentNote,
		Title:            UntitledEntry,
		ProcessedContent: truncate(fullContext, maxContextFallback),
		Category:         provider.CatchAllCategory,
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []Item{fallback}, errors.New("empty classification response")
	}

	body := provider.StripCodeFences(raw)
	var envelope struct {
		Items *[]json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		fallback.ProcessedContent = truncate(raw, maxResponseFallback)
		return []Item{fallback}, fmt.Errorf("decode classification response: %w", err)
	}

	var rawItems []json.RawMessage
	if envelope.Items != nil {
		rawItems = *envelope.Items
	} else {
		rawItems = []json.RawMessage{json.RawMessage(body)}
	}

	items := make([]Item, 0, len(rawItems))
	for _, r := range rawItems {
		var it Item
		if err := json.Unmarshal(r, &it); err != nil {
			continue
		}
		items = append(items, normalize(it, fallback))
	}
	if len(items) == 0 {
		return []Item{fallback}, errors.New("classification response has no items")
	}
	return items, nil
}

func normalize(it Item, fallback Item) Item {
	it.Intent = strings.ToLower(strings.TrimSpace(it.Intent))
	if it.Intent != IntentTradeJournal {
		it.Intent = IntentNote
	}
	it.Title = strings.TrimSpace(it.Title)
	if it.Title == "" {
		it.Title = fallback.Title
	}
	if strings.TrimSpace(it.ProcessedContent) == "" {
		it.ProcessedContent = fallback.ProcessedContent
	}
	it.Category = strings.TrimSpace(it.Category)
	if it.Category == "" {
		it.Category = provider.CatchAllCategory
	}
	it.Subcategory = strings.TrimSpace(it.Subcategory)
	switch strings.ToLower(it.Subcategory) {
	case "null", "none", "n/a":
		it.Subcategory = ""
	}
	it.Date = strings.TrimSpace(it.Date)
	it.StockSymbol = strings.ToUpper(strings.TrimSpace(it.StockSymbol))
	if strings.EqualFold(it.Date, "null") {
		it.Date = ""
	}
	if strings.EqualFold(it.StockSymbol, "null") {
		it.StockSymbol = ""
	}
	return it
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
