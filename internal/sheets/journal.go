package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	PostIdeasRange    = "'Post Ideas'!A:D"
	tradeJournalSheet = "'Trade Journal'"
	tradeKeyRange     = tradeJournalSheet + "!A:B"

	commentaryColumn = "L"
	lessonsColumn    = "M"
	// Column L is the 12th column; rows are padded so commentary and
	// lessons land there on append.
	commentaryIndex = 11
)

// AppendContentIdea mirrors a content idea as
// [timestamp, description, prompt, output types].
func (c *Client) AppendContentIdea(ctx context.Context, description, prompt string, outputTypes []string) error {
	types := strings.Join(outputTypes, ", ")
	if types == "" {
		types = "Not specified"
	}
	row := []any{c.now().Format("2006-01-02 15:04:05"), description, prompt, types}
	if err := c.AppendRow(ctx, PostIdeasRange, row); err != nil {
		return fmt.Errorf("append content idea: %w", err)
	}
	return nil
}

type TradeEntry struct {
	Date        string
	StockSymbol string
	Commentary  string
	Lessons     string
}

type TradeResult struct {
	Row     int
	Updated bool
	Message string
}

// LogTradeJournal updates the commentary and lessons of the row keyed by
// date and symbol, or appends a new row when there is none.
func (c *Client) LogTradeJournal(ctx context.Context, t TradeEntry) (TradeResult, error) {
	date := strings.TrimSpace(t.Date)
	symbol := strings.ToUpper(strings.TrimSpace(t.StockSymbol))
	if date == "" || symbol == "" {
		return TradeResult{}, errors.New("trade journal needs date and stock symbol")
	}

	row, err := c.FindRow(ctx, tradeKeyRange, date, symbol)
	if err != nil {
		return TradeResult{}, fmt.Errorf("find trade row: %w", err)
	}

	if row > 0 {
		cell := fmt.Sprintf("%s!%s%d", tradeJournalSheet, commentaryColumn, row)
		if err := c.UpdateCell(ctx, cell, t.Commentary); err != nil {
			return TradeResult{}, fmt.Errorf("update commentary: %w", err)
		}
		if strings.TrimSpace(t.Lessons) != "" {
			cell = fmt.Sprintf("%s!%s%d", tradeJournalSheet, lessonsColumn, row)
			if err := c.UpdateCell(ctx, cell, t.Lessons); err != nil {
				return TradeResult{}, fmt.Errorf("update lessons: %w", err)
			}
		}
		return TradeResult{
			Row:     row,
			Updated: true,
			Message: fmt.Sprintf("Updated %s on %s (row %d)", symbol, date, row),
		}, nil
	}

	values := make([]any, commentaryIndex+2)
	for i := range values {
		values[i] = ""
	}
	values[0] = date
	values[1] = symbol
	values[commentaryIndex] = t.Commentary
	values[commentaryIndex+1] = t.Lessons
	if err := c.AppendRow(ctx, tradeJournalSheet+"!A:M", values); err != nil {
		return TradeResult{}, fmt.Errorf("append trade row: %w", err)
	}
	return TradeResult{Message: fmt.Sprintf("Added new row for %s on %s", symbol, date)}, nil
}
