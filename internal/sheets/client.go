package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultBaseURL = "https://sheets.googleapis.com/v4/spreadsheets"

type ObserverFunc func(endpoint string, status int, duration time.Duration)

type Option func(*Client)

func WithObserver(observer ObserverFunc) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if strings.TrimSpace(baseURL) != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
		c.tokens.now = now
	}
}

// Client talks to the values endpoints of one spreadsheet.
type Client struct {
	baseURL    string
	sheetID    string
	httpClient *http.Client
	tokens     *tokenSource
	observer   ObserverFunc
	now        func() time.Time
}

type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("sheets request failed with status %d", e.StatusCode)
}

func (e *Error) HTTPStatus() int {
	return e.StatusCode
}

func New(sheetID string, account ServiceAccount, httpClient *http.Client, opts ...Option) (*Client, error) {
	if strings.TrimSpace(sheetID) == "" {
		return nil, errors.New("GOOGLE_SHEET_ID is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	tokens, err := newTokenSource(account, httpClient)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:    DefaultBaseURL,
		sheetID:    strings.TrimSpace(sheetID),
		httpClient: httpClient,
		tokens:     tokens,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// AppendRow adds one row after the last row of the table found in rng.
func (c *Client) AppendRow(ctx context.Context, rng string, values []any) error {
	q := url.Values{"valueInputOption": {"RAW"}, "insertDataOption": {"INSERT_ROWS"}}
	endpoint := c.valuesURL(rng) + ":append?" + q.Encode()
	return c.do(ctx, "values_append", http.MethodPost, endpoint, map[string]any{"values": [][]any{values}}, nil)
}

// GetValues returns the cells of rng as strings, row by row.
func (c *Client) GetValues(ctx context.Context, rng string) ([][]string, error) {
	var parsed struct {
		Values [][]any `json:"values"`
	}
	if err := c.do(ctx, "values_get", http.MethodGet, c.valuesURL(rng), nil, &parsed); err != nil {
		return nil, err
	}
	rows := make([][]string, len(parsed.Values))
	for i, row := range parsed.Values {
		rows[i] = make([]string, len(row))
		for j, cell := range row {
			if cell != nil {
				rows[i][j] = fmt.Sprint(cell)
			}
		}
	}
	return rows, nil
}

// FindRow returns the 1-based sheet row whose leading cells equal want
// (trimmed, case-insensitive), or 0. rng must start at row 1, e.g.
// "'Trade Journal'!A:B".
func (c *Client) FindRow(ctx context.Context, rng string, want ...string) (int, error) {
	rows, err := c.GetValues(ctx, rng)
	if err != nil {
		return 0, err
	}
	for i, row := range rows {
		if rowMatches(row, want) {
			return i + 1, nil
		}
	}
	return 0, nil
}

func rowMatches(row, want []string) bool {
	if len(row) < len(want) {
		return false
	}
	for i, w := range want {
		if !strings.EqualFold(strings.TrimSpace(row[i]), strings.TrimSpace(w)) {
			return false
		}
	}
	return true
}

// UpdateCell overwrites a single cell such as "'Trade Journal'!L5".
func (c *Client) UpdateCell(ctx context.Context, cell string, value any) error {
	q := url.Values{"valueInputOption": {"RAW"}}
	endpoint := c.valuesURL(cell) + "?" + q.Encode()
	body := map[string]any{"range": cell, "values": [][]any{{value}}}
	return c.do(ctx, "values_update", http.MethodPut, endpoint, body, nil)
}

func (c *Client) valuesURL(rng string) string {
	return c.baseURL + "/" + url.PathEscape(c.sheetID) + "/values/" + url.PathEscape(rng)
}

func (c *Client) do(ctx context.Context, endpoint, method, target string, in, out any) error {
	started := time.Now()
	statusCode := 0
	defer func() { c.observe(endpoint, statusCode, time.Since(started)) }()

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("sheets auth: %w", err)
	}

	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	statusCode = resp.StatusCode

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{StatusCode: resp.StatusCode, Body: truncateBody(string(body))}
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("invalid sheets response: %w", err)
		}
	}
	return nil
}

func (c *Client) observe(endpoint string, status int, duration time.Duration) {
	if c.observer != nil {
		c.observer(endpoint, status, duration)
	}
}

func truncateBody(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 4096 {
		return s
	}
	return s[:4096] + "..."
}
