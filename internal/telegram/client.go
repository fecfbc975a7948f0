package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.telegram.org"

	// MaxMessageLength leaves headroom under the Bot API limit of 4096.
	MaxMessageLength = 4000
	maxDownloadBytes = 50 << 20
)

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

// Client calls the Bot API of one bot.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	observer   ObserverFunc
}

// Error is a Bot API failure. Telegram reports most errors as ok=false with
// a description, sometimes with a 200 status.
type Error struct {
	StatusCode  int
	Description string
	Body        string
}

func (e *Error) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("telegram request failed with status %d: %s", e.StatusCode, e.Description)
	}
	return fmt.Sprintf("telegram request failed with status %d", e.StatusCode)
}

func (e *Error) HTTPStatus() int {
	return e.StatusCode
}

func New(token string, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		baseURL:    DefaultBaseURL,
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *Client) Configured() bool {
	return c != nil && c.token != ""
}

// SendMessage delivers text, split into several messages when it exceeds
// MaxMessageLength.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	for _, chunk := range SplitMessage(text, MaxMessageLength) {
		in := map[string]any{"chat_id": chatID, "text": chunk}
		if err := c.call(ctx, "sendMessage", in, nil); err != nil {
			return err
		}
	}
	return nil
}

// SplitMessage cuts text into chunks of at most limit runes, preferring to
// break after a newline.
func SplitMessage(text string, limit int) []string {
	r := []rune(text)
	if len(r) <= limit {
		return []string{text}
	}
	var chunks []string
	for len(r) > limit {
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
			if r[i] == '\n' {
				cut = i + 1
				break
			}
		}
		chunks = append(chunks, string(r[:cut]))
		r = r[cut:]
	}
	if len(r) > 0 {
		chunks = append(chunks, string(r))
	}
	return chunks
}

func (c *Client) GetFile(ctx context.Context, fileID string) (File, error) {
	var f File
	if err := c.call(ctx, "getFile", map[string]any{"file_id": fileID}, &f); err != nil {
		return File{}, err
	}
	if f.FilePath == "" {
		return File{}, errors.New("telegram returned no file path")
	}
	return f, nil
}

// Download fetches a file previously resolved with GetFile.
func (c *Client) Download(ctx context.Context, filePath string) ([]byte, error) {
	started := time.Now()
	statusCode := 0
	defer func() { c.observe("file_download", statusCode, time.Since(started)) }()

	endpoint := c.baseURL + "/file/bot" + c.token + "/" + strings.TrimLeft(filePath, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	statusCode = resp.StatusCode

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{StatusCode: resp.StatusCode, Body: truncateBody(string(body))}
	}
	if len(body) > maxDownloadBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", maxDownloadBytes)
	}
	return body, nil
}

// FetchFile resolves and downloads fileID in one step.
func (c *Client) FetchFile(ctx context.Context, fileID string) ([]byte, error) {
	f, err := c.GetFile(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	data, err := c.Download(ctx, f.FilePath)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	return data, nil
}

// SendVoice uploads audio as a voice message.
func (c *Client) SendVoice(ctx context.Context, chatID int64, audio []byte, caption string) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("chat_id", strconv.FormatInt(chatID, 10))
	if caption != "" {
		_ = mw.WriteField("caption", caption)
	}
	part, err := mw.CreateFormFile("voice", "confirmation.ogg")
	if err != nil {
		return err
	}
	if _, err := part.Write(audio); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}
	return c.send(ctx, "sendVoice", mw.FormDataContentType(), &body, nil)
}

type WebhookInfo struct {
	URL                  string `json:"url"`
	HasCustomCertificate bool   `json:"has_custom_certificate"`
	PendingUpdateCount   int    `json:"pending_update_count"`
	LastErrorDate        int64  `json:"last_error_date,omitempty"`
	LastErrorMessage     string `json:"last_error_message,omitempty"`
	MaxConnections       int    `json:"max_connections,omitempty"`
}

func (c *Client) SetWebhook(ctx context.Context, url, secretToken string) error {
	in := map[string]any{"url": url, "allowed_updates": []string{"message"}}
	if secretToken != "" {
		in["secret_token"] = secretToken
	}
	return c.call(ctx, "setWebhook", in, nil)
}

func (c *Client) WebhookInfo(ctx context.Context) (WebhookInfo, error) {
	var info WebhookInfo
	err := c.call(ctx, "getWebhookInfo", map[string]any{}, &info)
	return info, err
}

func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.call(ctx, "deleteWebhook", map[string]any{}, nil)
}

func (c *Client) call(ctx context.Context, method string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return c.send(ctx, method, "application/json", bytes.NewReader(payload), out)
}

func (c *Client) send(ctx context.Context, method, contentType string, body io.Reader, out any) error {
	if !c.Configured() {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	started := time.Now()
	statusCode := 0
	defer func() { c.observe(method, statusCode, time.Since(started)) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/bot"+c.token+"/"+method, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	statusCode = resp.StatusCode

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var envelope struct {
		OK          bool            `json:"ok"`
		Result      json.RawMessage `json:"result"`
		Description string          `json:"description"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &Error{StatusCode: resp.StatusCode, Body: truncateBody(string(raw))}
		}
		return fmt.Errorf("invalid telegram response: %w", err)
	}
	if !envelope.OK || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{StatusCode: resp.StatusCode, Description: envelope.Description, Body: truncateBody(string(raw))}
	}
	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("invalid telegram result: %w", err)
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
