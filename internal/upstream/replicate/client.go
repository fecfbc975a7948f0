package replicate

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.replicate.com/v1"

type ObserverFunc func(endpoint string, status int, duration time.Duration)

type Option func(*Client)

type Client struct {
	baseURL      string
	token        string
	httpClient   *http.Client
	observer     ObserverFunc
	pollInterval time.Duration
}

type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("replicate request failed with status %d: %s", e.StatusCode, e.Body)
}

func (e *Error) HTTPStatus() int {
	return e.StatusCode
}

// PredictionError is a prediction that finished in the failed or canceled
// state.
type PredictionError struct {
	ID      string
	Status  string
	Message string
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("prediction %s %s: %s", e.ID, e.Status, e.Message)
}

type Prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
	Metrics struct {
		PredictTime float64 `json:"predict_time"`
	} `json:"metrics"`
}

func (p Prediction) terminal() bool {
	switch p.Status {
	case "succeeded", "failed", "canceled":
		return true
	}
	return false
}

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

func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

func New(token string, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		baseURL:      DefaultBaseURL,
		token:        strings.TrimSpace(token),
		httpClient:   httpClient,
		pollInterval: time.Second,
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

// Run creates a prediction and waits until it reaches a terminal state.
// model is either "owner/name" (official model) or "owner/name:version".
func (c *Client) Run(ctx context.Context, model string, input map[string]any) (json.RawMessage, error) {
	pred, err := c.create(ctx, model, input)
	if err != nil {
		return nil, err
	}
	for !pred.terminal() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
		pred, err = c.get(ctx, pred)
		if err != nil {
			return nil, err
		}
	}
	if pred.Status != "succeeded" {
		return nil, &PredictionError{ID: pred.ID, Status: pred.Status, Message: fmt.Sprint(pred.Error)}
	}
	return pred.Output, nil
}

func (c *Client) create(ctx context.Context, model string, input map[string]any) (Prediction, error) {
	body := map[string]any{"input": input}
	endpoint := c.baseURL + "/models/" + model + "/predictions"
	if _, version, ok := strings.Cut(model, ":"); ok {
		body["version"] = version
		endpoint = c.baseURL + "/predictions"
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Prediction{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Prediction{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "wait")
	return c.doPrediction(req, "predictions_create")
}

func (c *Client) get(ctx context.Context, pred Prediction) (Prediction, error) {
	endpoint := pred.URLs.Get
	if endpoint == "" {
		endpoint = c.baseURL + "/predictions/" + pred.ID
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Prediction{}, err
	}
	return c.doPrediction(req, "predictions_get")
}

func (c *Client) doPrediction(req *http.Request, endpoint string) (Prediction, error) {
	started := time.Now()
	statusCode := 0
	defer func() { c.observe(endpoint, statusCode, time.Since(started)) }()

	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Prediction{}, err
	}
	defer resp.Body.Close()
	statusCode = resp.StatusCode

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Prediction{}, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Prediction{}, &Error{StatusCode: resp.StatusCode, Body: truncateBody(string(data))}
	}
	var pred Prediction
	if err := json.Unmarshal(data, &pred); err != nil {
		return Prediction{}, fmt.Errorf("invalid prediction response: %w", err)
	}
	return pred, nil
}

// Download fetches an output file URL.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	started := time.Now()
	statusCode := 0
	defer func() { c.observe("download", statusCode, time.Since(started)) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	statusCode = resp.StatusCode
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &Error{StatusCode: resp.StatusCode, Body: truncateBody(string(body))}
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) observe(endpoint string, status int, duration time.Duration) {
	if c.observer != nil {
		c.observer(endpoint, status, duration)
	}
}

// DataURI inlines a file as a data URI input.
func DataURI(data []byte, mimeType string) string {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// OutputText flattens the common output shapes: a string, a list of
// streamed string chunks, or an object with a transcription or text field.
func OutputText(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", errors.New("empty prediction output")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var chunks []string
	if err := json.Unmarshal(raw, &chunks); err == nil {
		return strings.Join(chunks, ""), nil
	}
	var obj struct {
		Transcription string `json:"transcription"`
		Text          string `json:"text"`
		Output        string `json:"output"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		switch {
		case obj.Transcription != "":
			return obj.Transcription, nil
		case obj.Text != "":
			return obj.Text, nil
		case obj.Output != "":
			return obj.Output, nil
		}
	}
	return "", fmt.Errorf("unrecognized prediction output: %s", truncateBody(string(raw)))
}

// OutputURL returns the first URL of a file output.
func OutputURL(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return list[0], nil
	}
	return "", fmt.Errorf("prediction output is not a file url: %s", truncateBody(string(raw)))
}

func truncateBody(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 4096 {
		return s
	}
	return s[:4096] + "..."
}
