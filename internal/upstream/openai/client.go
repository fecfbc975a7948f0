package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const maxErrorBody = 4096

type ObserverFunc func(endpoint string, status int, duration time.Duration)

type Option func(*Client)

func WithObserver(observer ObserverFunc) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// Client speaks the OpenAI-compatible REST surface (OpenAI, Groq,
// OpenRouter, LM Studio and friends).
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	observer   ObserverFunc
}

func New(baseURL, apiKey string, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: httpClient,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Error is a non-2xx answer. Message holds error.message from the JSON
// envelope when the vendor sent one.
type Error struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *Error) Error() string {
	detail := e.Message
	if detail == "" {
		detail = e.Body
	}
	if detail == "" {
		return fmt.Sprintf("openai-compatible request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("openai-compatible request failed with status %d: %s", e.StatusCode, detail)
}

func (e *Error) HTTPStatus() int {
	return e.StatusCode
}

type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatMessage content is a string or a []ContentPart.
type ChatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

func TextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

// ImagePart inlines data as a base64 data URI.
func ImagePart(data []byte, mimeType string) ContentPart {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	uri := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
	return ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: uri}}
}

type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Messages    []ChatMessage `json:"messages"`
}

type ChatCompletionResponse struct {
	Model        string
	Content      string
	FinishReason string
	Usage        *TokenUsage
}

type TranscriptionRequest struct {
	Model    string
	FileName string
	Audio    []byte
	// Language is an ISO-639-1 hint; empty lets the model detect it.
	Language string
	Prompt   string
}

type SpeechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format,omitempty"`
}

// Transcribe posts the audio to /audio/transcriptions. Servers that answer
// with plain text instead of JSON are accepted.
func (c *Client) Transcribe(ctx context.Context, in TranscriptionRequest) (string, error) {
	if len(in.Audio) == 0 {
		return "", errors.New("transcription audio is empty")
	}
	fileName := in.FileName
	if fileName == "" {
		fileName = "audio.ogg"
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	fields := [][2]string{{"model", in.Model}, {"language", in.Language}, {"prompt", in.Prompt}}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := form.WriteField(f[0], f[1]); err != nil {
			return "", err
		}
	}
	part, err := form.CreateFormFile("file", fileName)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(in.Audio); err != nil {
		return "", err
	}
	if err := form.Close(); err != nil {
		return "", err
	}

	data, err := c.send(ctx, "audio_transcriptions", "/audio/transcriptions", form.FormDataContentType(), &body)
	if err != nil {
		return "", err
	}
	return parseTranscript(data)
}

func (c *Client) ChatCompletion(ctx context.Context, in ChatCompletionRequest) (ChatCompletionResponse, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return ChatCompletionResponse{}, err
	}
	data, err := c.send(ctx, "chat_completions", "/chat/completions", "application/json", bytes.NewReader(payload))
	if err != nil {
		return ChatCompletionResponse{}, err
	}
	return parseChatCompletion(data)
}

// Speech returns the raw audio bytes produced by /audio/speech.
func (c *Client) Speech(ctx context.Context, in SpeechRequest) ([]byte, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	audio, err := c.send(ctx, "audio_speech", "/audio/speech", "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, errors.New("empty speech response")
	}
	return audio, nil
}

// send POSTs body to path and reports the final status to the observer under
// endpoint. Any non-2xx status becomes an *Error.
func (c *Client) send(ctx context.Context, endpoint, path, contentType string, body io.Reader) ([]byte, error) {
	started := time.Now()
	status := 0
	defer func() {
		if c.observer != nil {
			c.observer(endpoint, status, time.Since(started))
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newError(resp.StatusCode, data)
	}
	return data, nil
}

func newError(status int, body []byte) *Error {
	e := &Error{StatusCode: status, Body: strings.TrimSpace(string(body))}
	if len(e.Body) > maxErrorBody {
		e.Body = e.Body[:maxErrorBody] + "..."
	}
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		e.Message = envelope.Error.Message
	}
	return e
}

func parseTranscript(data []byte) (string, error) {
	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &parsed); err == nil {
		if text := strings.TrimSpace(parsed.Text); text != "" {
			return text, nil
		}
	}
	text := strings.Join(strings.Fields(string(data)), " ")
	if text == "" || strings.HasPrefix(text, "{") {
		return "", errors.New("transcription response has no text")
	}
	return text, nil
}

func parseChatCompletion(data []byte) (ChatCompletionResponse, error) {
	var parsed struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage *TokenUsage `json:"usage,omitempty"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return ChatCompletionResponse{}, fmt.Errorf("invalid chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return ChatCompletionResponse{}, errors.New("chat completion has no content")
	}
	return ChatCompletionResponse{
		Model:        parsed.Model,
		Content:      parsed.Choices[0].Message.Content,
		FinishReason: parsed.Choices[0].FinishReason,
		Usage:        parsed.Usage,
	}, nil
}
