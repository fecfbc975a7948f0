package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type ObserverFunc func(endpoint string, status int, duration time.Duration)

type Option func(*Client)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	observer   ObserverFunc
}

// Error is a non-200 answer. Status carries the google.rpc status string
// such as RESOURCE_EXHAUSTED when the body could be decoded.
type Error struct {
	StatusCode int
	Status     string
	Message    string
	Body       string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gemini request failed with status %d (%s): %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("gemini request failed with status %d", e.StatusCode)
}

func (e *Error) HTTPStatus() int {
	return e.StatusCode
}

type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

func TextPart(text string) Part {
	return Part{Text: text}
}

func BlobPart(data []byte, mimeType string) Part {
	return Part{InlineData: &InlineData{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(data)}}
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

type GenerationConfig struct {
	Temperature        *float64      `json:"temperature,omitempty"`
	MaxOutputTokens    int           `json:"maxOutputTokens,omitempty"`
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *SpeechConfig `json:"speechConfig,omitempty"`
}

type SpeechConfig struct {
	VoiceConfig struct {
		PrebuiltVoiceConfig struct {
			VoiceName string `json:"voiceName"`
		} `json:"prebuiltVoiceConfig"`
	} `json:"voiceConfig"`
}

type GenerateRequest struct {
	Contents         []Content         `json:"contents"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type GenerateResponse struct {
	Text  string
	Audio []byte
	// AudioMIMEType is the mime type of the inline audio part, e.g.
	// "audio/L16;codec=pcm;rate=24000".
	AudioMIMEType string
	Usage         UsageMetadata
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

func New(apiKey string, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		baseURL:    DefaultBaseURL,
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

func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

// Generate calls models/{model}:generateContent.
func (c *Client) Generate(ctx context.Context, model string, reqPayload GenerateRequest) (GenerateResponse, error) {
	started := time.Now()
	statusCode := 0
	defer func() { c.observe("generate_content", statusCode, time.Since(started)) }()

	payload, err := json.Marshal(reqPayload)
	if err != nil {
		return GenerateResponse{}, err
	}

	endpoint := c.baseURL + "/models/" + url.PathEscape(model) + ":generateContent"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return GenerateResponse{}, err
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return GenerateResponse{}, err
	}
	defer resp.Body.Close()
	statusCode = resp.StatusCode

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return GenerateResponse{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return GenerateResponse{}, parseError(resp.StatusCode, body)
	}
	return parseGenerate(body)
}

func (c *Client) observe(endpoint string, status int, duration time.Duration) {
	if c.observer != nil {
		c.observer(endpoint, status, duration)
	}
}

func parseError(status int, body []byte) *Error {
	e := &Error{StatusCode: status, Body: truncateBody(string(body))}
	var parsed struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		e.Status = parsed.Error.Status
		e.Message = parsed.Error.Message
	}
	return e
}

func parseGenerate(data []byte) (GenerateResponse, error) {
	var parsed struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text       string `json:"text"`
					InlineData *struct {
						MimeType string `json:"mimeType"`
						Data     string `json:"data"`
					} `json:"inlineData"`
				} `json:"parts"`
			} `json:"content"`
			FinishReason string `json:"finishReason"`
		} `json:"candidates"`
		PromptFeedback *struct {
			BlockReason string `json:"blockReason"`
		} `json:"promptFeedback"`
		UsageMetadata UsageMetadata `json:"usageMetadata"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return GenerateResponse{}, fmt.Errorf("invalid generate response: %w", err)
	}
	if len(parsed.Candidates) == 0 {
		if parsed.PromptFeedback != nil && parsed.PromptFeedback.BlockReason != "" {
			return GenerateResponse{}, fmt.Errorf("prompt blocked: %s", parsed.PromptFeedback.BlockReason)
		}
		return GenerateResponse{}, fmt.Errorf("missing candidates")
	}

	out := GenerateResponse{Usage: parsed.UsageMetadata}
	var text strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
		if part.InlineData != nil && out.Audio == nil {
			raw, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return GenerateResponse{}, fmt.Errorf("invalid inline data: %w", err)
			}
			out.Audio = raw
			out.AudioMIMEType = part.InlineData.MimeType
		}
	}
	out.Text = text.String()
	return out, nil
}

// WAV wraps 16-bit little-endian mono PCM in a RIFF header so chat clients
// can play it.
func WAV(pcm []byte, sampleRate int) []byte {
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	const (
		channels      = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVEfmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// SampleRate reads the rate parameter from an "audio/L16;rate=24000" mime
// type, returning 0 when absent.
func SampleRate(mimeType string) int {
	for _, param := range strings.Split(mimeType, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(key, "rate") {
			continue
		}
		var rate int
		if _, err := fmt.Sscanf(value, "%d", &rate); err == nil {
			return rate
		}
	}
	return 0
}

func truncateBody(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 4096 {
		return s
	}
	return s[:4096] + "..."
}
