package anthropic

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"nexuslog/internal/provider"
)

const Name = "anthropic"

// statusOverloaded is returned by the Messages API when capacity is short.
const statusOverloaded = 529

var DefaultModels = []string{string(anthropic.ModelClaudeHaiku4_5)}

const systemPrompt = "You are the assistant inside a personal knowledge log. Answer exactly in the format requested."

type MessagesClient interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type Config struct {
	APIKey    string
	BaseURL   string
	Models    []string
	MaxTokens int64
}

// Adapter calls the Anthropic Messages API. It covers the text and image
// capabilities; audio, video and speech are not offered.
type Adapter struct {
	provider.Unsupported

	messages  MessagesClient
	models    []string
	maxTokens int64
}

func New(cfg Config) *Adapter {
	a := newAdapter(nil, cfg)
	if strings.TrimSpace(cfg.APIKey) == "" {
		return a
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	a.messages = &client.Messages
	return a
}

// NewWithClient wires a custom Messages client.
func NewWithClient(messages MessagesClient, cfg Config) *Adapter {
	return newAdapter(messages, cfg)
}

func newAdapter(messages MessagesClient, cfg Config) *Adapter {
	a := &Adapter{messages: messages, models: cfg.Models, maxTokens: cfg.MaxTokens}
	if len(a.models) == 0 {
		a.models = DefaultModels
	}
	if a.maxTokens <= 0 {
		a.maxTokens = 4096
	}
	return a
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Configured() bool { return a.messages != nil }

func (a *Adapter) Models(provider.Capability) []string { return a.models }

// IsRetryable treats 429 and the 529 overloaded status as capacity errors.
func IsRetryable(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode == statusOverloaded
	}
	return provider.DefaultRetryPredicate(err)
}

func (a *Adapter) OCRImage(ctx context.Context, model string, m provider.Media) provider.Result {
	return a.image(ctx, model, provider.OCRPrompt, m)
}

func (a *Adapter) DescribeImage(ctx context.Context, model string, m provider.Media, prompt string) provider.Result {
	return a.image(ctx, model, provider.DescribeImagePrompt(prompt), m)
}

func (a *Adapter) Categorize(ctx context.Context, model, text string, categories []string) provider.Result {
	res := a.send(ctx, model, anthropic.NewTextBlock(provider.CategorizePrompt(text, categories)))
	return provider.CategorizationFromText(model, res)
}

func (a *Adapter) GenerateContentPrompt(ctx context.Context, model, idea string) provider.Result {
	return a.send(ctx, model, anthropic.NewTextBlock(provider.ContentPromptPrompt(idea)))
}

func (a *Adapter) Prompt(ctx context.Context, model, prompt string) provider.Result {
	return a.send(ctx, model, anthropic.NewTextBlock(prompt))
}

func (a *Adapter) image(ctx context.Context, model, prompt string, m provider.Media) provider.Result {
	mime := imageMediaType(m.MIMEType)
	if mime == "" {
		return provider.NotSupported()
	}
	return a.send(ctx, model,
		anthropic.NewImageBlockBase64(mime, base64.StdEncoding.EncodeToString(m.Data)),
		anthropic.NewTextBlock(prompt),
	)
}

func (a *Adapter) send(ctx context.Context, model string, blocks ...anthropic.ContentBlockParamUnion) provider.Result {
	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: a.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(blocks...),
		},
	})
	if err != nil {
		return provider.Failure(fmt.Errorf("anthropic API error: %w", err), IsRetryable(err))
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return provider.TextResult(model, text.String(), provider.Usage{
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	})
}

// imageMediaType maps to the media types the Messages API accepts; an empty
// input defaults to JPEG as Telegram photos are JPEG.
func imageMediaType(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "", "image/jpeg", "image/jpg":
		return "image/jpeg"
	case "image/png":
		return "image/png"
	case "image/gif":
		return "image/gif"
	case "image/webp":
		return "image/webp"
	default:
		return ""
	}
}
