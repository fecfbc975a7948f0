package openaicompat

import (
	"context"
	"strings"

	"nexuslog/internal/provider"
	"nexuslog/internal/upstream/openai"
)

const Name = "openai"

type Client interface {
	Transcribe(ctx context.Context, req openai.TranscriptionRequest) (string, error)
	ChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	Speech(ctx context.Context, req openai.SpeechRequest) ([]byte, error)
}

type Config struct {
	APIKey             string
	ChatModels         []string
	TranscriptionModel string
	TTSModel           string
	Voice              string
}

var _ Client = (*openai.Client)(nil)

// Adapter targets any OpenAI-compatible endpoint. Video transcription is not
// offered by this API family.
type Adapter struct {
	provider.Unsupported

	client Client
	cfg    Config
}

func New(client Client, cfg Config) *Adapter {
	if len(cfg.ChatModels) == 0 {
		cfg.ChatModels = []string{"gpt-4o-mini"}
	}
	if cfg.TranscriptionModel == "" {
		cfg.TranscriptionModel = "whisper-1"
	}
	if cfg.TTSModel == "" {
		cfg.TTSModel = "tts-1"
	}
	if cfg.Voice == "" {
		cfg.Voice = "onyx"
	}
	return &Adapter{client: client, cfg: cfg}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Configured() bool {
	return a.client != nil && strings.TrimSpace(a.cfg.APIKey) != ""
}

func (a *Adapter) Models(c provider.Capability) []string {
	switch c {
	case provider.TranscribeAudio:
		return []string{a.cfg.TranscriptionModel}
	case provider.SynthesizeSpeech:
		return []string{a.cfg.TTSModel}
	default:
		return a.cfg.ChatModels
	}
}

func (a *Adapter) TranscribeAudio(ctx context.Context, model string, m provider.Media) provider.Result {
	text, err := a.client.Transcribe(ctx, openai.TranscriptionRequest{
		Model:    model,
		FileName: m.FileName,
		Audio:    m.Data,
	})
	if err != nil {
		return failure(err)
	}
	return provider.TextResult(model, text, provider.Usage{})
}

func (a *Adapter) OCRImage(ctx context.Context, model string, m provider.Media) provider.Result {
	return a.vision(ctx, model, provider.OCRPrompt, m)
}

func (a *Adapter) DescribeImage(ctx context.Context, model string, m provider.Media, prompt string) provider.Result {
	return a.vision(ctx, model, provider.DescribeImagePrompt(prompt), m)
}

func (a *Adapter) SynthesizeSpeech(ctx context.Context, model, text string) provider.Result {
	audio, err := a.client.Speech(ctx, openai.SpeechRequest{
		Model:          model,
		Input:          text,
		Voice:          a.cfg.Voice,
		ResponseFormat: "mp3",
	})
	if err != nil {
		return failure(err)
	}
	return provider.AudioResult(model, audio, provider.Usage{InputTokens: len(text)})
}

func (a *Adapter) Categorize(ctx context.Context, model, text string, categories []string) provider.Result {
	res := a.complete(ctx, model, provider.CategorizePrompt(text, categories))
	return provider.CategorizationFromText(model, res)
}

func (a *Adapter) GenerateContentPrompt(ctx context.Context, model, idea string) provider.Result {
	return a.complete(ctx, model, provider.ContentPromptPrompt(idea))
}

func (a *Adapter) Prompt(ctx context.Context, model, prompt string) provider.Result {
	return a.complete(ctx, model, prompt)
}

func (a *Adapter) vision(ctx context.Context, model, prompt string, m provider.Media) provider.Result {
	return a.complete(ctx, model, []openai.ContentPart{
		openai.TextPart(prompt),
		openai.ImagePart(m.Data, m.MIMEType),
	})
}

func (a *Adapter) complete(ctx context.Context, model string, content any) provider.Result {
	resp, err := a.client.ChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: 0.2,
		Messages:    []openai.ChatMessage{{Role: "user", Content: content}},
	})
	if err != nil {
		return failure(err)
	}
	var usage provider.Usage
	if resp.Usage != nil {
		usage = provider.Usage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens}
	}
	return provider.TextResult(model, resp.Content, usage)
}

func failure(err error) provider.Result {
	return provider.Failure(err, provider.DefaultRetryPredicate(err))
}
