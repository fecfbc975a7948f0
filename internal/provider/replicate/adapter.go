package replicate

import (
	"context"
	"encoding/json"
	"net/http"

	"nexuslog/internal/provider"
	upstream "nexuslog/internal/upstream/replicate"
)

const Name = "replicate"

const (
	DefaultTextModel        = "google/gemini-3-flash"
	DefaultWhisperModel     = "openai/whisper"
	DefaultTTSModel         = "qwen/qwen3-tts"
	DefaultVoiceDescription = "A calm, articulate British male assistant voice. Measured pace, clear enunciation, " +
		"professional and slightly warm."
)

type Runner interface {
	Configured() bool
	Run(ctx context.Context, model string, input map[string]any) (json.RawMessage, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

type Config struct {
	TextModel        string
	WhisperModel     string
	TTSModel         string
	VoiceDescription string
}

// Adapter runs hosted models on Replicate. Video transcription is not
// offered.
type Adapter struct {
	provider.Unsupported

	client Runner
	cfg    Config
}

func New(client Runner, cfg Config) *Adapter {
	if cfg.TextModel == "" {
		cfg.TextModel = DefaultTextModel
	}
	if cfg.WhisperModel == "" {
		cfg.WhisperModel = DefaultWhisperModel
	}
	if cfg.TTSModel == "" {
		cfg.TTSModel = DefaultTTSModel
	}
	if cfg.VoiceDescription == "" {
		cfg.VoiceDescription = DefaultVoiceDescription
	}
	return &Adapter{client: client, cfg: cfg}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Configured() bool {
	return a.client != nil && a.client.Configured()
}

func (a *Adapter) Models(c provider.Capability) []string {
	switch c {
	case provider.TranscribeAudio:
		return []string{a.cfg.WhisperModel}
	case provider.SynthesizeSpeech:
		return []string{a.cfg.TTSModel}
	default:
		return []string{a.cfg.TextModel}
	}
}

func (a *Adapter) TranscribeAudio(ctx context.Context, model string, m provider.Media) provider.Result {
	mime := m.MIMEType
	if mime == "" {
		mime = "audio/ogg"
	}
	return a.text(ctx, model, map[string]any{"audio": upstream.DataURI(m.Data, mime)})
}

func (a *Adapter) OCRImage(ctx context.Context, model string, m provider.Media) provider.Result {
	return a.image(ctx, model, provider.OCRPrompt, m)
}

func (a *Adapter) DescribeImage(ctx context.Context, model string, m provider.Media, prompt string) provider.Result {
	return a.image(ctx, model, provider.DescribeImagePrompt(prompt), m)
}

func (a *Adapter) SynthesizeSpeech(ctx context.Context, model, text string) provider.Result {
	out, err := a.client.Run(ctx, model, map[string]any{
		"text":              text,
		"mode":              "voice_design",
		"voice_description": a.cfg.VoiceDescription,
	})
	if err != nil {
		return failure(err)
	}
	url, err := upstream.OutputURL(out)
	if err != nil {
		return provider.Failure(err, false)
	}
	audio, err := a.client.Download(ctx, url)
	if err != nil {
		return failure(err)
	}
	// Billing is per character, so the character count goes in the input slot.
	return provider.AudioResult(model, audio, provider.Usage{InputTokens: len([]rune(text))})
}

func (a *Adapter) Categorize(ctx context.Context, model, text string, categories []string) provider.Result {
	res := a.text(ctx, model, map[string]any{"prompt": provider.CategorizePrompt(text, categories)})
	return provider.CategorizationFromText(model, res)
}

func (a *Adapter) GenerateContentPrompt(ctx context.Context, model, idea string) provider.Result {
	return a.text(ctx, model, map[string]any{"prompt": provider.ContentPromptPrompt(idea)})
}

func (a *Adapter) Prompt(ctx context.Context, model, prompt string) provider.Result {
	return a.text(ctx, model, map[string]any{"prompt": prompt})
}

func (a *Adapter) image(ctx context.Context, model, prompt string, m provider.Media) provider.Result {
	mime := m.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	return a.text(ctx, model, map[string]any{
		"prompt": prompt,
		"images": []string{upstream.DataURI(m.Data, mime)},
	})
}

func (a *Adapter) text(ctx context.Context, model string, input map[string]any) provider.Result {
	out, err := a.client.Run(ctx, model, input)
	if err != nil {
		return failure(err)
	}
	text, err := upstream.OutputText(out)
	if err != nil {
		return provider.Failure(err, false)
	}
	return provider.TextResult(model, text, provider.Usage{})
}

// IsRetryable trusts the API status for typed errors; a failed prediction
// body mentioning a quota is a hard failure.
var IsRetryable = provider.StatusRetryPredicate(http.StatusTooManyRequests)

func failure(err error) provider.Result {
	return provider.Failure(err, IsRetryable(err))
}
