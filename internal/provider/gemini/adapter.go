package gemini

import (
	"context"
	"errors"
	"net/http"

	"nexuslog/internal/provider"
	upstream "nexuslog/internal/upstream/gemini"
)

const Name = "gemini"

var DefaultModels = []string{
	"gemini-3-flash-preview",
	"gemini-2.5-flash",
	"gemini-2.5-flash-preview-09-2025",
}

const (
	DefaultTTSModel = "gemini-2.5-flash-preview-tts"
	DefaultVoice    = "Charon"
	temperature     = 0.2
	maxOutputTokens = 8192
)

type Generator interface {
	Configured() bool
	Generate(ctx context.Context, model string, req upstream.GenerateRequest) (upstream.GenerateResponse, error)
}

type Config struct {
	Models   []string
	TTSModel string
	Voice    string
}

// Adapter serves every capability through generateContent, escalating over
// the configured model variants on quota errors.
type Adapter struct {
	client   Generator
	models   []string
	ttsModel string
	voice    string
}

func New(client Generator, cfg Config) *Adapter {
	a := &Adapter{
		client:   client,
		models:   cfg.Models,
		ttsModel: cfg.TTSModel,
		voice:    cfg.Voice,
	}
	if len(a.models) == 0 {
		a.models = DefaultModels
	}
	if a.ttsModel == "" {
		a.ttsModel = DefaultTTSModel
	}
	if a.voice == "" {
		a.voice = DefaultVoice
	}
	return a
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Configured() bool {
	return a.client != nil && a.client.Configured()
}

func (a *Adapter) Models(c provider.Capability) []string {
	if c == provider.SynthesizeSpeech {
		return []string{a.ttsModel}
	}
	return a.models
}

// IsRetryable treats HTTP 429 and the RESOURCE_EXHAUSTED rpc status as
// quota exhaustion, plus the generic rate-limit markers.
func IsRetryable(err error) bool {
	var upErr *upstream.Error
	if errors.As(err, &upErr) {
		if upErr.StatusCode == http.StatusTooManyRequests || upErr.Status == "RESOURCE_EXHAUSTED" {
			return true
		}
	}
	return provider.DefaultRetryPredicate(err)
}

func (a *Adapter) TranscribeAudio(ctx context.Context, model string, m provider.Media) provider.Result {
	return a.text(ctx, model, provider.TranscribeAudioPrompt, &m, "audio/ogg")
}

func (a *Adapter) TranscribeVideo(ctx context.Context, model string, m provider.Media) provider.Result {
	return a.text(ctx, model, provider.TranscribeVideoPrompt, &m, "video/mp4")
}

func (a *Adapter) OCRImage(ctx context.Context, model string, m provider.Media) provider.Result {
	return a.text(ctx, model, provider.OCRPrompt, &m, "image/jpeg")
}

func (a *Adapter) DescribeImage(ctx context.Context, model string, m provider.Media, prompt string) provider.Result {
	return a.text(ctx, model, provider.DescribeImagePrompt(prompt), &m, "image/jpeg")
}

func (a *Adapter) Categorize(ctx context.Context, model, text string, categories []string) provider.Result {
	res := a.text(ctx, model, provider.CategorizePrompt(text, categories), nil, "")
	return provider.CategorizationFromText(model, res)
}

func (a *Adapter) GenerateContentPrompt(ctx context.Context, model, idea string) provider.Result {
	return a.text(ctx, model, provider.ContentPromptPrompt(idea), nil, "")
}

func (a *Adapter) Prompt(ctx context.Context, model, prompt string) provider.Result {
	return a.text(ctx, model, prompt, nil, "")
}

func (a *Adapter) SynthesizeSpeech(ctx context.Context, model, text string) provider.Result {
	cfg := &upstream.GenerationConfig{ResponseModalities: []string{"AUDIO"}, SpeechConfig: &upstream.SpeechConfig{}}
	cfg.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName = a.voice

	resp, err := a.client.Generate(ctx, model, upstream.GenerateRequest{
		Contents:         []upstream.Content{{Parts: []upstream.Part{upstream.TextPart(text)}}},
		GenerationConfig: cfg,
	})
	if err != nil {
		return provider.Failure(err, IsRetryable(err))
	}
	audio := resp.Audio
	if len(audio) > 0 && !isContainer(audio) {
		audio = upstream.WAV(audio, upstream.SampleRate(resp.AudioMIMEType))
	}
	return provider.AudioResult(model, audio, usage(resp))
}

func (a *Adapter) text(ctx context.Context, model, prompt string, m *provider.Media, defaultMIME string) provider.Result {
	parts := []upstream.Part{upstream.TextPart(prompt)}
	if m != nil {
		mime := m.MIMEType
		if mime == "" {
			mime = defaultMIME
		}
		parts = append(parts, upstream.BlobPart(m.Data, mime))
	}
	t := temperature
	resp, err := a.client.Generate(ctx, model, upstream.GenerateRequest{
		Contents:         []upstream.Content{{Role: "user", Parts: parts}},
		GenerationConfig: &upstream.GenerationConfig{Temperature: &t, MaxOutputTokens: maxOutputTokens},
	})
	if err != nil {
		return provider.Failure(err, IsRetryable(err))
	}
	return provider.TextResult(model, resp.Text, usage(resp))
}

func usage(resp upstream.GenerateResponse) provider.Usage {
	return provider.Usage{
		InputTokens:  resp.Usage.PromptTokenCount,
		OutputTokens: resp.Usage.CandidatesTokenCount,
	}
}

// isContainer reports whether audio already carries a RIFF or OGG header.
func isContainer(audio []byte) bool {
	if len(audio) < 4 {
		return false
	}
	head := string(audio[:4])
	return head == "RIFF" || head == "OggS"
}
