package provider

import (
	"context"
	"strings"
)

// The typed helpers below apply the documented default when every adapter
// failed, so callers never see provider errors.

func (r *Router) Transcribe(ctx context.Context, m Media) string {
	return r.text(ctx, NewTranscribeAudio(m), "")
}

func (r *Router) TranscribeVideo(ctx context.Context, m Media) string {
	return r.text(ctx, NewTranscribeVideo(m), "")
}

func (r *Router) OCR(ctx context.Context, m Media) string {
	return r.text(ctx, NewOCRImage(m), "")
}

func (r *Router) Describe(ctx context.Context, m Media, prompt string) string {
	return r.text(ctx, NewDescribeImage(m, prompt), "")
}

func (r *Router) Prompt(ctx context.Context, prompt string) string {
	return r.text(ctx, NewPrompt(prompt), "")
}

func (r *Router) GenerateContentPrompt(ctx context.Context, idea string) string {
	return r.text(ctx, NewGenerateText(idea), FallbackContentPrompt(idea))
}

func (r *Router) Speak(ctx context.Context, text string) []byte {
	res := r.Do(ctx, NewSynthesizeSpeech(text))
	if !res.OK() {
		r.fallback(SynthesizeSpeech, res)
		return []byte{}
	}
	return res.Audio
}

func (r *Router) Categorize(ctx context.Context, text string, categories []string) Categorization {
	res := r.Do(ctx, NewCategorize(text, categories))
	if !res.OK() || res.Categorization == nil {
		r.fallback(Categorize, res)
		return DefaultCategorization()
	}
	return *res.Categorization
}

func (r *Router) text(ctx context.Context, req Request, def string) string {
	res := r.Do(ctx, req)
	if !res.OK() {
		r.fallback(req.Capability(), res)
		return def
	}
	return strings.TrimSpace(res.Text)
}
