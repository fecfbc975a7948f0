package provider

import "context"

// Adapter wraps one AI vendor. Every capability method either performs the
// call with the given model variant or returns NotSupported().
type Adapter interface {
	Name() string
	// Configured reports whether credentials or an endpoint are present.
	// Unconfigured adapters are never attempted by the Router.
	Configured() bool
	// Models lists the model variants for c in priority order.
	Models(c Capability) []string

	TranscribeAudio(ctx context.Context, model string, m Media) Result
	TranscribeVideo(ctx context.Context, model string, m Media) Result
	OCRImage(ctx context.Context, model string, m Media) Result
	DescribeImage(ctx context.Context, model string, m Media, prompt string) Result
	SynthesizeSpeech(ctx context.Context, model, text string) Result
	Categorize(ctx context.Context, model, text string, categories []string) Result
	GenerateContentPrompt(ctx context.Context, model, idea string) Result
	Prompt(ctx context.Context, model, prompt string) Result
}

// Unsupported answers NotSupported for every capability. Adapters embed it
// and override the capabilities their vendor actually serves.
type Unsupported struct{}

func (Unsupported) TranscribeAudio(context.Context, string, Media) Result { return NotSupported() }
func (Unsupported) TranscribeVideo(context.Context, string, Media) Result { return NotSupported() }
func (Unsupported) OCRImage(context.Context, string, Media) Result        { return NotSupported() }
func (Unsupported) DescribeImage(context.Context, string, Media, string) Result {
	return NotSupported()
}
func (Unsupported) SynthesizeSpeech(context.Context, string, string) Result { return NotSupported() }
func (Unsupported) Categorize(context.Context, string, string, []string) Result {
	return NotSupported()
}
func (Unsupported) GenerateContentPrompt(context.Context, string, string) Result {
	return NotSupported()
}
func (Unsupported) Prompt(context.Context, string, string) Result { return NotSupported() }
