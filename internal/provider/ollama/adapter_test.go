package ollama

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"nexuslog/internal/provider"
)

type fakeLLM struct {
	answer string
	err    error
	opts   llms.CallOptions
	prompt string
}

func (f *fakeLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, opt := range options {
		opt(&f.opts)
	}
	if len(messages) > 0 && len(messages[0].Parts) > 0 {
		if text, ok := messages[0].Parts[0].(llms.TextContent); ok {
			f.prompt = text.Text
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content:        f.answer,
		GenerationInfo: map[string]any{"PromptTokens": 12, "CompletionTokens": 4},
	}}}, nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestCategorizeParsesJSONFromLocalModel(t *testing.T) {
	llm := &fakeLLM{answer: `Sure: {"category":"To-Do","is_content_idea":false,"confidence":0.8}`}
	a := NewWithModel(llm, "llama3.2")

	res := a.Categorize(context.Background(), "llama3.2", "buy milk", []string{"To-Do", "General Notes"})

	require.True(t, res.OK())
	assert.Equal(t, "To-Do", res.Categorization.Category)
	assert.Equal(t, 12, res.Usage.InputTokens)
	assert.Equal(t, "llama3.2", llm.opts.Model)
	assert.Contains(t, llm.prompt, "Existing categories: To-Do, General Notes")
}

func TestMediaCapabilitiesAreUnsupported(t *testing.T) {
	a := NewWithModel(&fakeLLM{}, "")
	ctx := context.Background()

	assert.Equal(t, provider.StatusUnsupported, a.TranscribeAudio(ctx, "", provider.Media{}).Status)
	assert.Equal(t, provider.StatusUnsupported, a.OCRImage(ctx, "", provider.Media{}).Status)
	assert.Equal(t, provider.StatusUnsupported, a.SynthesizeSpeech(ctx, "", "hi").Status)
}

func TestDisabledAdapterIsNotConfigured(t *testing.T) {
	a, err := New(Config{Enabled: false, BaseURL: "http://localhost:11434"})
	require.NoError(t, err)
	assert.False(t, a.Configured())
}

func TestGenerateFailureIsNotRetryable(t *testing.T) {
	a := NewWithModel(&fakeLLM{err: errors.New("connection refused")}, "")

	res := a.Prompt(context.Background(), DefaultModel, "hi")

	assert.Equal(t, provider.StatusFailure, res.Status)
	assert.False(t, res.Retryable)
}
