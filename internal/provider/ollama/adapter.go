package ollama

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"nexuslog/internal/provider"
)

const (
	Name         = "ollama"
	DefaultModel = "llama3.2"
)

type Config struct {
	Enabled bool
	BaseURL string
	Model   string
}

// Adapter drives a local Ollama server. It only handles text capabilities;
// media and speech are left to the hosted adapters.
type Adapter struct {
	provider.Unsupported

	llm     llms.Model
	enabled bool
	model   string
}

func New(cfg Config) (*Adapter, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	a := &Adapter{model: model, enabled: cfg.Enabled && strings.TrimSpace(cfg.BaseURL) != ""}
	if !a.enabled {
		return a, nil
	}
	llm, err := ollama.New(ollama.WithServerURL(cfg.BaseURL), ollama.WithModel(model))
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	a.llm = llm
	return a, nil
}

// NewWithModel wraps an existing llms.Model.
func NewWithModel(llm llms.Model, model string) *Adapter {
	if model == "" {
		model = DefaultModel
	}
	return &Adapter{llm: llm, enabled: llm != nil, model: model}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Configured() bool { return a.enabled && a.llm != nil }

func (a *Adapter) Models(provider.Capability) []string { return []string{a.model} }

func (a *Adapter) Categorize(ctx context.Context, model, text string, categories []string) provider.Result {
	res := a.generate(ctx, model, provider.CategorizePrompt(text, categories))
	return provider.CategorizationFromText(model, res)
}

func (a *Adapter) GenerateContentPrompt(ctx context.Context, model, idea string) provider.Result {
	return a.generate(ctx, model, provider.ContentPromptPrompt(idea))
}

func (a *Adapter) Prompt(ctx context.Context, model, prompt string) provider.Result {
	return a.generate(ctx, model, prompt)
}

func (a *Adapter) generate(ctx context.Context, model, prompt string) provider.Result {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	resp, err := a.llm.GenerateContent(ctx, content, llms.WithModel(model), llms.WithTemperature(0.2))
	if err != nil {
		return provider.Failure(err, provider.DefaultRetryPredicate(err))
	}
	if len(resp.Choices) == 0 {
		return provider.TextResult(model, "", provider.Usage{})
	}
	choice := resp.Choices[0]
	return provider.TextResult(model, choice.Content, usageFrom(choice.GenerationInfo))
}

func usageFrom(info map[string]any) provider.Usage {
	return provider.Usage{
		InputTokens:  intValue(info["PromptTokens"]),
		OutputTokens: intValue(info["CompletionTokens"]),
	}
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
