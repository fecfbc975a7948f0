package provider

import (
	"context"
	"time"
)

// UsageRecord is an append-only fact about one successful provider call.
type UsageRecord struct {
	Timestamp    time.Time
	Provider     string
	Model        string
	Feature      Capability
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Details      map[string]any
}

type UsageRecorder interface {
	RecordUsage(ctx context.Context, rec UsageRecord) error
}

const (
	geminiInputRate     = 0.0000003
	geminiOutputRate    = 0.0000025
	replicateTTSPerChar = 0.00002
)

// EstimateCost returns the list-price estimate in USD. For text-to-speech on
// Replicate the input size is a character count.
func EstimateCost(providerName string, feature Capability, input, output int) float64 {
	switch {
	case providerName == "gemini":
		return float64(input)*geminiInputRate + float64(output)*geminiOutputRate
	case providerName == "replicate" && feature == SynthesizeSpeech:
		return float64(input) * replicateTTSPerChar
	default:
		return 0
	}
}
