package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// MinCategorizeConfidence is the lowest confidence a categorization must
// exceed to be accepted; weaker answers fall through to the next adapter.
const MinCategorizeConfidence = 0.3

type Observer interface {
	ObserveProviderAttempt(provider, capability, outcome string)
	IncRouterDefault(capability string)
}

type RouterOption func(*Router)

func WithUsageRecorder(rec UsageRecorder) RouterOption {
	return func(r *Router) { r.usage = rec }
}

func WithLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithObserver(o Observer) RouterOption {
	return func(r *Router) { r.observer = o }
}

func WithClock(now func() time.Time) RouterOption {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

// Router presents every capability as a single call over an ordered list of
// adapters. It is safe for concurrent use.
type Router struct {
	adapters []Adapter
	skipped  []string
	usage    UsageRecorder
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
}

// NewRouter keeps the configured adapters in the given priority order.
// Unconfigured adapters are dropped here and never attempted.
func NewRouter(adapters []Adapter, opts ...RouterOption) *Router {
	r := &Router{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	for _, a := range adapters {
		if a == nil {
			continue
		}
		if !a.Configured() {
			r.skipped = append(r.skipped, a.Name())
			r.logger.Info("provider not configured, skipping", "provider", a.Name())
			continue
		}
		r.adapters = append(r.adapters, a)
	}
	return r
}

// Adapters returns the names of the active adapters in priority order.
func (r *Router) Adapters() []string {
	names := make([]string, 0, len(r.adapters))
	for _, a := range r.adapters {
		names = append(names, a.Name())
	}
	return names
}

// Skipped returns the names of adapters dropped for missing configuration.
func (r *Router) Skipped() []string {
	out := make([]string, len(r.skipped))
	copy(out, r.skipped)
	return out
}

// Do routes req through the adapters. It never returns a Go error for
// provider failures; a terminal failure has Kind FailureExhausted.
func (r *Router) Do(ctx context.Context, req Request) Result {
	c := req.Capability()
	if !c.Valid() {
		panic(fmt.Sprintf("provider: unknown capability %q", c))
	}

	var lastErr error
	for _, a := range r.adapters {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		res, done := r.tryAdapter(ctx, a, req)
		if done {
			return res
		}
		if res.Err != nil {
			lastErr = res.Err
		}
	}

	err := ErrExhausted
	if lastErr != nil {
		err = fmt.Errorf("%w: last error: %v", ErrExhausted, lastErr)
	}
	return Result{Status: StatusFailure, Err: err, Kind: FailureExhausted}
}

// tryAdapter walks the model variants of one adapter. done is true when
// the returned result is an accepted success.
func (r *Router) tryAdapter(ctx context.Context, a Adapter, req Request) (Result, bool) {
	c := req.Capability()
	variants := a.Models(c)
	if len(variants) == 0 {
		variants = []string{""}
	}

	var last Result
	for _, model := range variants {
		res := dispatch(ctx, a, model, req)
		res.Provider = a.Name()
		if res.Model == "" {
			res.Model = model
		}

		switch res.Status {
		case StatusUnsupported:
			r.observe(a.Name(), c, "unsupported")
			r.logger.Debug("capability not supported", "provider", a.Name(), "capability", c)
			return res, false

		case StatusSuccess:
			if err := checkPayload(c, res); err != nil {
				r.observe(a.Name(), c, "empty")
				r.logger.Warn("provider returned empty result", "provider", a.Name(), "model", res.Model, "capability", c)
				r.recordSpent(ctx, res, c)
				return Result{Status: StatusFailure, Err: err, Kind: FailureEmpty, Provider: a.Name(), Model: res.Model}, false
			}
			r.record(ctx, res, c)
			if c == Categorize && res.Categorization.Confidence <= MinCategorizeConfidence {
				r.observe(a.Name(), c, "low_confidence")
				r.logger.Info("categorization confidence too low, trying next provider",
					"provider", a.Name(), "model", res.Model, "confidence", res.Categorization.Confidence)
				return res, false
			}
			r.observe(a.Name(), c, "success")
			return res, true

		default:
			last = res
			r.recordSpent(ctx, res, c)
			if res.Retryable {
				r.observe(a.Name(), c, "rate_limited")
				r.logger.Warn("rate limit hit, trying next model",
					"provider", a.Name(), "model", res.Model, "capability", c, "error", res.Err)
				continue
			}
			r.observe(a.Name(), c, "failed")
			r.logger.Warn("provider call failed",
				"provider", a.Name(), "model", res.Model, "capability", c, "error", res.Err)
			return res, false
		}
	}
	return last, false
}

func dispatch(ctx context.Context, a Adapter, model string, req Request) Result {
	switch req.Capability() {
	case TranscribeAudio:
		return a.TranscribeAudio(ctx, model, req.Media())
	case TranscribeVideo:
		return a.TranscribeVideo(ctx, model, req.Media())
	case OCRImage:
		return a.OCRImage(ctx, model, req.Media())
	case DescribeImage:
		return a.DescribeImage(ctx, model, req.Media(), req.Prompt())
	case SynthesizeSpeech:
		return a.SynthesizeSpeech(ctx, model, req.Text())
	case Categorize:
		return a.Categorize(ctx, model, req.Text(), req.Categories())
	case GenerateText:
		return a.GenerateContentPrompt(ctx, model, req.Text())
	case FreeFormPrompt:
		return a.Prompt(ctx, model, req.Prompt())
	default:
		panic(fmt.Sprintf("provider: unknown capability %q", req.Capability()))
	}
}

func checkPayload(c Capability, res Result) error {
	switch c {
	case SynthesizeSpeech:
		if len(res.Audio) == 0 {
			return errors.New("empty audio payload")
		}
	case Categorize:
		if res.Categorization == nil {
			return errors.New("missing categorization payload")
		}
	default:
		if res.Text == "" {
			return errors.New("empty text payload")
		}
	}
	return nil
}

func (r *Router) record(ctx context.Context, res Result, c Capability) {
	if r.usage == nil {
		return
	}
	rec := UsageRecord{
		Timestamp:    r.now().UTC(),
		Provider:     res.Provider,
		Model:        res.Model,
		Feature:      c,
		InputTokens:  res.Usage.InputTokens,
		OutputTokens: res.Usage.OutputTokens,
		CostUSD:      EstimateCost(res.Provider, c, res.Usage.InputTokens, res.Usage.OutputTokens),
	}
	if err := r.usage.RecordUsage(ctx, rec); err != nil {
		r.logger.Error("failed to log usage", "provider", res.Provider, "model", res.Model, "error", err)
	}
}

// recordSpent logs usage for a failed call that still consumed tokens, such
// as a billed answer that could not be parsed.
func (r *Router) recordSpent(ctx context.Context, res Result, c Capability) {
	if res.Usage != (Usage{}) {
		r.record(ctx, res, c)
	}
}

func (r *Router) observe(providerName string, c Capability, outcome string) {
	if r.observer != nil {
		r.observer.ObserveProviderAttempt(providerName, string(c), outcome)
	}
}

func (r *Router) fallback(c Capability, res Result) {
	if r.observer != nil {
		r.observer.IncRouterDefault(string(c))
	}
	r.logger.Warn("all providers failed, using default", "capability", c, "error", res.Err)
}
