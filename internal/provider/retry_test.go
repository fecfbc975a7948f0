package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

type statusErr struct{ code int }

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", e.code) }
func (e statusErr) HTTPStatus() int { return e.code }

func TestDefaultRetryPredicate(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"quota text", errors.New("Quota exceeded for model"), true},
		{"429 text", errors.New("got 429 from upstream"), true},
		{"rate limit text", errors.New("Rate limit reached"), true},
		{"resource exhausted", errors.New("RESOURCE_EXHAUSTED"), true},
		{"typed 429", statusErr{code: http.StatusTooManyRequests}, true},
		{"wrapped typed 429", fmt.Errorf("call: %w", statusErr{code: 429}), true},
		{"auth", errors.New("401 unauthorized"), false},
		{"generate is not rate", errors.New("failed to generate content"), false},
		{"network", errors.New("dial tcp: connection refused"), false},
		{"deadline", fmt.Errorf("quota check: %w", context.DeadlineExceeded), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DefaultRetryPredicate(tc.err); got != tc.want {
				t.Fatalf("DefaultRetryPredicate(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestStatusRetryPredicateTrustsTypedStatus(t *testing.T) {
	pred := StatusRetryPredicate(http.StatusTooManyRequests, 529)

	if !pred(statusErr{code: 529}) {
		t.Fatal("expected 529 to be retryable")
	}
	if pred(statusErr{code: http.StatusInternalServerError}) {
		t.Fatal("expected 500 to be non-retryable")
	}
	if !pred(errors.New("rate limit exceeded")) {
		t.Fatal("expected untyped rate-limit text to be retryable")
	}
}

func TestParseCategorizationStripsFences(t *testing.T) {
	raw := "Sure!\n```json\n{\"category\":\"To-Do\",\"subcategory\":null,\"is_content_idea\":false,\"confidence\":0.9}\n```"

	got, err := ParseCategorization(raw)
	if err != nil {
		t.Fatalf("ParseCategorization() error = %v", err)
	}
	if got.Category != "To-Do" || got.Subcategory != "" || got.Confidence != 0.9 {
		t.Fatalf("unexpected categorization: %+v", got)
	}

	if _, err := ParseCategorization("not json at all"); err == nil {
		t.Fatal("expected error for prose response")
	}
}

func TestEstimateCost(t *testing.T) {
	assert.InDelta(t, 0.00055, EstimateCost("gemini", Categorize, 1000, 100), 1e-12)
	assert.InDelta(t, 0.003, EstimateCost("replicate", SynthesizeSpeech, 150, 0), 1e-12)
	assert.Zero(t, EstimateCost("ollama", Categorize, 1000, 1000))
}

func TestParseCategorizationExtractsObjectFromProse(t *testing.T) {
	got, err := ParseCategorization(`Here you go: {"category": "Stock Trading", "is_content_idea": false, "confidence": 0.7} hope it helps`)
	if err != nil {
		t.Fatalf("ParseCategorization() error = %v", err)
	}
	if got.Category != "Stock Trading" {
		t.Fatalf("unexpected category: %q", got.Category)
	}
}
