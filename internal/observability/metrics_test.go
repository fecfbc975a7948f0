package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCountersAreExposed(t *testing.T) {
	m := NewMetrics()
	m.ObserveHTTP("/api/entries", "GET", 200, 10*time.Millisecond)
	m.Upstream("gemini")("generate_content", 429, time.Second)
	m.ObserveProviderAttempt("gemini", "categorize", "retryable")
	m.ObserveProviderAttempt("gemini", "categorize", "retryable")
	m.IncRouterDefault("synthesize_speech")
	m.ObserveIngestion("duplicate")
	m.SetProviders([]string{"gemini"}, []string{"anthropic"})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`nexuslog_http_requests_total{method="GET",route="/api/entries",status="200"} 1`,
		`nexuslog_provider_attempts_total{capability="categorize",outcome="retryable",provider="gemini"} 2`,
		`nexuslog_upstream_requests_total{endpoint="gemini_generate_content",status="429"} 1`,
		`nexuslog_router_default_total{capability="synthesize_speech"} 1`,
		`nexuslog_ingestions_total{outcome="duplicate"} 1`,
		`nexuslog_provider_configured{provider="gemini"} 1`,
		`nexuslog_provider_configured{provider="anthropic"} 0`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.ObserveHTTP("r", "GET", 200, time.Millisecond)
	m.ObserveUpstream("e", 200, time.Millisecond)
	m.ObserveProviderAttempt("p", "c", "ok")
	m.IncRouterDefault("c")
	m.ObserveIngestion("created")
	m.SetProviders([]string{"gemini"}, nil)
}
