package openaicompat

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexuslog/internal/provider"
	"nexuslog/internal/upstream/openai"
)

func TestAdapterAgainstCompatibleServer(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/chat/completions":
			body, _ := io.ReadAll(r.Body)
			if strings.Contains(string(body), "image_url") {
				_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"Whiteboard sketch"}}]}`)
				return
			}
			_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"{\"category\":\"Coding Projects\",\"subcategory\":\"NexusLog\",\"confidence\":0.8}"}}],"usage":{"prompt_tokens":20,"completion_tokens":8}}`)
		case "/audio/speech":
			_, _ = w.Write([]byte("mp3"))
		case "/audio/transcriptions":
			if r.FormValue("model") != "whisper-1" {
				t.Fatalf("unexpected model: %q", r.FormValue("model"))
			}
			_, _ = io.WriteString(w, `{"text":" buy milk tomorrow "}`)
		default:
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer ts.Close()

	client := openai.New(ts.URL, "sk-test", ts.Client())
	a := New(client, Config{APIKey: "sk-test"})
	ctx := context.Background()

	res := a.Categorize(ctx, "gpt-4o-mini", "fix the router", []string{"Coding Projects"})
	require.True(t, res.OK())
	assert.Equal(t, "Coding Projects", res.Categorization.Category)
	assert.Equal(t, "NexusLog", res.Categorization.Subcategory)
	assert.Equal(t, 20, res.Usage.InputTokens)

	res = a.DescribeImage(ctx, "gpt-4o-mini", provider.Media{Data: []byte("png"), MIMEType: "image/png"}, "")
	require.True(t, res.OK())
	assert.Equal(t, "Whiteboard sketch", res.Text)

	res = a.TranscribeAudio(ctx, "whisper-1", provider.Media{Data: []byte("ogg")})
	require.True(t, res.OK())
	assert.Equal(t, "buy milk tomorrow", res.Text)

	res = a.SynthesizeSpeech(ctx, "tts-1", "hello")
	require.True(t, res.OK())
	assert.Equal(t, []byte("mp3"), res.Audio)
}

func TestAdapterDoesNotTranscribeVideo(t *testing.T) {
	a := New(openai.New("http://unused", "k", nil), Config{APIKey: "k"})

	res := a.TranscribeVideo(context.Background(), "m", provider.Media{Data: []byte("mp4")})

	assert.Equal(t, provider.StatusUnsupported, res.Status)
}

func TestAdapterRateLimitIsRetryable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer ts.Close()

	a := New(openai.New(ts.URL, "k", ts.Client()), Config{APIKey: "k"})
	res := a.Prompt(context.Background(), "m", "hi")

	assert.Equal(t, provider.StatusFailure, res.Status)
	assert.True(t, res.Retryable)
}

func TestAdapterRequiresAPIKey(t *testing.T) {
	a := New(openai.New("http://unused", "", nil), Config{})
	assert.False(t, a.Configured())
}
