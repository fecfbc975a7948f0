package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGenerateSendsInlineDataAndParsesText(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-2.5-flash:generateContent" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Fatalf("unexpected api key header: %q", got)
		}
		var req GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Contents) != 1 || len(req.Contents[0].Parts) != 2 {
			t.Fatalf("unexpected contents: %+v", req.Contents)
		}
		blob := req.Contents[0].Parts[1].InlineData
		if blob == nil || blob.MimeType != "audio/ogg" || blob.Data != base64.StdEncoding.EncodeToString([]byte("ogg")) {
			t.Fatalf("unexpected inline data: %+v", blob)
		}
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"hello "},{"text":"world"}]}}],"usageMetadata":{"promptTokenCount":12,"candidatesTokenCount":3,"totalTokenCount":15}}`)
	}))
	defer ts.Close()

	c := New("test-key", ts.Client(), WithBaseURL(ts.URL))
	resp, err := c.Generate(context.Background(), "gemini-2.5-flash", GenerateRequest{
		Contents: []Content{{Parts: []Part{TextPart("Transcribe"), BlobPart([]byte("ogg"), "audio/ogg")}}},
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Text != "hello world" {
		t.Fatalf("unexpected text: %q", resp.Text)
	}
	if resp.Usage.PromptTokenCount != 12 || resp.Usage.CandidatesTokenCount != 3 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
}

func TestGenerateDecodesAudioPart(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := `{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"audio/L16;codec=pcm;rate=24000","data":"` +
			base64.StdEncoding.EncodeToString(pcm) + `"}}]}}]}`
		_, _ = io.WriteString(w, body)
	}))
	defer ts.Close()

	c := New("test-key", ts.Client(), WithBaseURL(ts.URL))
	resp, err := c.Generate(context.Background(), "tts", GenerateRequest{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if string(resp.Audio) != string(pcm) {
		t.Fatalf("unexpected audio: %v", resp.Audio)
	}
	if rate := SampleRate(resp.AudioMIMEType); rate != 24000 {
		t.Fatalf("SampleRate() = %d", rate)
	}
	wav := WAV(resp.Audio, 24000)
	if len(wav) != 44+len(pcm) || string(wav[:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatalf("unexpected wav header: %q", wav[:12])
	}
}

func TestGenerateReturnsTypedError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"code":429,"message":"Quota exceeded","status":"RESOURCE_EXHAUSTED"}}`)
	}))
	defer ts.Close()

	c := New("test-key", ts.Client(), WithBaseURL(ts.URL))
	_, err := c.Generate(context.Background(), "m", GenerateRequest{})
	var upErr *Error
	if !errors.As(err, &upErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if upErr.StatusCode != http.StatusTooManyRequests || upErr.Status != "RESOURCE_EXHAUSTED" {
		t.Fatalf("unexpected error: %+v", upErr)
	}
}

func TestGenerateRejectsBlockedPrompt(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"promptFeedback":{"blockReason":"SAFETY"}}`)
	}))
	defer ts.Close()

	c := New("test-key", ts.Client(), WithBaseURL(ts.URL))
	if _, err := c.Generate(context.Background(), "m", GenerateRequest{}); err == nil {
		t.Fatal("expected error for blocked prompt")
	}
}
