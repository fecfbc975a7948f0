package replicate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunOfficialModelWaitsAndPolls(t *testing.T) {
	var polls atomic.Int32
	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer r8-token" {
			t.Fatalf("unexpected auth header: %q", got)
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/models/google/gemini-3-flash/predictions":
			if r.Header.Get("Prefer") != "wait" {
				t.Fatalf("missing Prefer: wait header")
			}
			var body struct {
				Input map[string]any `json:"input"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Input["prompt"] != "hi" {
				t.Fatalf("unexpected input: %+v", body.Input)
			}
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"id":"p1","status":"processing","urls":{"get":"`+ts.URL+`/predictions/p1"}}`)
		case r.Method == http.MethodGet && r.URL.Path == "/predictions/p1":
			if polls.Add(1) < 2 {
				_, _ = io.WriteString(w, `{"id":"p1","status":"processing"}`)
				return
			}
			_, _ = io.WriteString(w, `{"id":"p1","status":"succeeded","output":["hel","lo"]}`)
		default:
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer ts.Close()

	c := New("r8-token", ts.Client(), WithBaseURL(ts.URL), WithPollInterval(time.Millisecond))
	out, err := c.Run(context.Background(), "google/gemini-3-flash", map[string]any{"prompt": "hi"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	text, err := OutputText(out)
	if err != nil {
		t.Fatalf("OutputText() error = %v", err)
	}
	if text != "hello" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestRunVersionedModelUsesPredictionsEndpoint(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predictions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["version"] != "abc123" {
			t.Fatalf("unexpected version: %v", body["version"])
		}
		_, _ = io.WriteString(w, `{"id":"p2","status":"succeeded","output":{"transcription":"words"}}`)
	}))
	defer ts.Close()

	c := New("r8-token", ts.Client(), WithBaseURL(ts.URL))
	out, err := c.Run(context.Background(), "openai/whisper:abc123", map[string]any{"audio": DataURI([]byte("x"), "audio/ogg")})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if text, _ := OutputText(out); text != "words" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestRunReportsFailedPrediction(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"p3","status":"failed","error":"CUDA out of memory"}`)
	}))
	defer ts.Close()

	c := New("r8-token", ts.Client(), WithBaseURL(ts.URL))
	_, err := c.Run(context.Background(), "qwen/qwen3-tts", nil)
	var predErr *PredictionError
	if !errors.As(err, &predErr) {
		t.Fatalf("expected *PredictionError, got %v", err)
	}
	if predErr.Status != "failed" {
		t.Fatalf("unexpected status: %q", predErr.Status)
	}
}

func TestRunReturnsTypedHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"throttled"}`, http.StatusTooManyRequests)
	}))
	defer ts.Close()

	c := New("r8-token", ts.Client(), WithBaseURL(ts.URL))
	_, err := c.Run(context.Background(), "google/gemini-3-flash", nil)
	var upErr *Error
	if !errors.As(err, &upErr) || upErr.HTTPStatus() != http.StatusTooManyRequests {
		t.Fatalf("expected 429 *Error, got %v", err)
	}
}

func TestOutputURLAndDownload(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("RIFFwav"))
	}))
	defer ts.Close()

	url, err := OutputURL(json.RawMessage(`"` + ts.URL + `/out.wav"`))
	if err != nil {
		t.Fatalf("OutputURL() error = %v", err)
	}
	c := New("r8-token", ts.Client())
	audio, err := c.Download(context.Background(), url)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if string(audio) != "RIFFwav" {
		t.Fatalf("unexpected audio: %q", audio)
	}
	if _, err := OutputText(json.RawMessage("null")); err == nil {
		t.Fatal("expected error for null output")
	}
}
