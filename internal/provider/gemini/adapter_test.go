package gemini

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexuslog/internal/provider"
	upstream "nexuslog/internal/upstream/gemini"
)

type fakeGenerator struct {
	calls []string
	reqs  []upstream.GenerateRequest
	resp  map[string]upstream.GenerateResponse
	errs  map[string]error
}

func (f *fakeGenerator) Configured() bool { return true }

func (f *fakeGenerator) Generate(_ context.Context, model string, req upstream.GenerateRequest) (upstream.GenerateResponse, error) {
	f.calls = append(f.calls, model)
	f.reqs = append(f.reqs, req)
	if err, ok := f.errs[model]; ok {
		return upstream.GenerateResponse{}, err
	}
	return f.resp[model], nil
}

func TestQuotaErrorsAreRetryableAcrossVariants(t *testing.T) {
	quota := &upstream.Error{StatusCode: http.StatusTooManyRequests, Status: "RESOURCE_EXHAUSTED", Message: "Quota exceeded"}
	gen := &fakeGenerator{
		errs: map[string]error{"a": quota, "b": quota},
		resp: map[string]upstream.GenerateResponse{
			"c": {Text: "```json\n{\"category\":\"To-Do\",\"confidence\":0.9}\n```", Usage: upstream.UsageMetadata{PromptTokenCount: 7, CandidatesTokenCount: 2}},
		},
	}
	adapter := New(gen, Config{Models: []string{"a", "b", "c"}})
	r := provider.NewRouter([]provider.Adapter{adapter})

	got := r.Categorize(context.Background(), "buy milk", []string{"To-Do"})

	assert.Equal(t, "To-Do", got.Category)
	assert.Equal(t, []string{"a", "b", "c"}, gen.calls)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&upstream.Error{StatusCode: 400, Status: "RESOURCE_EXHAUSTED"}))
	assert.True(t, IsRetryable(&upstream.Error{StatusCode: 429}))
	assert.False(t, IsRetryable(&upstream.Error{StatusCode: 400, Status: "INVALID_ARGUMENT", Message: "bad request"}))
	assert.False(t, IsRetryable(errors.New("connection reset")))
}

func TestTranscribeSendsMediaInline(t *testing.T) {
	gen := &fakeGenerator{resp: map[string]upstream.GenerateResponse{"m": {Text: "hello"}}}
	adapter := New(gen, Config{Models: []string{"m"}})

	res := adapter.TranscribeAudio(context.Background(), "m", provider.Media{Data: []byte("ogg")})

	require.True(t, res.OK())
	assert.Equal(t, "hello", res.Text)
	parts := gen.reqs[0].Contents[0].Parts
	require.Len(t, parts, 2)
	assert.Equal(t, provider.TranscribeAudioPrompt, parts[0].Text)
	assert.Equal(t, "audio/ogg", parts[1].InlineData.MimeType)
	require.NotNil(t, gen.reqs[0].GenerationConfig.Temperature)
	assert.InDelta(t, 0.2, *gen.reqs[0].GenerationConfig.Temperature, 1e-9)
}

func TestSynthesizeSpeechWrapsPCM(t *testing.T) {
	gen := &fakeGenerator{resp: map[string]upstream.GenerateResponse{
		DefaultTTSModel: {Audio: []byte{0, 1, 2, 3}, AudioMIMEType: "audio/L16;rate=24000"},
	}}
	adapter := New(gen, Config{})

	assert.Equal(t, []string{DefaultTTSModel}, adapter.Models(provider.SynthesizeSpeech))
	res := adapter.SynthesizeSpeech(context.Background(), DefaultTTSModel, "hello")

	require.True(t, res.OK())
	assert.Equal(t, "RIFF", string(res.Audio[:4]))
	assert.Equal(t, []string{"AUDIO"}, gen.reqs[0].GenerationConfig.ResponseModalities)
	assert.Equal(t, DefaultVoice, gen.reqs[0].GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName)
}

func TestCategorizeRejectsUnparseableAnswer(t *testing.T) {
	gen := &fakeGenerator{resp: map[string]upstream.GenerateResponse{"m": {Text: "I think it's a todo"}}}
	adapter := New(gen, Config{Models: []string{"m"}})

	res := adapter.Categorize(context.Background(), "m", "x", nil)

	assert.Equal(t, provider.StatusFailure, res.Status)
	assert.False(t, res.Retryable)
}
