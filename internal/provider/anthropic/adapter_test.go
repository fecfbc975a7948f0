package anthropic

import (
	"context"
	"errors"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexuslog/internal/provider"
)

type fakeMessages struct {
	params []anthropic.MessageNewParams
	text   string
	err    error
}

func (f *fakeMessages) New(_ context.Context, params anthropic.MessageNewParams, _ ...option.RequestOption) (*anthropic.Message, error) {
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	return &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{{Type: "text", Text: f.text}},
		Usage:   anthropic.Usage{InputTokens: 30, OutputTokens: 9},
	}, nil
}

func TestCategorizeThroughMessagesAPI(t *testing.T) {
	msgs := &fakeMessages{text: "```json\n{\"category\":\"Stock Trading\",\"is_content_idea\":false,\"confidence\":0.85}\n```"}
	a := NewWithClient(msgs, Config{})

	res := a.Categorize(context.Background(), DefaultModels[0], "sold TSLA at 250", []string{"Stock Trading"})

	require.True(t, res.OK())
	assert.Equal(t, "Stock Trading", res.Categorization.Category)
	assert.Equal(t, 30, res.Usage.InputTokens)
	require.Len(t, msgs.params, 1)
	assert.Equal(t, anthropic.Model(DefaultModels[0]), msgs.params[0].Model)
	assert.EqualValues(t, 4096, msgs.params[0].MaxTokens)
}

func TestOCRRejectsUnsupportedImageType(t *testing.T) {
	msgs := &fakeMessages{text: "text"}
	a := NewWithClient(msgs, Config{})

	res := a.OCRImage(context.Background(), "m", provider.Media{Data: []byte("x"), MIMEType: "image/tiff"})

	assert.Equal(t, provider.StatusUnsupported, res.Status)
	assert.Empty(t, msgs.params)
}

func TestAudioIsUnsupported(t *testing.T) {
	a := NewWithClient(&fakeMessages{}, Config{})
	assert.Equal(t, provider.StatusUnsupported, a.TranscribeAudio(context.Background(), "m", provider.Media{}).Status)
	assert.Equal(t, provider.StatusUnsupported, a.SynthesizeSpeech(context.Background(), "m", "hi").Status)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&anthropic.Error{StatusCode: 529}))
	assert.True(t, IsRetryable(&anthropic.Error{StatusCode: 429}))
	assert.False(t, IsRetryable(&anthropic.Error{StatusCode: 400}))
	assert.False(t, IsRetryable(errors.New("tls handshake timeout")))
}

func TestUnconfiguredWithoutKey(t *testing.T) {
	assert.False(t, New(Config{}).Configured())
	assert.True(t, New(Config{APIKey: "sk-ant"}).Configured())
}
