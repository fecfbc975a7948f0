package provider

import "fmt"

// Capability names one unit of AI functionality independent of the vendor
// that serves it. The string values double as the usage-log feature name.
type Capability string

const (
	TranscribeAudio  Capability = "transcribe_audio"
	TranscribeVideo  Capability = "transcribe_video"
	OCRImage         Capability = "ocr_image"
	DescribeImage    Capability = "describe_image"
	SynthesizeSpeech Capability = "tts"
	Categorize       Capability = "categorize_content"
	GenerateText     Capability = "generate_prompt"
	FreeFormPrompt   Capability = "process_message"
)

var capabilities = []Capability{
	TranscribeAudio,
	TranscribeVideo,
	OCRImage,
	DescribeImage,
	SynthesizeSpeech,
	Categorize,
	GenerateText,
	FreeFormPrompt,
}

// Capabilities returns every known capability in a stable order.
func Capabilities() []Capability {
	out := make([]Capability, len(capabilities))
	copy(out, capabilities)
	return out
}

func (c Capability) Valid() bool {
	for _, known := range capabilities {
		if c == known {
			return true
		}
	}
	return false
}

// Media is an in-memory file handed to a provider. Data must not be
// modified once the Media is part of a Request.
type Media struct {
	Data     []byte
	MIMEType string
	FileName string
}

func (m Media) Empty() bool {
	return len(m.Data) == 0
}

// Request describes one routed call. It is immutable once built; use the
// New* constructors.
type Request struct {
	capability Capability
	media      Media
	text       string
	prompt     string
	categories []string
}

func NewTranscribeAudio(m Media) Request {
	return Request{capability: TranscribeAudio, media: m}
}

func NewTranscribeVideo(m Media) Request {
	return Request{capability: TranscribeVideo, media: m}
}

func NewOCRImage(m Media) Request {
	return Request{capability: OCRImage, media: m}
}

// NewDescribeImage builds an image analysis request. An empty prompt asks
// the provider for a short descriptive title.
func NewDescribeImage(m Media, prompt string) Request {
	return Request{capability: DescribeImage, media: m, prompt: prompt}
}

func NewSynthesizeSpeech(text string) Request {
	return Request{capability: SynthesizeSpeech, text: text}
}

func NewCategorize(text string, categories []string) Request {
	cats := make([]string, len(categories))
	copy(cats, categories)
	return Request{capability: Categorize, text: text, categories: cats}
}

func NewGenerateText(idea string) Request {
	return Request{capability: GenerateText, text: idea}
}

func NewPrompt(prompt string) Request {
	return Request{capability: FreeFormPrompt, prompt: prompt}
}

func (r Request) Capability() Capability { return r.capability }
func (r Request) Media() Media           { return r.media }
func (r Request) Text() string           { return r.text }
func (r Request) Prompt() string         { return r.prompt }

func (r Request) Categories() []string {
	out := make([]string, len(r.categories))
	copy(out, r.categories)
	return out
}

func (r Request) String() string {
	return fmt.Sprintf("%s(media=%dB text=%dB prompt=%dB)", r.capability, len(r.media.Data), len(r.text), len(r.prompt))
}
