package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	TranscribeAudioPrompt = "Transcribe this audio accurately. Only return the transcription, no additional commentary."
	TranscribeVideoPrompt = "Transcribe the audio from this video accurately. Only return the transcription, no additional commentary."
	OCRPrompt             = "Extract all text from this image. If there's no text, describe the key ideas or concepts shown. Be concise."
	imageTitlePrompt      = `Analyze this image and provide ONLY a short, descriptive title (5-10 words).
Do not extract full text. Do not describe every detail. Just a title.`
)

const (
	CatchAllCategory  = "General Notes"
	DefaultConfidence = 0.5
)

// DefaultCategorization is returned when no adapter could categorize.
func DefaultCategorization() Categorization {
	return Categorization{Category: CatchAllCategory, Confidence: DefaultConfidence}
}

// DescribeImagePrompt builds the vision prompt. Without a user request the
// model is asked for a title only.
func DescribeImagePrompt(userPrompt string) string {
	userPrompt = strings.TrimSpace(userPrompt)
	if userPrompt == "" {
		return imageTitlePrompt
	}
	return fmt.Sprintf(`Analyze this image and respond to the user's request.
User's request: %s
INSTRUCTIONS:
1. If user asks for "title" or "caption", provide a short 5-10 word description.
2. If user explicitly asks for "full details" or "OCR", provide it (but default is minimal).`, userPrompt)
}

func CategorizePrompt(content string, categories []string) string {
	return fmt.Sprintf(`Analyze this content and categorize it.

Existing categories: %s

Content: %s

Rules:
1. If it fits an existing category, use that category name
2. Only suggest a NEW category if absolutely necessary (we want max 10 categories total)
3. Determine if this is a content idea, coding project, stock trading idea, or general note
4. If it's a coding project, check if it belongs to an existing project subcategory

Respond in JSON format:
{
    "category": "category name",
    "is_new_category": true/false,
    "subcategory": "subcategory name or null",
    "is_content_idea": true/false,
    "confidence": 0.0-1.0
}`, strings.Join(categories, ", "), content)
}

func ContentPromptPrompt(idea string) string {
	return fmt.Sprintf(`You are a content strategist. Based on this idea, create a detailed prompt that could be used to write a full-length article or create a video.

Idea: %s

Create a comprehensive prompt that includes:
1. Main topic and angle
2. Target audience
3. Key points to cover
4. Tone and style
5. Call to action

Make it actionable and specific.`, idea)
}

// FallbackContentPrompt is used when no adapter produced a prompt.
func FallbackContentPrompt(idea string) string {
	return "Create content about: " + idea
}

// StripCodeFences returns the body of the first fenced block, preferring a
// ```json fence, or s trimmed when there is none.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "```json"); idx >= 0 {
		body := s[idx+len("```json"):]
		if end := strings.Index(body, "```"); end >= 0 {
			body = body[:end]
		}
		return strings.TrimSpace(body)
	}
	if idx := strings.Index(s, "```"); idx >= 0 {
		body := s[idx+3:]
		if end := strings.Index(body, "```"); end >= 0 {
			body = body[:end]
		}
		return strings.TrimSpace(body)
	}
	return s
}

// ParseCategorization decodes a model answer to the categorize prompt.
func ParseCategorization(raw string) (Categorization, error) {
	body := StripCodeFences(raw)
	if start, end := strings.Index(body, "{"), strings.LastIndex(body, "}"); start >= 0 && end > start {
		body = body[start : end+1]
	}
	if body == "" {
		return Categorization{}, errors.New("empty categorization response")
	}
	var c Categorization
	if err := json.Unmarshal([]byte(body), &c); err != nil {
		return Categorization{}, fmt.Errorf("invalid categorization response: %w", err)
	}
	c.Category = strings.TrimSpace(c.Category)
	c.Subcategory = strings.TrimSpace(c.Subcategory)
	if strings.EqualFold(c.Subcategory, "null") {
		c.Subcategory = ""
	}
	if c.Category == "" {
		return Categorization{}, errors.New("categorization response has no category")
	}
	return c, nil
}
