package classify

import (
	"regexp"
	"strings"
)

// AllOutputTypes is what an idea targets when the message names no format.
var AllOutputTypes = []string{"blog", "youtube", "linkedin", "shorts", "reels"}

// Metadata holds the hints a user can type alongside a note, e.g.
// "content idea for blog and youtube: ...".
type Metadata struct {
	IsContentIdea bool
	OutputTypes   []string
	CleanText     string
}

var (
	ideaPattern = regexp.MustCompile(`(?i)\b(content ideas?|ideas?)\b`)
	allPattern  = regexp.MustCompile(`(?i)\ball\b`)

	outputTypePatterns = []struct {
		kind    string
		pattern *regexp.Regexp
	}{
		{"blog", regexp.MustCompile(`(?i)\b(blogs?|articles?)\b`)},
		{"youtube", regexp.MustCompile(`(?i)\b(youtube|videos?)\b`)},
		{"linkedin", regexp.MustCompile(`(?i)\blinkedin\b`)},
		{"shorts", regexp.MustCompile(`(?i)\b(shorts?|reels?)\b`)},
	}

	hintWords  = regexp.MustCompile(`(?i)\b(content idea|idea|for|blog|youtube|linkedin|shorts|reels|all)\b`)
	whitespace = regexp.MustCompile(`\s+`)
)

// ParseMetadata extracts idea and output-type hints from text. Keywords are
// matched as whole words so "small" or "ideal" do not trigger them.
func ParseMetadata(text string) Metadata {
	md := Metadata{IsContentIdea: ideaPattern.MatchString(text)}
	for _, ot := range outputTypePatterns {
		if ot.pattern.MatchString(text) {
			md.OutputTypes = append(md.OutputTypes, ot.kind)
		}
	}
	if allPattern.MatchString(text) || (md.IsContentIdea && len(md.OutputTypes) == 0) {
		md.OutputTypes = append([]string(nil), AllOutputTypes...)
	}

	clean := strings.TrimSpace(whitespace.ReplaceAllString(hintWords.ReplaceAllString(text, ""), " "))
	if clean == "" {
		clean = text
	}
	md.CleanText = clean
	return md
}
