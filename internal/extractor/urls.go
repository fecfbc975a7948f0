package extractor

import (
	"net/url"
	"regexp"
	"strings"
)

type URLKind int

const (
	KindWebpage URLKind = iota
	KindYouTube
	KindImage
	KindVideo
)

func (k URLKind) String() string {
	switch k {
	case KindYouTube:
		return "youtube"
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	default:
		return "webpage"
	}
}

var (
	urlPattern     = regexp.MustCompile("https?://[^\\s<>\"{}|\\\\^`\\[\\]]+")
	bareURLPattern = regexp.MustCompile(`https?://[^\s]+`)

	youtubePattern    = regexp.MustCompile(`youtube\.com/watch\?v=|youtu\.be/|youtube\.com/shorts/`)
	youtubeIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`youtube\.com/watch\?v=([a-zA-Z0-9_-]{11})`),
		regexp.MustCompile(`youtu\.be/([a-zA-Z0-9_-]{11})`),
		regexp.MustCompile(`youtube\.com/shorts/([a-zA-Z0-9_-]{11})`),
	}

	imageExtPattern  = regexp.MustCompile(`\.(jpg|jpeg|png|gif|webp|bmp|svg)(\?.*)?$`)
	imageCDNPatterns = []*regexp.Regexp{
		regexp.MustCompile(`pbs\.twimg\.com/media/`),
		regexp.MustCompile(`instagram.*\.fbcdn\.net`),
		regexp.MustCompile(`i\.imgur\.com/`),
		regexp.MustCompile(`media\.tenor\.com/`),
		regexp.MustCompile(`cdn\.discordapp\.com/.*/.*\.(jpg|png|gif|webp)`),
	}

	twitterSizePattern = regexp.MustCompile(`name=[a-zA-Z0-9x_]+`)
)

// DetectURLs returns the distinct URLs in text in order of first appearance.
func DetectURLs(text string) []string {
	found := urlPattern.FindAllString(text, -1)
	seen := make(map[string]struct{}, len(found))
	out := found[:0]
	for _, u := range found {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// StripURLs removes URLs and surrounding whitespace from text.
func StripURLs(text string) string {
	return strings.TrimSpace(bareURLPattern.ReplaceAllString(text, ""))
}

// Classify buckets u without network access. Anything that is neither a
// YouTube link nor an image is reported as a webpage; the video probe
// refines that later.
func Classify(u string) URLKind {
	switch {
	case youtubePattern.MatchString(u):
		return KindYouTube
	case IsImageURL(u):
		return KindImage
	default:
		return KindWebpage
	}
}

func IsImageURL(u string) bool {
	if imageExtPattern.MatchString(strings.ToLower(u)) {
		return true
	}
	for _, p := range imageCDNPatterns {
		if p.MatchString(u) {
			return true
		}
	}
	return false
}

// YouTubeID returns the 11-character video id, or "".
func YouTubeID(u string) string {
	for _, p := range youtubeIDPatterns {
		if m := p.FindStringSubmatch(u); m != nil {
			return m[1]
		}
	}
	return ""
}

// UpgradeTwitterImage asks pbs.twimg.com for the original resolution.
func UpgradeTwitterImage(u string) string {
	if !strings.Contains(u, "pbs.twimg.com/media/") {
		return u
	}
	switch {
	case strings.Contains(u, "name="):
		return twitterSizePattern.ReplaceAllString(u, "name=orig")
	case strings.Contains(u, "?"):
		return u + "&name=orig"
	default:
		return u + "?format=jpg&name=orig"
	}
}

func isXHost(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return strings.Contains(u, "x.com") || strings.Contains(u, "twitter.com")
	}
	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	return host == "x.com" || host == "twitter.com" || strings.HasSuffix(host, ".x.com") || strings.HasSuffix(host, ".twitter.com")
}

func hostOf(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Hostname() == "" {
		return "Unknown"
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}

var questionIndicators = []string{"?", "what", "how", "why", "summarize", "extract", "describe", "analyze", "tell me"}

// IsQuestion reports whether text asks something about an attached image.
func IsQuestion(text string) bool {
	lower := strings.ToLower(text)
	for _, ind := range questionIndicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}
