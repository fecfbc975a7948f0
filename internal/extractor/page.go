package extractor

import (
	"io"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	maxPageText        = 5000
	maxYouTubeDesc     = 500
	unknownTitle       = "Unknown Title"
	xPostTitle         = "X Post"
	jsUnavailableTitle = "JavaScript is not available"
)

var jsBlockerPhrases = []string{
	"JavaScript is not available",
	"Please enable JavaScript",
	"enable JavaScript to view",
}

// pageMeta is what one HTML document yields.
type pageMeta struct {
	Title       string
	OGTitle     string
	SiteName    string
	Description string
	Duration    int
	Text        string
}

func (m pageMeta) title() string {
	if t := strings.TrimSpace(m.OGTitle); t != "" {
		return t
	}
	return strings.TrimSpace(m.Title)
}

var skipText = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Iframe:   true,
	atom.Head:     true,
	atom.Nav:      true,
	atom.Footer:   true,
}

func parsePage(r io.Reader) (pageMeta, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return pageMeta{}, err
	}
	var meta pageMeta
	var text []string

	var walk func(n *html.Node, skip bool)
	walk = func(n *html.Node, skip bool) {
		switch n.Type {
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Title:
				if meta.Title == "" && n.FirstChild != nil {
					meta.Title = strings.TrimSpace(n.FirstChild.Data)
				}
			case atom.Meta:
				meta.applyMeta(n)
			}
			skip = skip || skipText[n.DataAtom]
		case html.TextNode:
			if !skip {
				if t := strings.TrimSpace(n.Data); t != "" {
					text = append(text, t)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, skip)
		}
	}
	walk(doc, false)

	meta.Text = strings.Join(strings.Fields(strings.Join(text, " ")), " ")
	return meta, nil
}

func (m *pageMeta) applyMeta(n *html.Node) {
	var key, content string
	for _, a := range n.Attr {
		switch strings.ToLower(a.Key) {
		case "property", "name", "itemprop":
			if key == "" {
				key = strings.ToLower(strings.TrimSpace(a.Val))
			}
		case "content":
			content = strings.TrimSpace(a.Val)
		}
	}
	if key == "" || content == "" {
		return
	}
	switch key {
	case "og:title", "twitter:title":
		if m.OGTitle == "" {
			m.OGTitle = content
		}
	case "og:site_name":
		m.SiteName = content
	case "description", "og:description":
		if m.Description == "" {
			m.Description = content
		}
	case "og:video:duration", "video:duration", "duration":
		if m.Duration == 0 {
			m.Duration = parseDuration(content)
		}
	}
}

var isoDuration = regexp.MustCompile(`^P(?:(\d+)D)?T?(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// parseDuration accepts plain seconds or an ISO 8601 duration such as
// PT1H2M3S and returns seconds, or 0 when unparseable.
func parseDuration(s string) int {
	s = strings.ToUpper(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		return max(n, 0)
	}
	m := isoDuration.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	total := 0
	for i, mult := range []int{86400, 3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		v, _ := strconv.Atoi(m[i+1])
		total += v * mult
	}
	return total
}

// cleanPage applies the blocker and X/Twitter rules to a fetched page.
func cleanPage(rawURL string, meta pageMeta) PageContent {
	title := meta.title()
	content := meta.Text
	for _, p := range jsBlockerPhrases {
		if strings.Contains(content, p) {
			content = ""
			break
		}
	}
	if title == "" || strings.Contains(title, jsUnavailableTitle) {
		title = unknownTitle
	}
	if isXHost(rawURL) {
		if title == unknownTitle {
			title = xPostTitle
		}
		if content == "" {
			content = "View original post on X: " + rawURL
		}
	}
	return PageContent{URL: rawURL, Title: title, Content: truncateRunes(content, maxPageText)}
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
