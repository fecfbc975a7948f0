package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"nexuslog/internal/provider"
)

const (
	DefaultProbeTimeout = 8 * time.Second
	DefaultWorkers      = 4

	imageTimeout  = 30 * time.Second
	maxPageBytes  = 4 << 20
	maxImageBytes = 20 << 20
	userAgent     = "Mozilla/5.0 (compatible; NexusLog/1.0)"

	defaultOEmbedURL = "https://www.youtube.com/oembed"
	defaultWatchURL  = "https://www.youtube.com/watch"
)

// Describer analyzes an image; an empty answer means the analysis failed.
type Describer interface {
	Describe(ctx context.Context, m provider.Media, prompt string) string
}

type YouTubeContent struct {
	URL             string `json:"url"`
	VideoID         string `json:"video_id"`
	Title           string `json:"title"`
	Channel         string `json:"channel"`
	Description     string `json:"description,omitempty"`
	DurationSeconds int    `json:"duration_seconds"`
}

type VideoContent struct {
	URL             string `json:"url"`
	Platform        string `json:"platform"`
	Title           string `json:"title"`
	DurationSeconds int    `json:"duration_seconds"`
}

type PageContent struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type ImageAnalysis struct {
	URL      string `json:"url"`
	Analysis string `json:"analysis"`
}

type ReplyContext struct {
	Text        string `json:"text"`
	HasPhoto    bool   `json:"has_photo"`
	HasVideo    bool   `json:"has_video"`
	HasVoice    bool   `json:"has_voice"`
	HasDocument bool   `json:"has_document"`
}

type Input struct {
	Text          string
	Transcription string
	// Image is an attached picture to analyze; nil when there is none.
	Image *provider.Media
	Reply *ReplyContext
}

// Result is everything extracted for one inbound message.
type Result struct {
	Text             string
	Transcription    string
	URLs             []string
	YouTube          []YouTubeContent
	Videos           []VideoContent
	Pages            []PageContent
	ImageAnalysis    string
	ImageURLAnalyses []ImageAnalysis
	Reply            *ReplyContext
	Notes            []string
}

// SourceURL is the first extracted link, preferring YouTube, then pages,
// then any detected URL.
func (r Result) SourceURL() string {
	switch {
	case len(r.YouTube) > 0:
		return r.YouTube[0].URL
	case len(r.Pages) > 0:
		return r.Pages[0].URL
	case len(r.Videos) > 0:
		return r.Videos[0].URL
	case len(r.URLs) > 0:
		return r.URLs[0]
	default:
		return ""
	}
}

type Option func(*Extractor)

func WithHTTPClient(c *http.Client) Option {
	return func(e *Extractor) {
		if c != nil {
			e.httpClient = c
		}
	}
}

func WithProbeTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.probeTimeout = d
		}
	}
}

func WithWorkers(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithYouTubeEndpoints overrides the oEmbed and watch page URLs.
func WithYouTubeEndpoints(oembedURL, watchURL string) Option {
	return func(e *Extractor) {
		if oembedURL != "" {
			e.oembedURL = oembedURL
		}
		if watchURL != "" {
			e.watchURL = watchURL
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

type Extractor struct {
	httpClient   *http.Client
	describer    Describer
	pool         *ants.Pool
	workers      int
	probeTimeout time.Duration
	oembedURL    string
	watchURL     string
	logger       *slog.Logger
}

func New(describer Describer, opts ...Option) (*Extractor, error) {
	e := &Extractor{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		describer:    describer,
		workers:      DefaultWorkers,
		probeTimeout: DefaultProbeTimeout,
		oembedURL:    defaultOEmbedURL,
		watchURL:     defaultWatchURL,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	pool, err := ants.NewPool(e.workers)
	if err != nil {
		return nil, fmt.Errorf("create extractor pool: %w", err)
	}
	e.pool = pool
	return e, nil
}

// Release stops the worker pool.
func (e *Extractor) Release() {
	e.pool.Release()
}

type urlOutcome struct {
	youtube *YouTubeContent
	video   *VideoContent
	page    *PageContent
	image   *ImageAnalysis
	note    string
}

// Extract enriches one inbound message. It never fails: every problem is
// reported as a note and the remaining inputs are still processed.
func (e *Extractor) Extract(ctx context.Context, in Input) Result {
	res := Result{
		Text:          strings.TrimSpace(in.Text),
		Transcription: strings.TrimSpace(in.Transcription),
	}
	combined := strings.TrimSpace(res.Text + " " + res.Transcription)

	if combined != "" {
		res.URLs = DetectURLs(combined)
		imagePrompt := StripURLs(combined)

		outcomes := make([]urlOutcome, len(res.URLs))
		var wg sync.WaitGroup
		for i, u := range res.URLs {
			wg.Add(1)
			task := func() {
				defer wg.Done()
				outcomes[i] = e.extractURL(ctx, u, imagePrompt)
			}
			if err := e.pool.Submit(task); err != nil {
				e.logger.Warn("extractor pool unavailable, running inline", "error", err)
				task()
			}
		}
		wg.Wait()

		for _, o := range outcomes {
			switch {
			case o.youtube != nil:
				res.YouTube = append(res.YouTube, *o.youtube)
			case o.video != nil:
				res.Videos = append(res.Videos, *o.video)
			case o.page != nil:
				res.Pages = append(res.Pages, *o.page)
			case o.image != nil:
				res.ImageURLAnalyses = append(res.ImageURLAnalyses, *o.image)
			}
			if o.note != "" {
				res.Notes = append(res.Notes, o.note)
			}
		}
	}

	if in.Image != nil && !in.Image.Empty() {
		prompt := ""
		if combined != "" && IsQuestion(combined) {
			prompt = combined
		}
		if analysis := strings.TrimSpace(e.describe(ctx, *in.Image, prompt)); analysis != "" {
			res.ImageAnalysis = analysis
			res.Notes = append(res.Notes, "Image analyzed with vision")
		} else {
			res.Notes = append(res.Notes, "Image analysis failed: no description returned")
		}
	}

	if in.Reply != nil {
		reply := *in.Reply
		res.Reply = &reply
		res.Notes = append(res.Notes, "Reply context captured")
	}
	return res
}

func (e *Extractor) describe(ctx context.Context, m provider.Media, prompt string) string {
	if e.describer == nil {
		return ""
	}
	return e.describer.Describe(ctx, m, prompt)
}

func (e *Extractor) extractURL(ctx context.Context, u, imagePrompt string) urlOutcome {
	switch Classify(u) {
	case KindYouTube:
		yt, err := e.youtube(ctx, u)
		if err != nil {
			return urlOutcome{note: "YouTube extraction failed: " + err.Error()}
		}
		return urlOutcome{youtube: &yt, note: "Extracted YouTube: " + yt.Title}
	case KindImage:
		analysis, err := e.imageURL(ctx, u, imagePrompt)
		if err != nil {
			return urlOutcome{note: "Image URL analysis failed: " + err.Error()}
		}
		return urlOutcome{image: &analysis, note: "Analyzed image from URL"}
	}

	probeCtx, cancel := context.WithTimeout(ctx, e.probeTimeout)
	defer cancel()
	meta, err := e.fetchPage(probeCtx, u)
	if err != nil {
		e.logger.Debug("url extraction failed", "url", u, "error", err)
		return urlOutcome{note: "URL extraction failed: " + err.Error()}
	}
	if meta.Duration > 0 {
		platform := meta.SiteName
		if platform == "" {
			platform = hostOf(u)
		}
		title := meta.title()
		if title == "" {
			title = unknownTitle
		}
		v := VideoContent{URL: u, Platform: platform, Title: title, DurationSeconds: meta.Duration}
		return urlOutcome{video: &v, note: fmt.Sprintf("Extracted video: %s (%s)", v.Title, v.Platform)}
	}
	page := cleanPage(u, meta)
	return urlOutcome{page: &page, note: "Extracted URL: " + page.Title}
}

func (e *Extractor) get(ctx context.Context, rawURL string, limit int64) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, "", err
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func (e *Extractor) fetchPage(ctx context.Context, rawURL string) (pageMeta, error) {
	body, _, err := e.get(ctx, rawURL, maxPageBytes)
	if err != nil {
		return pageMeta{}, err
	}
	return parsePage(bytes.NewReader(body))
}

func (e *Extractor) youtube(ctx context.Context, rawURL string) (YouTubeContent, error) {
	id := YouTubeID(rawURL)
	if id == "" {
		return YouTubeContent{}, errors.New("invalid YouTube URL")
	}
	canonical := "https://www.youtube.com/watch?v=" + id
	out := YouTubeContent{URL: rawURL, VideoID: id}

	q := url.Values{"url": {canonical}, "format": {"json"}}
	body, _, err := e.get(ctx, e.oembedURL+"?"+q.Encode(), 1<<20)
	if err != nil {
		return YouTubeContent{}, fmt.Errorf("oembed: %w", err)
	}
	var oembed struct {
		Title      string `json:"title"`
		AuthorName string `json:"author_name"`
	}
	if err := json.Unmarshal(body, &oembed); err != nil {
		return YouTubeContent{}, fmt.Errorf("oembed: %w", err)
	}
	out.Title = strings.TrimSpace(oembed.Title)
	if out.Title == "" {
		out.Title = unknownTitle
	}
	out.Channel = strings.TrimSpace(oembed.AuthorName)
	if out.Channel == "" {
		out.Channel = "Unknown"
	}

	// Description and duration are optional.
	meta, err := e.fetchPage(ctx, e.watchURL+"?v="+id)
	if err != nil {
		e.logger.Debug("youtube watch page unavailable", "video_id", id, "error", err)
		return out, nil
	}
	out.Description = truncateRunes(meta.Description, maxYouTubeDesc)
	out.DurationSeconds = meta.Duration
	return out, nil
}

func (e *Extractor) imageURL(ctx context.Context, rawURL, prompt string) (ImageAnalysis, error) {
	target := UpgradeTwitterImage(rawURL)
	ctx, cancel := context.WithTimeout(ctx, imageTimeout)
	defer cancel()

	data, contentType, err := e.get(ctx, target, maxImageBytes)
	if err != nil {
		return ImageAnalysis{}, err
	}
	if len(data) == 0 {
		return ImageAnalysis{}, errors.New("empty image")
	}
	mimeType, _, _ := mime.ParseMediaType(contentType)
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = http.DetectContentType(data)
		if !strings.HasPrefix(mimeType, "image/") {
			mimeType = "image/png"
		}
	}
	name := path.Base(strings.SplitN(target, "?", 2)[0])
	analysis := strings.TrimSpace(e.describe(ctx, provider.Media{Data: data, MIMEType: mimeType, FileName: name}, prompt))
	if analysis == "" {
		return ImageAnalysis{}, errors.New("no description returned")
	}
	return ImageAnalysis{URL: target, Analysis: analysis}, nil
}
