package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nexuslog/internal/category"
	"nexuslog/internal/config"
	"nexuslog/internal/ingest"
	"nexuslog/internal/model"
	"nexuslog/internal/store"
	"nexuslog/internal/telegram"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// Store is the repository surface the API reads and writes.
type Store interface {
	Ping(ctx context.Context) error
	ListEntries(ctx context.Context, f store.EntryFilter) ([]store.Entry, error)
	GetEntry(ctx context.Context, id int64) (*store.Entry, error)
	DeleteEntry(ctx context.Context, id int64) error
	GetCategory(ctx context.Context, id int64) (*store.Category, error)
	Subcategories(ctx context.Context, parentID int64) ([]store.Category, error)
	CountTopLevelCategories(ctx context.Context) (int, error)
	CreateCategory(ctx context.Context, name, description string, parentID int64) (*store.Category, error)
	UpdateCategory(ctx context.Context, id int64, name, description string) (*store.Category, error)
	DeleteCategory(ctx context.Context, id int64) error
	ListContentIdeas(ctx context.Context, status string, limit int) ([]store.ContentIdea, error)
	UpdateContentIdea(ctx context.Context, id int64, u store.ContentIdeaUpdate) (*store.ContentIdea, error)
	ListProjects(ctx context.Context) ([]store.Project, error)
	CreateProject(ctx context.Context, p *store.Project) error
	ListConfig(ctx context.Context) ([]store.ConfigItem, error)
	SetConfig(ctx context.Context, key string, value json.RawMessage) (*store.ConfigItem, error)
	Stats(ctx context.Context) (store.Stats, error)
	RecentUsage(ctx context.Context, limit int) ([]store.UsageLog, error)
	UsageSummary(ctx context.Context, since time.Time) ([]store.ProviderUsage, error)
}

type CategoryTree interface {
	Tree(ctx context.Context) ([]category.Node, error)
}

type Ingester interface {
	Ingest(ctx context.Context, req ingest.Request) ingest.Result
	CreateManual(ctx context.Context, m ingest.ManualEntry) (ingest.SavedItem, error)
}

type Speaker interface {
	Speak(ctx context.Context, text string) []byte
}

// ProviderRoster reports which adapters the router was built with.
type ProviderRoster interface {
	Adapters() []string
	Skipped() []string
}

type WebhookInspector interface {
	Configured() bool
	WebhookInfo(ctx context.Context) (telegram.WebhookInfo, error)
}

type MetricsObserver interface {
	ObserveHTTP(route, method string, status int, duration time.Duration)
}

type Dependencies struct {
	Store      Store
	Categories CategoryTree
	Ingester   Ingester
	Speaker    Speaker
	Providers  ProviderRoster
	Telegram   WebhookInspector
	// Webhook receives Telegram updates; it checks its own secret token.
	Webhook        http.Handler
	Files          http.Handler
	StorageBackend string
	SheetsEnabled  bool
	Metrics        MetricsObserver
	MetricsHandler http.Handler
	Now            func() time.Time
}

type server struct {
	cfg          config.Config
	logger       *slog.Logger
	store        Store
	categories   CategoryTree
	ingester     Ingester
	speaker      Speaker
	providers    ProviderRoster
	telegram     WebhookInspector
	storage      string
	sheets       bool
	metrics      MetricsObserver
	metricsRoute http.Handler
	now          func() time.Time
}

type ctxKey string

const (
	requestIDHeader  = "X-Request-Id"
	requestIDContext = ctxKey("request_id")
	maxJSONBodyBytes = 1 << 20
	webhookPath      = "/api/telegram/webhook"
)

func NewServer(cfg config.Config, logger *slog.Logger, deps Dependencies) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Store == nil || deps.Categories == nil || deps.Ingester == nil {
		panic("httpapi: store, categories and ingester are required")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	s := &server{
		cfg:          cfg,
		logger:       logger,
		store:        deps.Store,
		categories:   deps.Categories,
		ingester:     deps.Ingester,
		speaker:      deps.Speaker,
		providers:    deps.Providers,
		telegram:     deps.Telegram,
		storage:      deps.StorageBackend,
		sheets:       deps.SheetsEnabled,
		metrics:      deps.Metrics,
		metricsRoute: deps.MetricsHandler,
		now:          now,
	}

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, "not_found", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
	})

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(s.authMiddleware)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if s.metricsRoute != nil {
		r.Handle("/metrics", s.metricsRoute)
	}
	if deps.Files != nil && cfg.Storage.PublicPrefix != "" {
		r.Handle(cfg.Storage.PublicPrefix+"/*", http.StripPrefix(cfg.Storage.PublicPrefix, deps.Files))
	}

	r.Route("/api", func(r chi.Router) {
		if deps.Webhook != nil {
			r.Method(http.MethodPost, "/telegram/webhook", deps.Webhook)
		}
		r.Get("/health", s.handleHealthz)
		r.Get("/system-status", s.handleSystemStatus)

		r.Get("/entries", s.handleListEntries)
		r.Post("/entries", s.handleCreateEntry)
		r.Get("/entries/{id}", s.handleGetEntry)
		r.Delete("/entries/{id}", s.handleDeleteEntry)

		r.Get("/categories", s.handleListCategories)
		r.Post("/categories", s.handleCreateCategory)
		r.Put("/categories/{id}", s.handleUpdateCategory)
		r.Delete("/categories/{id}", s.handleDeleteCategory)
		r.Get("/categories/{id}/subcategories", s.handleSubcategories)

		r.Get("/content-ideas", s.handleListContentIdeas)
		r.Put("/content-ideas/{id}", s.handleUpdateContentIdea)

		r.Get("/projects", s.handleListProjects)
		r.Post("/projects", s.handleCreateProject)

		r.Get("/config", s.handleListConfig)
		r.Put("/config/{key}", s.handleSetConfig)

		r.Get("/stats", s.handleStats)
		r.Get("/usage", s.handleUsage)

		r.Post("/ingest", s.handleIngest)
		r.Post("/tts", s.handleSpeech)
	})

	return r
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.HealthResponse{OK: true})
}

func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "not_ready", "database check failed", detailsForError(err))
		return
	}
	writeJSON(w, http.StatusOK, model.ReadyResponse{OK: true, ServiceName: "NexusLog"})
}

func (s *server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	resp := model.SystemStatusResponse{
		Providers: model.ProviderStatus{Active: []string{}, Skipped: []string{}},
		Storage:   s.storage,
		Sheets:    s.sheets,
	}

	dbCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	err := s.store.Ping(dbCtx)
	cancel()
	resp.Database = model.ComponentStatus{OK: err == nil}
	if err != nil {
		resp.Database.Error = err.Error()
	}

	if s.providers != nil {
		resp.Providers.Active = append(resp.Providers.Active, s.providers.Adapters()...)
		resp.Providers.Skipped = append(resp.Providers.Skipped, s.providers.Skipped()...)
	}

	if s.telegram != nil && s.telegram.Configured() {
		resp.Telegram.Configured = true
		tgCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		info, err := s.telegram.WebhookInfo(tgCtx)
		cancel()
		if err != nil {
			resp.Telegram.Error = err.Error()
		} else {
			resp.Telegram.Webhook = &model.WebhookStatus{
				URL:                info.URL,
				PendingUpdateCount: info.PendingUpdateCount,
				LastErrorMessage:   info.LastErrorMessage,
			}
		}
	}

	resp.OK = resp.Database.OK && len(resp.Providers.Active) > 0
	writeJSON(w, http.StatusOK, resp)
}

// decodeJSON reads a single JSON object into dst and writes the error
// response itself when that fails.
func (s *server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	defer func() { _ = r.Body.Close() }()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		s.handleJSONDecodeError(w, r, err)
		return false
	}
	if err := ensureBodyFullyConsumed(decoder); err != nil {
		s.handleJSONDecodeError(w, r, err)
		return false
	}
	return true
}

func (s *server) handleJSONDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		s.writeError(w, r, http.StatusRequestEntityTooLarge, "request_too_large", "JSON body too large", nil)
		return
	}
	s.writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body", nil)
}

type upstreamError interface {
	error
	HTTPStatus() int
}

func (s *server) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	message := "request failed"
	details := detailsForError(err)

	var upstreamErr upstreamError
	switch {
	case errors.Is(err, store.ErrEntryNotFound),
		errors.Is(err, store.ErrCategoryNotFound),
		errors.Is(err, store.ErrContentIdeaNotFound),
		errors.Is(err, store.ErrProjectNotFound),
		errors.Is(err, store.ErrConfigNotFound):
		status = http.StatusNotFound
		code = "not_found"
		message = err.Error()
		details = nil
	case errors.Is(err, store.ErrProtectedCategory):
		status = http.StatusConflict
		code = "protected_category"
		message = err.Error()
		details = nil
	case errors.Is(err, store.ErrCategoryExists):
		status = http.StatusConflict
		code = "conflict"
		message = err.Error()
		details = nil
	case errors.Is(err, ingest.ErrEmptyContent):
		status = http.StatusBadRequest
		code = "invalid_request"
		message = err.Error()
		details = nil
	case errors.As(err, &upstreamErr):
		status = http.StatusBadGateway
		code = "upstream_request_failed"
		message = "upstream request failed"
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		code = "timeout"
		message = "request timed out"
	case errors.Is(err, context.Canceled):
		status = 499
		code = "canceled"
		message = "request canceled"
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "request_id", requestIDFromContext(r.Context()), "error", err)
	}
	s.writeError(w, r, status, code, message, details)
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	if rid := requestIDFromContext(r.Context()); rid != "" {
		w.Header().Set(requestIDHeader, rid)
	}
	writeJSON(w, status, model.ErrorResponse{
		Error:     model.APIError{Code: code, Message: message, Details: details},
		RequestID: requestIDFromContext(r.Context()),
	})
}

func (s *server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), requestIDContext, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		duration := time.Since(started)
		if s.metrics != nil {
			s.metrics.ObserveHTTP(route, r.Method, status, duration)
		}

		s.logger.Info("http_request",
			"request_id", requestIDFromContext(r.Context()),
			"method", r.Method,
			"route", route,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", duration.Milliseconds(),
		)
	})
}

func (s *server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "request_id", requestIDFromContext(r.Context()), "panic", rec)
				s.writeError(w, r, http.StatusInternalServerError, "internal_error", "internal server error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIToken == "" || s.isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		token, hasHeader, ok := extractBearerToken(r.Header.Get("Authorization"))
		if hasHeader && !ok {
			s.writeError(w, r, http.StatusUnauthorized, "unauthorized", "Authorization must be Bearer <api_token>", nil)
			return
		}
		if token == "" {
			s.writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing bearer token", nil)
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.APIToken)) != 1 {
			s.writeError(w, r, http.StatusUnauthorized, "unauthorized", "invalid bearer token", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) isPublicPath(path string) bool {
	switch path {
	case "/healthz", "/readyz", "/metrics", "/api/health", webhookPath:
		return true
	}
	prefix := s.cfg.Storage.PublicPrefix
	return prefix != "" && strings.HasPrefix(path, prefix+"/")
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func ensureBodyFullyConsumed(decoder *json.Decoder) error {
	var extra any
	if err := decoder.Decode(&extra); err != io.EOF {
		if err == nil {
			return fmt.Errorf("multiple JSON values")
		}
		return err
	}
	return nil
}

func requestIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(requestIDContext).(string)
	return value
}

func extractBearerToken(header string) (token string, hasHeader bool, ok bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false, true
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", true, false
	}
	token = strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", true, false
	}
	return token, true, true
}

func (s *server) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "id must be a positive integer", nil)
		return 0, false
	}
	return id, true
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

func detailsForError(err error) map[string]any {
	if err == nil {
		return nil
	}
	details := map[string]any{"error": err.Error()}
	var upstreamErr upstreamError
	if errors.As(err, &upstreamErr) {
		details["upstream_status"] = upstreamErr.HTTPStatus()
	}
	return details
}
