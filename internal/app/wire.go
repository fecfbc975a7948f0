// Package app holds the wiring shared by the server and the admin CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"nexuslog/internal/config"
	"nexuslog/internal/filestore"
	"nexuslog/internal/observability"
	"nexuslog/internal/provider"
	"nexuslog/internal/provider/anthropic"
	"nexuslog/internal/provider/gemini"
	"nexuslog/internal/provider/ollama"
	"nexuslog/internal/provider/openaicompat"
	"nexuslog/internal/provider/replicate"
	"nexuslog/internal/sheets"
	"nexuslog/internal/telegram"
	geminiapi "nexuslog/internal/upstream/gemini"
	openaiapi "nexuslog/internal/upstream/openai"
	replicateapi "nexuslog/internal/upstream/replicate"
)

func NewLogger(level string) *slog.Logger {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn", "warning":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel}))
}

// NewHTTPClient is the pooled client every upstream API shares.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// Adapters builds one adapter per entry of cfg.Order, in that order.
// Adapters without credentials are still returned; the router drops them.
func Adapters(cfg config.Providers, httpClient *http.Client, metrics *observability.Metrics) ([]provider.Adapter, error) {
	adapters := make([]provider.Adapter, 0, len(cfg.Order))
	for _, name := range cfg.Order {
		switch name {
		case "gemini":
			opts := []geminiapi.Option{geminiapi.WithObserver(metrics.Upstream("gemini"))}
			if cfg.GeminiBaseURL != "" {
				opts = append(opts, geminiapi.WithBaseURL(cfg.GeminiBaseURL))
			}
			client := geminiapi.New(cfg.GoogleAPIKey, httpClient, opts...)
			adapters = append(adapters, gemini.New(client, gemini.Config{
				Models:   cfg.GeminiModels,
				TTSModel: cfg.GeminiTTSModel,
				Voice:    cfg.GeminiTTSVoice,
			}))
		case "ollama":
			a, err := ollama.New(ollama.Config{
				Enabled: cfg.OllamaEnabled,
				BaseURL: cfg.OllamaBaseURL,
				Model:   cfg.OllamaModel,
			})
			if err != nil {
				return nil, err
			}
			adapters = append(adapters, a)
		case "replicate":
			opts := []replicateapi.Option{replicateapi.WithObserver(metrics.Upstream("replicate"))}
			if cfg.ReplicateBaseURL != "" {
				opts = append(opts, replicateapi.WithBaseURL(cfg.ReplicateBaseURL))
			}
			client := replicateapi.New(cfg.ReplicateAPIKey, httpClient, opts...)
			adapters = append(adapters, replicate.New(client, replicate.Config{}))
		case "openai":
			client := openaiapi.New(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, httpClient, openaiapi.WithObserver(metrics.Upstream("openai")))
			adapters = append(adapters, openaicompat.New(client, openaicompat.Config{
				APIKey:             cfg.OpenAIAPIKey,
				ChatModels:         cfg.OpenAIModels,
				TranscriptionModel: cfg.OpenAITranscriptionModel,
				TTSModel:           cfg.OpenAITTSModel,
			}))
		case "anthropic":
			adapters = append(adapters, anthropic.New(anthropic.Config{
				APIKey: cfg.AnthropicAPIKey,
				Models: cfg.AnthropicModels,
			}))
		default:
			return nil, fmt.Errorf("unknown provider %q", name)
		}
	}
	return adapters, nil
}

// FileStore opens the configured backend. The returned handler serves local
// uploads and is nil for blob storage.
func FileStore(ctx context.Context, cfg config.Storage, logger *slog.Logger) (*filestore.Store, http.Handler, error) {
	if cfg.Mode == config.StorageBlob {
		backend, err := filestore.NewS3(ctx, filestore.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretKey,
			PublicBaseURL:   cfg.S3PublicBaseURL,
		})
		if err != nil {
			return nil, nil, err
		}
		return filestore.New(backend, logger), nil, nil
	}
	backend, err := filestore.NewLocal(cfg.LocalDir, cfg.PublicPrefix)
	if err != nil {
		return nil, nil, err
	}
	return filestore.New(backend, logger), http.FileServer(http.Dir(cfg.LocalDir)), nil
}

// Sheets returns nil when no spreadsheet is configured.
func Sheets(cfg config.Sheets, httpClient *http.Client, metrics *observability.Metrics) (*sheets.Client, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	account, err := sheets.LoadServiceAccount(cfg.CredentialsPath)
	if err != nil {
		return nil, err
	}
	return sheets.New(cfg.SheetID, account, httpClient, sheets.WithObserver(metrics.Upstream("sheets")))
}

func Telegram(cfg config.Telegram, httpClient *http.Client, metrics *observability.Metrics) *telegram.Client {
	opts := []telegram.Option{telegram.WithObserver(metrics.Upstream("telegram"))}
	if cfg.APIURL != "" {
		opts = append(opts, telegram.WithBaseURL(cfg.APIURL))
	}
	return telegram.New(cfg.BotToken, httpClient, opts...)
}
