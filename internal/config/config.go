package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	cenv "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StorageLocal = "local"
	StorageBlob  = "blob"
)

// prefixes are accepted aliases for every key; the bare key wins.
var prefixes = []string{"NL_", "nl_"}

type Config struct {
	ListenAddr     string
	LogLevel       string
	APIToken       string
	RequestTimeout time.Duration
	IngestTimeout  time.Duration
	MaxUploadBytes int64

	Database  Database
	Providers Providers
	Telegram  Telegram
	Storage   Storage
	Sheets    Sheets
	Extractor Extractor

	ClassifyTimeout       time.Duration
	MaxTopLevelCategories int
}

type Database struct {
	Driver       string
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

type Providers struct {
	Order []string

	GoogleAPIKey   string
	GeminiBaseURL  string
	GeminiModels   []string
	GeminiTTSModel string
	GeminiTTSVoice string

	OllamaEnabled bool
	OllamaBaseURL string
	OllamaModel   string

	ReplicateAPIKey  string
	ReplicateBaseURL string

	OpenAIAPIKey             string
	OpenAIBaseURL            string
	OpenAIModels             []string
	OpenAITranscriptionModel string
	OpenAITTSModel           string

	AnthropicAPIKey string
	AnthropicModels []string
}

type Telegram struct {
	BotToken       string
	APIURL         string
	WebhookSecret  string
	AllowedChatIDs []int64
	RedisURL       string
	DedupTTL       time.Duration
}

type Storage struct {
	Mode            string
	LocalDir        string
	PublicPrefix    string
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3AccessKeyID   string
	S3SecretKey     string
	S3PublicBaseURL string
}

type Sheets struct {
	CredentialsPath string
	SheetID         string
}

func (s Sheets) Enabled() bool {
	return s.CredentialsPath != "" && s.SheetID != ""
}

type Extractor struct {
	ProbeTimeout time.Duration
	Workers      int
}

type envConfig struct {
	ListenAddr            string `env:"LISTEN_ADDR" envDefault:":8080"`
	LogLevel              string `env:"LOG_LEVEL" envDefault:"info"`
	APIToken              string `env:"API_TOKEN"`
	RequestTimeoutSeconds int    `env:"REQUEST_TIMEOUT_SECONDS" envDefault:"30"`
	IngestTimeoutSeconds  int    `env:"INGEST_TIMEOUT_SECONDS" envDefault:"120"`
	MaxUploadBytes        int64  `env:"MAX_UPLOAD_BYTES" envDefault:"26214400"`

	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"sqlite"`
	DatabaseURL    string `env:"DATABASE_URL" envDefault:"nexuslog.db"`
	DBMaxOpenConns int    `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	DBMaxIdleConns int    `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`

	ProviderOrder []string `env:"PROVIDER_ORDER" envDefault:"gemini,ollama,replicate,openai,anthropic"`

	GoogleAPIKey   string   `env:"GOOGLE_AI_API_KEY"`
	GeminiBaseURL  string   `env:"GEMINI_BASE_URL"`
	GeminiModels   []string `env:"GEMINI_MODELS"`
	GeminiTTSModel string   `env:"GEMINI_TTS_MODEL"`
	GeminiTTSVoice string   `env:"GEMINI_TTS_VOICE"`

	OllamaEnabled bool   `env:"OLLAMA_ENABLED" envDefault:"false"`
	OllamaBaseURL string `env:"OLLAMA_BASE_URL" envDefault:"http://localhost:11434"`
	OllamaModel   string `env:"OLLAMA_MODEL"`

	ReplicateAPIKey  string `env:"REPLICATE_API_KEY"`
	ReplicateBaseURL string `env:"REPLICATE_BASE_URL"`

	OpenAIAPIKey             string   `env:"OPENAI_API_KEY"`
	OpenAIBaseURL            string   `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	OpenAIModels             []string `env:"OPENAI_MODELS"`
	OpenAITranscriptionModel string   `env:"OPENAI_TRANSCRIPTION_MODEL"`
	OpenAITTSModel           string   `env:"OPENAI_TTS_MODEL"`

	AnthropicAPIKey string   `env:"ANTHROPIC_API_KEY"`
	AnthropicModels []string `env:"ANTHROPIC_MODELS"`

	TelegramBotToken       string  `env:"TELEGRAM_BOT_TOKEN"`
	TelegramAPIURL         string  `env:"TELEGRAM_API_URL"`
	TelegramWebhookSecret  string  `env:"TELEGRAM_WEBHOOK_SECRET"`
	TelegramAllowedChatIDs []int64 `env:"TELEGRAM_ALLOWED_CHAT_IDS"`
	RedisURL               string  `env:"REDIS_URL"`
	UpdateDedupTTLSeconds  int     `env:"UPDATE_DEDUP_TTL_SECONDS" envDefault:"86400"`

	StorageMode         string `env:"STORAGE_MODE" envDefault:"local"`
	StorageLocalDir     string `env:"STORAGE_LOCAL_DIR" envDefault:"static/uploads"`
	StoragePublicPrefix string `env:"STORAGE_PUBLIC_PREFIX" envDefault:"/static/uploads"`
	S3Bucket            string `env:"S3_BUCKET"`
	S3Region            string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint          string `env:"S3_ENDPOINT"`
	S3AccessKeyID       string `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey   string `env:"S3_SECRET_ACCESS_KEY"`
	S3PublicBaseURL     string `env:"S3_PUBLIC_BASE_URL"`

	SheetsCredentialsPath string `env:"GOOGLE_SHEETS_CREDENTIALS_PATH"`
	SheetID               string `env:"GOOGLE_SHEET_ID"`

	ExtractorProbeTimeoutSeconds int `env:"EXTRACTOR_PROBE_TIMEOUT_SECONDS" envDefault:"5"`
	ExtractorWorkers             int `env:"EXTRACTOR_WORKERS" envDefault:"4"`
	ClassifyTimeoutSeconds       int `env:"CLASSIFY_TIMEOUT_SECONDS" envDefault:"60"`
	MaxTopLevelCategories        int `env:"MAX_TOP_LEVEL_CATEGORIES" envDefault:"10"`
}

// Load reads .env when present, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return Parse(environment(os.Environ()))
}

// Parse builds a Config from an explicit environment map.
func Parse(environ map[string]string) (Config, error) {
	var raw envConfig
	if err := cenv.ParseWithOptions(&raw, cenv.Options{Environment: environ}); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:     strings.TrimSpace(raw.ListenAddr),
		LogLevel:       strings.ToLower(strings.TrimSpace(raw.LogLevel)),
		APIToken:       strings.TrimSpace(raw.APIToken),
		RequestTimeout: seconds(raw.RequestTimeoutSeconds),
		IngestTimeout:  seconds(raw.IngestTimeoutSeconds),
		MaxUploadBytes: raw.MaxUploadBytes,
		Database: Database{
			Driver:       strings.ToLower(strings.TrimSpace(raw.DatabaseDriver)),
			URL:          strings.TrimSpace(raw.DatabaseURL),
			MaxOpenConns: raw.DBMaxOpenConns,
			MaxIdleConns: raw.DBMaxIdleConns,
		},
		Providers: Providers{
			Order:                    lowerList(raw.ProviderOrder),
			GoogleAPIKey:             strings.TrimSpace(raw.GoogleAPIKey),
			GeminiBaseURL:            trimURL(raw.GeminiBaseURL),
			GeminiModels:             trimList(raw.GeminiModels),
			GeminiTTSModel:           strings.TrimSpace(raw.GeminiTTSModel),
			GeminiTTSVoice:           strings.TrimSpace(raw.GeminiTTSVoice),
			OllamaEnabled:            raw.OllamaEnabled,
			OllamaBaseURL:            trimURL(raw.OllamaBaseURL),
			OllamaModel:              strings.TrimSpace(raw.OllamaModel),
			ReplicateAPIKey:          strings.TrimSpace(raw.ReplicateAPIKey),
			ReplicateBaseURL:         trimURL(raw.ReplicateBaseURL),
			OpenAIAPIKey:             strings.TrimSpace(raw.OpenAIAPIKey),
			OpenAIBaseURL:            trimURL(raw.OpenAIBaseURL),
			OpenAIModels:             trimList(raw.OpenAIModels),
			OpenAITranscriptionModel: strings.TrimSpace(raw.OpenAITranscriptionModel),
			OpenAITTSModel:           strings.TrimSpace(raw.OpenAITTSModel),
			AnthropicAPIKey:          strings.TrimSpace(raw.AnthropicAPIKey),
			AnthropicModels:          trimList(raw.AnthropicModels),
		},
		Telegram: Telegram{
			BotToken:       strings.TrimSpace(raw.TelegramBotToken),
			APIURL:         trimURL(raw.TelegramAPIURL),
			WebhookSecret:  strings.TrimSpace(raw.TelegramWebhookSecret),
			AllowedChatIDs: raw.TelegramAllowedChatIDs,
			RedisURL:       strings.TrimSpace(raw.RedisURL),
			DedupTTL:       seconds(raw.UpdateDedupTTLSeconds),
		},
		Storage: Storage{
			Mode:            strings.ToLower(strings.TrimSpace(raw.StorageMode)),
			LocalDir:        strings.TrimSpace(raw.StorageLocalDir),
			PublicPrefix:    strings.TrimRight(strings.TrimSpace(raw.StoragePublicPrefix), "/"),
			S3Bucket:        strings.TrimSpace(raw.S3Bucket),
			S3Region:        strings.TrimSpace(raw.S3Region),
			S3Endpoint:      trimURL(raw.S3Endpoint),
			S3AccessKeyID:   strings.TrimSpace(raw.S3AccessKeyID),
			S3SecretKey:     strings.TrimSpace(raw.S3SecretAccessKey),
			S3PublicBaseURL: trimURL(raw.S3PublicBaseURL),
		},
		Sheets: Sheets{
			CredentialsPath: strings.TrimSpace(raw.SheetsCredentialsPath),
			SheetID:         strings.TrimSpace(raw.SheetID),
		},
		Extractor: Extractor{
			ProbeTimeout: seconds(raw.ExtractorProbeTimeoutSeconds),
			Workers:      raw.ExtractorWorkers,
		},
		ClassifyTimeout:       seconds(raw.ClassifyTimeoutSeconds),
		MaxTopLevelCategories: raw.MaxTopLevelCategories,
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("LISTEN_ADDR must not be empty")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("LOG_LEVEL must be one of debug, info, warn, error")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("REQUEST_TIMEOUT_SECONDS must be > 0")
	}
	if c.IngestTimeout <= 0 {
		return errors.New("INGEST_TIMEOUT_SECONDS must be > 0")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be > 0")
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return errors.New("DATABASE_DRIVER must be postgres or sqlite")
	}
	if c.Database.URL == "" {
		return errors.New("DATABASE_URL must not be empty")
	}
	for _, name := range c.Providers.Order {
		switch name {
		case "gemini", "ollama", "replicate", "openai", "anthropic":
		default:
			return fmt.Errorf("PROVIDER_ORDER contains unknown provider %q", name)
		}
	}
	switch c.Storage.Mode {
	case StorageLocal:
		if c.Storage.LocalDir == "" {
			return errors.New("STORAGE_LOCAL_DIR must not be empty")
		}
	case StorageBlob:
		if c.Storage.S3Bucket == "" {
			return errors.New("S3_BUCKET must be set when STORAGE_MODE is blob")
		}
	default:
		return errors.New("STORAGE_MODE must be local or blob")
	}
	if c.Telegram.DedupTTL <= 0 {
		return errors.New("UPDATE_DEDUP_TTL_SECONDS must be > 0")
	}
	if c.Extractor.ProbeTimeout <= 0 {
		return errors.New("EXTRACTOR_PROBE_TIMEOUT_SECONDS must be > 0")
	}
	if c.Extractor.Workers <= 0 {
		return errors.New("EXTRACTOR_WORKERS must be > 0")
	}
	if c.ClassifyTimeout <= 0 {
		return errors.New("CLASSIFY_TIMEOUT_SECONDS must be > 0")
	}
	if c.MaxTopLevelCategories <= 0 {
		return errors.New("MAX_TOP_LEVEL_CATEGORIES must be > 0")
	}
	return nil
}

// environment turns KEY=VALUE pairs into a map, filling bare keys from their
// NL_/nl_ aliases.
func environment(pairs []string) map[string]string {
	env := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			env[k] = v
		}
	}
	aliases := map[string]string{}
	for k, v := range env {
		for _, p := range prefixes {
			if bare, found := strings.CutPrefix(k, p); found && bare != "" {
				if _, set := env[bare]; !set {
					aliases[bare] = v
				}
			}
		}
	}
	for k, v := range aliases {
		env[k] = v
	}
	return env
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func trimURL(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "/")
}

func trimList(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func lowerList(in []string) []string {
	out := trimList(in)
	for i, s := range out {
		out[i] = strings.ToLower(s)
	}
	return out
}
