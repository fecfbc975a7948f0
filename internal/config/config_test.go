package config

import (
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(map[string]string{})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.Database.Driver != "sqlite" || cfg.Storage.Mode != StorageLocal {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if got := cfg.Providers.Order; len(got) != 5 || got[0] != "gemini" || got[4] != "anthropic" {
		t.Fatalf("unexpected provider order %v", got)
	}
	if cfg.Telegram.DedupTTL != 24*time.Hour || cfg.Extractor.ProbeTimeout != 5*time.Second {
		t.Fatalf("unexpected durations %+v %+v", cfg.Telegram, cfg.Extractor)
	}
	if cfg.MaxTopLevelCategories != 10 || cfg.Sheets.Enabled() {
		t.Fatalf("unexpected category cap or sheets %+v", cfg)
	}
}

func TestParseTrimsAndSplits(t *testing.T) {
	cfg, err := Parse(map[string]string{
		"GEMINI_MODELS":             " gemini-2.5-flash , gemini-2.0-flash ,",
		"PROVIDER_ORDER":            "Ollama,GEMINI",
		"TELEGRAM_ALLOWED_CHAT_IDS": "12,-100200",
		"OPENAI_BASE_URL":           "https://api.groq.com/openai/v1/ ",
		"LOG_LEVEL":                 " DEBUG ",
	})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := cfg.Providers.GeminiModels; len(got) != 2 || got[1] != "gemini-2.0-flash" {
		t.Fatalf("unexpected models %q", got)
	}
	if got := cfg.Providers.Order; got[0] != "ollama" || got[1] != "gemini" {
		t.Fatalf("unexpected order %q", got)
	}
	if got := cfg.Telegram.AllowedChatIDs; len(got) != 2 || got[1] != -100200 {
		t.Fatalf("unexpected chat ids %v", got)
	}
	if cfg.Providers.OpenAIBaseURL != "https://api.groq.com/openai/v1" || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected trimming %q %q", cfg.Providers.OpenAIBaseURL, cfg.LogLevel)
	}
}

func TestPrefixedKeysAreAliases(t *testing.T) {
	env := environment([]string{
		"NL_TELEGRAM_BOT_TOKEN=prefixed",
		"nl_GOOGLE_AI_API_KEY=lower",
		"NL_API_TOKEN=ignored",
		"API_TOKEN=bare",
		"MALFORMED",
	})
	cfg, err := Parse(env)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Telegram.BotToken != "prefixed" || cfg.Providers.GoogleAPIKey != "lower" {
		t.Fatalf("aliases not applied: %+v", cfg)
	}
	if cfg.APIToken != "bare" {
		t.Fatalf("bare key must win, got %q", cfg.APIToken)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]map[string]string{
		"driver":        {"DATABASE_DRIVER": "mysql"},
		"provider":      {"PROVIDER_ORDER": "gemini,bard"},
		"blob":          {"STORAGE_MODE": "blob"},
		"storage mode":  {"STORAGE_MODE": "ftp"},
		"log level":     {"LOG_LEVEL": "verbose"},
		"timeout":       {"REQUEST_TIMEOUT_SECONDS": "0"},
		"category cap":  {"MAX_TOP_LEVEL_CATEGORIES": "0"},
		"probe timeout": {"EXTRACTOR_PROBE_TIMEOUT_SECONDS": "-1"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(env); err == nil {
				t.Fatalf("expected validation error for %v", env)
			}
		})
	}
}

func TestBlobStorageNeedsBucket(t *testing.T) {
	cfg, err := Parse(map[string]string{"STORAGE_MODE": "blob", "S3_BUCKET": "nexus"})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Storage.S3Bucket != "nexus" || cfg.Storage.S3Region != "us-east-1" {
		t.Fatalf("unexpected storage %+v", cfg.Storage)
	}
}
