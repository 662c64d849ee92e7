// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// UkrainianAlphabet is the default delivery language gate.
const UkrainianAlphabet = "абвгґдеєжзиіїйклмнопрстуфхцчшщьюяАБВГҐДЕЄЖЗИІЇЙКЛМНОПРСТУФХЦЧШЩЬЮЯ"

type Config struct {
	// Telegram settings
	TelegramToken  string
	TelegramChatID string

	// Language model settings
	LLMProvider          string // "openai" or "gemini"
	OpenAIAPIKey         string
	OpenAIBaseURL        string
	OpenAIChatModel      string
	OpenAIEmbeddingModel string
	GeminiAPIKey         string
	GeminiChatModel      string
	GeminiEmbeddingModel string
	LLMTemperature       float32
	LLMMaxTokens         int
	MaxLLMRequests       int // per day, 0 = unlimited
	LLMRequestsPerMinute int
	EmbeddingCacheTTL    time.Duration
	Topic                string
	TargetLanguage       string

	// Storage
	DatabaseURL   string
	StoreFilePath string

	// Image reconciliation
	ImageAPIURL   string
	ImageAPIToken string

	// Sources and scheduling
	SourcesConfigPath string
	PollInterval      time.Duration
	RunOnStart        bool

	// Pipeline policy
	StalenessWindow     time.Duration
	SimilarityThreshold float64
	DedupLookback       time.Duration
	CaptionMaxRunes     int
	RequiredCharset     string

	// Scraper settings
	ScrapeDelay     time.Duration
	PageTimeout     time.Duration
	SelectorTimeout time.Duration
	BrowserHeadless bool
	ChromePath      string
	ScreenshotDir   string
	Timezone        string

	// App settings
	Debug          bool
	LogFormat      string
	RequestTimeout time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration

	// Monitoring
	EnableMonitoring bool
	MonitoringPort   string
}

// Load reads the configuration and validates it.
func Load() (*Config, error) {
	cfg, err := Read()
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Read loads .env when present and applies the environment over Defaults
// without validating. Commands that only touch storage or the source catalog
// use it directly.
func Read() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := Defaults()

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	cfg.TelegramChatID = os.Getenv("TELEGRAM_CHAT_ID")

	cfg.LLMProvider = strings.ToLower(getEnvOrDefault("LLM_PROVIDER", cfg.LLMProvider))
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAIBaseURL = os.Getenv("OPENAI_BASE_URL")
	cfg.OpenAIChatModel = getEnvOrDefault("OPENAI_CHAT_MODEL", cfg.OpenAIChatModel)
	cfg.OpenAIEmbeddingModel = getEnvOrDefault("OPENAI_EMBEDDING_MODEL", cfg.OpenAIEmbeddingModel)
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.GeminiChatModel = getEnvOrDefault("GEMINI_CHAT_MODEL", cfg.GeminiChatModel)
	cfg.GeminiEmbeddingModel = getEnvOrDefault("GEMINI_EMBEDDING_MODEL", cfg.GeminiEmbeddingModel)
	if v := os.Getenv("LLM_TEMPERATURE"); v != "" {
		if val, err := strconv.ParseFloat(v, 32); err == nil && val >= 0 {
			cfg.LLMTemperature = float32(val)
		}
	}
	cfg.LLMMaxTokens = getEnvIntOrDefault("LLM_MAX_TOKENS", cfg.LLMMaxTokens)
	cfg.MaxLLMRequests = getEnvIntOrDefault("MAX_LLM_REQUESTS", cfg.MaxLLMRequests)
	cfg.LLMRequestsPerMinute = getEnvIntOrDefault("LLM_REQUESTS_PER_MINUTE", cfg.LLMRequestsPerMinute)
	cfg.EmbeddingCacheTTL = getEnvDurationOrDefault("EMBEDDING_CACHE_TTL", cfg.EmbeddingCacheTTL)
	cfg.Topic = getEnvOrDefault("TOPIC", cfg.Topic)
	cfg.TargetLanguage = getEnvOrDefault("TARGET_LANGUAGE", cfg.TargetLanguage)

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.StoreFilePath = getEnvOrDefault("STORE_FILE_PATH", cfg.StoreFilePath)

	cfg.ImageAPIURL = os.Getenv("IMAGE_API_URL")
	cfg.ImageAPIToken = os.Getenv("IMAGE_API_TOKEN")

	cfg.SourcesConfigPath = getEnvOrDefault("SOURCES_CONFIG_PATH", cfg.SourcesConfigPath)
	cfg.PollInterval = getEnvDurationOrDefault("POLL_INTERVAL", cfg.PollInterval)
	cfg.RunOnStart = getEnvBoolOrDefault("RUN_ON_START", cfg.RunOnStart)

	cfg.StalenessWindow = getEnvDurationOrDefault("STALENESS_WINDOW", cfg.StalenessWindow)
	if v := os.Getenv("SIMILARITY_THRESHOLD"); v != "" {
		if val, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.SimilarityThreshold = val
		}
	}
	cfg.DedupLookback = getEnvDurationOrDefault("DEDUP_LOOKBACK", cfg.DedupLookback)
	cfg.CaptionMaxRunes = getEnvIntOrDefault("CAPTION_MAX_RUNES", cfg.CaptionMaxRunes)
	cfg.RequiredCharset = getEnvOrDefault("REQUIRED_CHARSET", cfg.RequiredCharset)

	cfg.ScrapeDelay = getEnvDurationOrDefault("SCRAPE_DELAY", cfg.ScrapeDelay)
	cfg.PageTimeout = getEnvDurationOrDefault("PAGE_TIMEOUT", cfg.PageTimeout)
	cfg.SelectorTimeout = getEnvDurationOrDefault("SELECTOR_TIMEOUT", cfg.SelectorTimeout)
	cfg.BrowserHeadless = getEnvBoolOrDefault("BROWSER_HEADLESS", cfg.BrowserHeadless)
	cfg.ChromePath = os.Getenv("CHROME_PATH")
	cfg.ScreenshotDir = os.Getenv("SCREENSHOT_DIR")
	cfg.Timezone = getEnvOrDefault("TIMEZONE", cfg.Timezone)

	cfg.Debug = os.Getenv("DEBUG") == "true"
	cfg.LogFormat = getEnvOrDefault("LOG_FORMAT", cfg.LogFormat)
	cfg.RequestTimeout = getEnvDurationOrDefault("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.RetryAttempts = getEnvIntOrDefault("RETRY_ATTEMPTS", cfg.RetryAttempts)
	cfg.RetryDelay = getEnvDurationOrDefault("RETRY_DELAY", cfg.RetryDelay)

	cfg.EnableMonitoring = os.Getenv("ENABLE_HTTP_MONITORING") == "true"
	cfg.MonitoringPort = getEnvOrDefault("MONITORING_PORT", cfg.MonitoringPort)

	return cfg, nil
}

// Defaults returns a config with every optional field filled in.
func Defaults() *Config {
	return &Config{
		LLMProvider:          ProviderOpenAI,
		OpenAIChatModel:      "gpt-4o-mini",
		OpenAIEmbeddingModel: "text-embedding-3-small",
		GeminiChatModel:      "gemini-1.5-flash",
		GeminiEmbeddingModel: "text-embedding-004",
		LLMTemperature:       0.3,
		LLMMaxTokens:         2000,
		LLMRequestsPerMinute: 30,
		EmbeddingCacheTTL:    48 * time.Hour,
		Topic:                "news that matters to Ukrainians living in Poland",
		TargetLanguage:       "Ukrainian",
		StoreFilePath:        "articles.json",
		SourcesConfigPath:    "configs/sources.yaml",
		PollInterval:         5 * time.Minute,
		RunOnStart:           true,
		StalenessWindow:      3 * time.Hour,
		SimilarityThreshold:  0.75,
		DedupLookback:        48 * time.Hour,
		CaptionMaxRunes:      1024,
		RequiredCharset:      UkrainianAlphabet,
		ScrapeDelay:          2 * time.Second,
		PageTimeout:          30 * time.Second,
		SelectorTimeout:      15 * time.Second,
		BrowserHeadless:      true,
		Timezone:             "Europe/Warsaw",
		LogFormat:            "text",
		RequestTimeout:       30 * time.Second,
		RetryAttempts:        3,
		RetryDelay:           2 * time.Second,
		MonitoringPort:       "8080",
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func (c *Config) Validate() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	if c.TelegramChatID == "" {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required")
	}
	switch c.LLMProvider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for LLM_PROVIDER=openai")
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for LLM_PROVIDER=gemini")
		}
	default:
		return fmt.Errorf("LLM_PROVIDER must be 'openai' or 'gemini', got %q", c.LLMProvider)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if c.StalenessWindow <= 0 {
		return fmt.Errorf("STALENESS_WINDOW must be positive")
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("SIMILARITY_THRESHOLD must be in (0, 1]")
	}
	if c.CaptionMaxRunes <= 0 {
		return fmt.Errorf("CAPTION_MAX_RUNES must be positive")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	return nil
}
