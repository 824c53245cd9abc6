package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	HTTPAddr       string
	LogLevel       string
	Environment    string
	RequestTimeout time.Duration

	Anthropic AnthropicConfig
	OpenAI    OpenAIConfig
	Image     ImageConfig
	Store     StoreConfig
	Content   ContentConfig
}

type AnthropicConfig struct {
	APIKey         string
	ReasoningModel string
}

type OpenAIConfig struct {
	APIKey      string
	UtilityModel string
}

type ImageConfig struct {
	APIKey  string
	BaseURL string
}

type StoreConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	FileStorePath string
}

type ContentConfig struct {
	StoryCatalogDir string
	LessonBankPath  string
}

func Load() (Config, error) {
	var cfg Config

	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.Environment = getEnv("ENVIRONMENT", "development")

	reqTimeout, err := parseDuration(getEnv("HTTP_CLIENT_TIMEOUT", "30s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse HTTP_CLIENT_TIMEOUT: %w", err)
	}
	cfg.RequestTimeout = reqTimeout

	cfg.Anthropic = AnthropicConfig{
		APIKey:         getEnv("ANTHROPIC_API_KEY", ""),
		ReasoningModel: getEnv("ANTHROPIC_REASONING_MODEL", "claude-sonnet-4-5"),
	}

	cfg.OpenAI = OpenAIConfig{
		APIKey:       getEnv("OPENAI_API_KEY", ""),
		UtilityModel: getEnv("OPENAI_UTILITY_MODEL", "gpt-4o-mini"),
	}

	cfg.Image = ImageConfig{
		APIKey:  getEnv("IMAGE_API_KEY", ""),
		BaseURL: getEnv("IMAGE_BASE_URL", ""),
	}

	cfg.Store = StoreConfig{
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       0,
		FileStorePath: getEnv("FILE_STORE_PATH", "data/adventures.json"),
	}

	cfg.Content = ContentConfig{
		StoryCatalogDir: getEnv("STORY_CATALOG_DIR", "data/story_categories"),
		LessonBankPath:  getEnv("LESSON_BANK_PATH", "data/lessons.csv"),
	}

	return cfg, nil
}

func parseDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, fmt.Errorf("duration is empty")
	}
	return time.ParseDuration(value)
}

func getEnv(key, def string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return def
}
