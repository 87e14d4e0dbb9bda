package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr     string
	DataDir      string
	ModelsDir    string
	ONNXRuntime  string
	StageTimeout time.Duration

	TranscribeURL    string
	TranscribeModel  string
	TranscribeAPIKey string

	GroqAPIKey  string
	GroqBaseURL string
	GroqModel   string

	TelegramToken string

	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	// Загружаем .env файл (игнорируем ошибку если файла нет)
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:         getenv("HTTP_ADDR", ":5000"),
		DataDir:          getenv("DATA_DIR", "."),
		ModelsDir:        getenv("MODELS_DIR", "models"),
		ONNXRuntime:      os.Getenv("ONNXRUNTIME_LIB"),
		TranscribeURL:    os.Getenv("TRANSCRIBE_URL"),
		TranscribeModel:  getenv("TRANSCRIBE_MODEL", "whisper-1"),
		TranscribeAPIKey: os.Getenv("TRANSCRIBE_API_KEY"),
		GroqAPIKey:       os.Getenv("GROQ_API_KEY"),
		GroqBaseURL:      os.Getenv("GROQ_BASE_URL"),
		GroqModel:        getenv("GROQ_MODEL", "llama-3.1-8b-instant"),
		TelegramToken:    os.Getenv("TELEGRAM_TOKEN"),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		LogFormat:        getenv("LOG_FORMAT", "text"),
	}

	timeout, err := time.ParseDuration(getenv("STAGE_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid STAGE_TIMEOUT: %w", err)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("invalid STAGE_TIMEOUT: must be positive, got %s", timeout)
	}
	cfg.StageTimeout = timeout

	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
