package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"pneumoscan/internal/domain/port"
)

// DefaultURL OpenAI-совместимый эндпоинт распознавания речи
const DefaultURL = "https://api.openai.com/v1/audio/transcriptions"

var errMissingURL = errors.New("transcription URL is required")

// Config параметры клиента распознавания речи
type Config struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client клиент Whisper-совместимого сервиса
type Client struct {
	url        string
	apiKey     string
	model      string
	httpClient *http.Client
}

type transcriptionResponse struct {
	Text  string `json:"text"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewClient создаёт клиента распознавания речи
func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errMissingURL
	}

	model := cfg.Model
	if model == "" {
		model = "whisper-1"
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Transcribe отправляет аудио и возвращает распознанный текст
func (c *Client) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("empty audio")
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "audio"+extension(audio))
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("failed to write audio: %w", err)
	}
	if err := w.WriteField("model", c.model); err != nil {
		return "", fmt.Errorf("failed to write model field: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finish form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("transcription error: status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed transcriptionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("transcription error: %s", parsed.Error.Message)
	}

	return strings.TrimSpace(parsed.Text), nil
}

// extension угадывает расширение по сигнатуре, сервис различает форматы по имени файла
func extension(audio []byte) string {
	switch {
	case bytes.HasPrefix(audio, []byte("OggS")):
		return ".ogg"
	case bytes.HasPrefix(audio, []byte("RIFF")):
		return ".wav"
	case bytes.HasPrefix(audio, []byte("fLaC")):
		return ".flac"
	case bytes.HasPrefix(audio, []byte("ID3")), len(audio) > 1 && audio[0] == 0xFF && audio[1]&0xE0 == 0xE0:
		return ".mp3"
	case len(audio) > 8 && string(audio[4:8]) == "ftyp":
		return ".m4a"
	case bytes.HasPrefix(audio, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return ".webm"
	default:
		return ".wav"
	}
}

// Проверка реализации интерфейса
var _ port.Transcriber = (*Client)(nil)
