package port

import "context"

// Encoding токенизированный текст
type Encoding struct {
	InputIDs      []int64
	AttentionMask []int64
	TypeIDs       []int64
}

// Tokenizer разбивает текст на токены модели
type Tokenizer interface {
	Encode(text string) (Encoding, error)
}

// TextModel классификатор текста, возвращает логиты по меткам
type TextModel interface {
	Logits(ctx context.Context, enc Encoding) ([]float32, error)
}

// Transcriber внешний сервис распознавания речи
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// ChatModel внешняя языковая модель для ассистента
type ChatModel interface {
	Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
