package textmodel

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/model/wordpiece"
	"github.com/sugarme/tokenizer/normalizer"
	"github.com/sugarme/tokenizer/pretokenizer"
	"github.com/sugarme/tokenizer/processor"

	"pneumoscan/internal/domain/port"
)

const (
	tokenCLS = "[CLS]"
	tokenSEP = "[SEP]"
	tokenUNK = "[UNK]"
)

// ErrMissingSpecialToken в словаре нет обязательного служебного токена
var ErrMissingSpecialToken = errors.New("vocabulary is missing a special token")

// WordPiece BERT-токенизатор по словарю vocab.txt:
// нормализация BERT, разбиение по пробелам и пунктуации, подслова с префиксом ##.
type WordPiece struct {
	// tokenizer.Tokenizer не документирован как потокобезопасный
	mu        sync.Mutex
	tk        *tokenizer.Tokenizer
	maxLength int
	sep       int
}

// LoadWordPiece читает словарь: по одному токену на строку, id равен номеру строки.
func LoadWordPiece(path string, maxLength int, lowercase bool) (*WordPiece, error) {
	if maxLength < 2 {
		return nil, fmt.Errorf("max length must be at least 2, got %d", maxLength)
	}

	model, err := wordpiece.NewWordPieceFromFile(path, tokenUNK)
	if err != nil {
		return nil, fmt.Errorf("failed to load vocabulary: %w", err)
	}

	tk := tokenizer.NewTokenizer(model)
	tk.WithNormalizer(normalizer.NewBertNormalizer(true, lowercase, true, lowercase))
	tk.WithPreTokenizer(pretokenizer.NewBertPreTokenizer())

	ids := make(map[string]int, 3)
	for _, tok := range []string{tokenCLS, tokenSEP, tokenUNK} {
		id, ok := tk.TokenToId(tok)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingSpecialToken, tok)
		}
		ids[tok] = id
	}
	tk.WithPostProcessor(processor.NewBertProcessing(
		processor.PostToken{Id: ids[tokenSEP], Value: tokenSEP},
		processor.PostToken{Id: ids[tokenCLS], Value: tokenCLS},
	))

	return &WordPiece{tk: tk, maxLength: maxLength, sep: ids[tokenSEP]}, nil
}

// Encode возвращает [CLS] токены [SEP], усечённые до maxLength.
// Дополнение не выполняется: модель получает ровно один текст.
func (w *WordPiece) Encode(text string) (port.Encoding, error) {
	w.mu.Lock()
	en, err := w.tk.EncodeSingle(text, true)
	w.mu.Unlock()
	if err != nil {
		return port.Encoding{}, fmt.Errorf("failed to tokenize: %w", err)
	}

	ids := en.Ids
	if len(ids) > w.maxLength {
		// [SEP] остаётся последним, как при усечении в transformers
		ids = append(ids[:w.maxLength-1:w.maxLength-1], w.sep)
	}

	enc := port.Encoding{
		InputIDs:      make([]int64, len(ids)),
		AttentionMask: make([]int64, len(ids)),
		TypeIDs:       make([]int64, len(ids)),
	}
	for i, id := range ids {
		enc.InputIDs[i] = int64(id)
		enc.AttentionMask[i] = 1
	}
	return enc, nil
}

// Tokenize разбивает текст на подслова без служебных токенов.
func (w *WordPiece) Tokenize(text string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	en, err := w.tk.EncodeSingle(text, false)
	if err != nil {
		return nil
	}
	return en.Tokens
}

// Проверка реализации интерфейса
var _ port.Tokenizer = (*WordPiece)(nil)
