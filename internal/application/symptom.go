package app

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"pneumoscan/internal/domain/entity"
	"pneumoscan/internal/domain/port"
	"pneumoscan/internal/logging"
)

// SymptomClassifier определяет подтип по описанию симптомов.
// Сбой никогда не прерывает диагностику: результат деградирует.
type SymptomClassifier struct {
	tokenizer port.Tokenizer
	model     port.TextModel
	labels    []entity.TextLabel
	timeout   time.Duration
	log       *slog.Logger
}

// NewSymptomClassifier создаёт классификатор симптомов.
func NewSymptomClassifier(tokenizer port.Tokenizer, model port.TextModel, b entity.SymptomBundle, timeout time.Duration) *SymptomClassifier {
	return &SymptomClassifier{
		tokenizer: tokenizer,
		model:     model,
		labels:    b.Labels,
		timeout:   timeout,
		log:       logging.New("symptoms"),
	}
}

// Classify возвращает метку текста. Пустой текст сразу даёт NORMAL.
func (c *SymptomClassifier) Classify(ctx context.Context, text string) entity.Outcome[entity.TextClassification] {
	if strings.TrimSpace(text) == "" {
		return entity.Ok(entity.TextClassification{Label: entity.TextNormal, Confidence: 1})
	}

	enc, err := c.tokenizer.Encode(text)
	if err != nil {
		c.log.Warn("tokenize failed", "error", err)
		return entity.Degrade(entity.TextClassification{}, "tokenize: "+err.Error())
	}

	logits, err := runStage(ctx, c.timeout, func(ctx context.Context) ([]float32, error) {
		return c.model.Logits(ctx, enc)
	})
	if err != nil {
		c.log.Warn("text inference failed", "error", err)
		return entity.Degrade(entity.TextClassification{}, "inference: "+err.Error())
	}

	result, err := c.decide(logits)
	if err != nil {
		c.log.Warn("text output rejected", "error", err)
		return entity.Degrade(entity.TextClassification{}, err.Error())
	}
	c.log.Debug("classified", "label", result.Label, "confidence", result.Confidence)
	return entity.Ok(result)
}

// decide берёт argmax логитов, уверенность — вероятность softmax.
func (c *SymptomClassifier) decide(logits []float32) (entity.TextClassification, error) {
	if len(logits) != len(c.labels) || len(logits) == 0 {
		return entity.TextClassification{}, fmt.Errorf("model returned %d logits for %d labels", len(logits), len(c.labels))
	}

	probs := Softmax(logits)
	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}
	if math.IsNaN(probs[best]) {
		return entity.TextClassification{}, fmt.Errorf("model returned non-finite logits")
	}
	return entity.TextClassification{Label: c.labels[best], Confidence: probs[best]}, nil
}

// Softmax численно устойчивый softmax.
func Softmax(logits []float32) []float64 {
	peak := math.Inf(-1)
	for _, v := range logits {
		peak = math.Max(peak, float64(v))
	}

	out := make([]float64, len(logits))
	sum := 0.0
	for i, v := range logits {
		out[i] = math.Exp(float64(v) - peak)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
