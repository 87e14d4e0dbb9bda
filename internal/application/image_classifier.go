package app

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"pneumoscan/internal/domain/entity"
	"pneumoscan/internal/domain/port"
	"pneumoscan/internal/logging"
)

// ImageClassifier бинарный классификатор пневмонии по снимку.
type ImageClassifier struct {
	pre       port.Preprocessor
	model     port.ScoreModel
	threshold float64
	timeout   time.Duration
	log       *slog.Logger
}

// NewImageClassifier создаёт классификатор по бандлу модели.
func NewImageClassifier(pre port.Preprocessor, model port.ScoreModel, b entity.ModelBundle, timeout time.Duration) *ImageClassifier {
	return &ImageClassifier{
		pre:       pre,
		model:     model,
		threshold: b.Threshold,
		timeout:   timeout,
		log:       logging.New("classifier").With("architecture", string(b.Architecture)),
	}
}

// Classify возвращает метку, уверенность и тензор, по которому считали,
// чтобы объяснение не декодировало снимок повторно.
// Любая ошибка возвращается как *entity.InferenceError.
func (c *ImageClassifier) Classify(ctx context.Context, image []byte) (entity.ClassificationResult, entity.ImageTensor, error) {
	input, err := c.pre.Preprocess(image)
	if err != nil {
		return entity.ClassificationResult{}, entity.ImageTensor{}, &entity.InferenceError{Stage: entity.StageClassifyingImage, Err: err}
	}

	p, err := runStage(ctx, c.timeout, func(ctx context.Context) (float64, error) {
		return c.model.Score(ctx, input)
	})
	if err != nil {
		return entity.ClassificationResult{}, entity.ImageTensor{}, &entity.InferenceError{Stage: entity.StageClassifyingImage, Err: err}
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return entity.ClassificationResult{}, entity.ImageTensor{}, &entity.InferenceError{
			Stage: entity.StageClassifyingImage,
			Err:   fmt.Errorf("score %v is outside [0,1]", p),
		}
	}

	result := Decide(p, c.threshold)
	c.log.Debug("classified", "score", p, "label", result.Label)
	return result, input, nil
}

// Decide переводит сигмоидный скор в метку: положительный класс при p ≥ threshold.
// Уверенность это вероятность выданной метки, округлённая до 4 знаков один раз
// здесь: по ней выбирается рекомендация и её же видит пользователь.
func Decide(p, threshold float64) entity.ClassificationResult {
	if p >= threshold {
		return entity.ClassificationResult{Label: entity.ImagePositive, Confidence: entity.Round4(p)}
	}
	return entity.ClassificationResult{Label: entity.ImageNegative, Confidence: entity.Round4(1 - p)}
}
