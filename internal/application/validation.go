package app

import (
	"context"
	"log/slog"
	"time"

	"pneumoscan/internal/domain/entity"
	"pneumoscan/internal/domain/port"
	"pneumoscan/internal/logging"
)

// ValidationService проверяет, что снимок — рентген грудной клетки.
// Любая ошибка закрывает шлюз: снимок считается посторонним.
type ValidationService struct {
	pre        port.Preprocessor
	model      port.ScoreModel
	threshold  float64
	convention entity.ScoreConvention
	timeout    time.Duration
	log        *slog.Logger
}

// NewValidationService создаёт сервис проверки модальности.
func NewValidationService(pre port.Preprocessor, model port.ScoreModel, b entity.ValidatorBundle, timeout time.Duration) *ValidationService {
	return &ValidationService{
		pre:        pre,
		model:      model,
		threshold:  b.Threshold,
		convention: b.Convention,
		timeout:    timeout,
		log:        logging.New("validator"),
	}
}

// Validate возвращает вердикт шлюза. Ошибки не возвращаются: при сбое
// результат деградирует до {InDomain: false, Confidence: 0}.
func (s *ValidationService) Validate(ctx context.Context, image []byte) entity.Outcome[entity.ValidationResult] {
	rejected := entity.ValidationResult{}

	input, err := s.pre.Preprocess(image)
	if err != nil {
		s.log.Warn("validator preprocess failed", "error", err)
		return entity.Degrade(rejected, "preprocess: "+err.Error())
	}

	score, err := runStage(ctx, s.timeout, func(ctx context.Context) (float64, error) {
		return s.model.Score(ctx, input)
	})
	if err != nil {
		s.log.Warn("validator inference failed", "error", err)
		return entity.Degrade(rejected, "inference: "+err.Error())
	}

	result := entity.ValidationResult{
		InDomain:   s.convention.InDomain(score, s.threshold),
		Confidence: score,
	}
	s.log.Debug("validated", "score", score, "in_domain", result.InDomain, "convention", s.convention)
	return entity.Ok(result)
}
