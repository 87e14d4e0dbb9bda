package port

import (
	"context"

	"pneumoscan/internal/domain/entity"
)

// Preprocessor превращает сырые байты в тензор для инференса
type Preprocessor interface {
	// Preprocess декодирует и нормализует изображение, не изменяя data
	Preprocess(data []byte) (entity.ImageTensor, error)
}

// ScoreModel бинарный классификатор со скалярным выходом в [0,1]
type ScoreModel interface {
	Score(ctx context.Context, input entity.ImageTensor) (float64, error)
}

// FeatureModel отдаёт карту признаков последнего сверточного слоя
type FeatureModel interface {
	Features(ctx context.Context, input entity.ImageTensor) (entity.FeatureMap, error)
}

// GradientHead голова классификатора, по которой считаются градиенты
type GradientHead interface {
	// Gradients возвращает логит положительного класса и ∂y/∂A в порядке HWC
	Gradients(features entity.FeatureMap) (logit float64, grads []float64, err error)
}

// SaliencyModel строит карту значимости для положительного класса
type SaliencyModel interface {
	// Saliency возвращает карту в [0,1] в разрешении карты признаков
	Saliency(ctx context.Context, input entity.ImageTensor) ([][]float64, error)
}
