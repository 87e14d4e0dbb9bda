package gradcam

import (
	"context"
	"fmt"

	"pneumoscan/internal/domain/entity"
	"pneumoscan/internal/domain/port"
)

// Explainer строит карту Grad-CAM: карта признаков из ONNX-модели,
// градиенты из головы классификатора.
type Explainer struct {
	features port.FeatureModel
	head     port.GradientHead
}

// NewExplainer собирает Grad-CAM из модели признаков и головы.
func NewExplainer(features port.FeatureModel, head port.GradientHead) *Explainer {
	return &Explainer{features: features, head: head}
}

// Saliency возвращает нормализованную карту размером H×W карты признаков.
func (e *Explainer) Saliency(ctx context.Context, input entity.ImageTensor) ([][]float64, error) {
	fm, err := e.features.Features(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("features: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, grads, err := e.head.Gradients(fm)
	if err != nil {
		return nil, fmt.Errorf("gradients: %w", err)
	}
	return Compute(fm, grads)
}

// Проверка реализации интерфейса
var _ port.SaliencyModel = (*Explainer)(nil)
