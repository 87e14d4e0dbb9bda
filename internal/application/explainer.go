package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"pneumoscan/internal/domain/entity"
	"pneumoscan/internal/domain/port"
	"pneumoscan/internal/logging"
)

// SaliencyExplainer строит, рисует и сохраняет карту Grad-CAM.
type SaliencyExplainer struct {
	saliency port.SaliencyModel
	renderer port.OverlayRenderer
	store    port.ArtifactStore
	timeout  time.Duration
	log      *slog.Logger
}

// NewSaliencyExplainer создаёт сервис объяснений.
func NewSaliencyExplainer(saliency port.SaliencyModel, renderer port.OverlayRenderer, store port.ArtifactStore, timeout time.Duration) *SaliencyExplainer {
	return &SaliencyExplainer{
		saliency: saliency,
		renderer: renderer,
		store:    store,
		timeout:  timeout,
		log:      logging.New("explainer"),
	}
}

// Explain возвращает наложение карты на исходный снимок в разрешении входа модели.
// Любая ошибка — *entity.ExplainabilityError.
func (e *SaliencyExplainer) Explain(ctx context.Context, source []byte, input entity.ImageTensor) (*entity.SaliencyOverlay, error) {
	if e.saliency == nil {
		return nil, &entity.ExplainabilityError{Err: errors.New("saliency model is not configured")}
	}

	heatmap, err := runStage(ctx, e.timeout, func(ctx context.Context) ([][]float64, error) {
		return e.saliency.Saliency(ctx, input)
	})
	if err != nil {
		return nil, &entity.ExplainabilityError{Err: err}
	}

	rendered, err := e.renderer.Render(source, heatmap, input.Size)
	if err != nil {
		return nil, &entity.ExplainabilityError{Err: err}
	}

	ref, err := e.store.Save(ctx, rendered)
	if err != nil {
		return nil, &entity.ExplainabilityError{Err: err}
	}

	e.log.Debug("overlay stored", "reference", ref)
	return &entity.SaliencyOverlay{Map: heatmap, Rendered: rendered, Reference: ref}, nil
}
