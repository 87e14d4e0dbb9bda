package onnx

import (
	"context"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"

	"pneumoscan/internal/domain/entity"
	"pneumoscan/internal/domain/port"
)

// TextModel сессия ONNX для классификатора симптомов.
type TextModel struct {
	session   *ort.DynamicAdvancedSession
	numLabels int
	withTypes bool
}

// NewTextModel открывает текстовую модель по бандлу.
func NewTextModel(b entity.SymptomBundle) (*TextModel, error) {
	inputs := []string{b.InputIDs, b.Attention}
	if b.TypeIDs != "" {
		inputs = append(inputs, b.TypeIDs)
	}

	session, err := ort.NewDynamicAdvancedSession(b.ModelPath, inputs, []string{b.OutputName}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session for %s: %w", b.Name, err)
	}
	return &TextModel{session: session, numLabels: len(b.Labels), withTypes: b.TypeIDs != ""}, nil
}

// Logits возвращает логиты по меткам для одного текста.
func (m *TextModel) Logits(ctx context.Context, enc port.Encoding) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	shape := ort.NewShape(1, int64(len(enc.InputIDs)))
	sources := [][]int64{enc.InputIDs, enc.AttentionMask}
	if m.withTypes {
		sources = append(sources, enc.TypeIDs)
	}

	inputs := make([]ort.ArbitraryTensor, 0, len(sources))
	defer func() {
		for _, t := range inputs {
			t.Destroy()
		}
	}()
	for _, src := range sources {
		t, err := ort.NewTensor(shape, src)
		if err != nil {
			return nil, fmt.Errorf("failed to create input tensor: %w", err)
		}
		inputs = append(inputs, t)
	}

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(m.numLabels)))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer out.Destroy()

	if err := m.session.Run(inputs, []ort.ArbitraryTensor{out}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	logits := make([]float32, m.numLabels)
	copy(logits, out.GetData())
	return logits, nil
}

// Close освобождает сессию.
func (m *TextModel) Close() {
	if m.session != nil {
		m.session.Destroy()
	}
}

// Проверка реализации интерфейса
var _ port.TextModel = (*TextModel)(nil)
