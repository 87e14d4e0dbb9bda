package onnx

import (
	"context"
	"errors"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"

	"pneumoscan/internal/domain/entity"
	"pneumoscan/internal/domain/port"
)

// ErrNoFeatureOutput модель экспортирована без выхода карты признаков
var ErrNoFeatureOutput = errors.New("model has no feature map output")

// ImageModel сессии ONNX для бинарного классификатора снимков.
// Тензоры создаются на каждый вызов, поэтому модель можно
// вызывать из нескольких запросов одновременно.
type ImageModel struct {
	name       string
	inputName  string
	inputShape []int64

	score   *ort.DynamicAdvancedSession
	feature *ort.DynamicAdvancedSession

	featH, featW, featC int
	featLayout          entity.Layout
}

// NewImageModel открывает модель снимков по бандлу.
func NewImageModel(b entity.ModelBundle) (*ImageModel, error) {
	score, err := ort.NewDynamicAdvancedSession(b.ModelPath,
		[]string{b.InputName}, []string{b.ScoreOutput}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session for %s: %w", b.Name, err)
	}

	m := &ImageModel{
		name:      b.Name,
		inputName: b.InputName,
		score:     score,
	}
	m.featH, m.featW, m.featC = b.FeatureShape()
	// экспорт PyTorch отдаёт карту признаков в том же порядке, что и вход
	m.featLayout = b.Layout

	if b.FeatureOutput != "" {
		feature, err := ort.NewDynamicAdvancedSession(b.ModelPath,
			[]string{b.InputName}, []string{b.FeatureOutput}, nil)
		if err != nil {
			score.Destroy()
			return nil, fmt.Errorf("failed to create ONNX feature session for %s: %w", b.Name, err)
		}
		m.feature = feature
	}
	return m, nil
}

// NewValidatorModel открывает модель-валидатор.
func NewValidatorModel(b entity.ValidatorBundle) (*ImageModel, error) {
	score, err := ort.NewDynamicAdvancedSession(b.ModelPath,
		[]string{b.InputName}, []string{b.OutputName}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session for %s: %w", b.Name, err)
	}
	return &ImageModel{name: b.Name, inputName: b.InputName, score: score}, nil
}

// Score возвращает сигмоидный скор положительного класса.
func (m *ImageModel) Score(ctx context.Context, input entity.ImageTensor) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	in, err := ort.NewTensor(ort.NewShape(input.Shape()...), input.Data)
	if err != nil {
		return 0, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer in.Destroy()

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		return 0, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer out.Destroy()

	if err := m.score.Run([]ort.ArbitraryTensor{in}, []ort.ArbitraryTensor{out}); err != nil {
		return 0, fmt.Errorf("inference failed: %w", err)
	}

	data := out.GetData()
	if len(data) == 0 {
		return 0, errors.New("empty model output")
	}
	return float64(data[0]), nil
}

// Features возвращает карту признаков последнего сверточного слоя в порядке HWC
// независимо от раскладки выхода модели.
func (m *ImageModel) Features(ctx context.Context, input entity.ImageTensor) (entity.FeatureMap, error) {
	if m.feature == nil || m.featC == 0 {
		return entity.FeatureMap{}, ErrNoFeatureOutput
	}
	if err := ctx.Err(); err != nil {
		return entity.FeatureMap{}, err
	}

	in, err := ort.NewTensor(ort.NewShape(input.Shape()...), input.Data)
	if err != nil {
		return entity.FeatureMap{}, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer in.Destroy()

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(featureShape(m.featLayout, m.featH, m.featW, m.featC)...))
	if err != nil {
		return entity.FeatureMap{}, fmt.Errorf("failed to create feature tensor: %w", err)
	}
	defer out.Destroy()

	if err := m.feature.Run([]ort.ArbitraryTensor{in}, []ort.ArbitraryTensor{out}); err != nil {
		return entity.FeatureMap{}, fmt.Errorf("feature inference failed: %w", err)
	}

	return ToFeatureMap(out.GetData(), m.featLayout, m.featH, m.featW, m.featC)
}

func featureShape(layout entity.Layout, h, w, c int) []int64 {
	if layout == entity.LayoutNCHW {
		return []int64{1, int64(c), int64(h), int64(w)}
	}
	return []int64{1, int64(h), int64(w), int64(c)}
}

// ToFeatureMap копирует выход float32 в карту признаков HWC,
// транспонируя CHW, если модель экспортирована в NCHW.
func ToFeatureMap(raw []float32, layout entity.Layout, h, w, c int) (entity.FeatureMap, error) {
	if len(raw) != h*w*c {
		return entity.FeatureMap{}, fmt.Errorf("feature output has %d values, want %dx%dx%d", len(raw), h, w, c)
	}
	data := make([]float64, len(raw))
	if layout != entity.LayoutNCHW {
		for i, v := range raw {
			data[i] = float64(v)
		}
	} else {
		plane := h * w
		for ch := 0; ch < c; ch++ {
			for i := 0; i < plane; i++ {
				data[i*c+ch] = float64(raw[ch*plane+i])
			}
		}
	}
	return entity.FeatureMap{Height: h, Width: w, Channels: c, Data: data}, nil
}

// Close освобождает сессии.
func (m *ImageModel) Close() {
	if m.score != nil {
		m.score.Destroy()
	}
	if m.feature != nil {
		m.feature.Destroy()
	}
}

// Проверка реализации интерфейсов
var (
	_ port.ScoreModel   = (*ImageModel)(nil)
	_ port.FeatureModel = (*ImageModel)(nil)
)
