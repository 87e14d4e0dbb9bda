package entity

import "fmt"

// Backbone сверточная архитектура классификатора снимков
type Backbone string

const (
	BackboneEfficientNetB0 Backbone = "EfficientNetB0"
	BackboneDenseNet121    Backbone = "DenseNet121"
)

// BackboneSpec внутренности архитектуры, нужные для Grad-CAM.
type BackboneSpec struct {
	WeightTensors int    // число сохранённых тензоров весов всей модели
	LastConvLayer string // имя последнего сверточного слоя
	Channels      int    // каналов в карте признаков последнего слоя
	Stride        int    // во сколько раз карта меньше входа
}

var backbones = map[Backbone]BackboneSpec{
	BackboneEfficientNetB0: {WeightTensors: 316, LastConvLayer: "top_conv", Channels: 1280, Stride: 32},
	BackboneDenseNet121:    {WeightTensors: 608, LastConvLayer: "conv5_block16_concat", Channels: 1024, Stride: 32},
}

// Spec возвращает описание архитектуры.
func (b Backbone) Spec() (BackboneSpec, bool) {
	spec, ok := backbones[b]
	return spec, ok
}

// ResolveBackbone определяет архитектуру по явному имени и/или числу тензоров весов.
// weightCount <= 0 означает, что индекс весов не передан.
// Если заданы оба признака, они обязаны согласовываться.
func ResolveBackbone(explicit string, weightCount int) (Backbone, error) {
	var byCount Backbone
	if weightCount > 0 {
		for b, spec := range backbones {
			if spec.WeightTensors == weightCount {
				byCount = b
				break
			}
		}
		if byCount == "" {
			return "", fmt.Errorf("unknown weight tensor count %d: cannot match model architecture", weightCount)
		}
	}

	if explicit == "" {
		if byCount == "" {
			return "", fmt.Errorf("architecture is not set and no weights index is available")
		}
		return byCount, nil
	}

	b := Backbone(explicit)
	if _, ok := backbones[b]; !ok {
		return "", fmt.Errorf("unsupported architecture %q", explicit)
	}
	if byCount != "" && byCount != b {
		return "", fmt.Errorf("architecture %q does not match weights index (%d tensors => %s)", b, weightCount, byCount)
	}
	return b, nil
}

// ModelBundle загруженная модель снимков. Создаётся один раз при старте
// и дальше только читается.
type ModelBundle struct {
	Name          string
	Architecture  Backbone
	InputSize     int
	Channels      int
	Layout        Layout
	Threshold     float64
	ModelPath     string
	HeadPath      string // веса головы классификатора для Grad-CAM
	InputName     string
	ScoreOutput   string
	FeatureOutput string // пусто, если модель не отдаёт карту признаков
}

// FeatureShape форма карты признаков последнего сверточного слоя.
func (b ModelBundle) FeatureShape() (h, w, c int) {
	spec, ok := b.Architecture.Spec()
	if !ok {
		return 0, 0, 0
	}
	side := b.InputSize / spec.Stride
	return side, side, spec.Channels
}
