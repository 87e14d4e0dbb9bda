package gradcam

import (
	"encoding/json"
	"fmt"
	"os"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"pneumoscan/internal/domain/entity"
	"pneumoscan/internal/domain/port"
)

// dense веса полносвязного слоя в формате Keras: kernel[in][out]
type dense struct {
	Kernel [][]float64 `json:"kernel"`
	Bias   []float64   `json:"bias"`
}

type headFile struct {
	Dense  dense `json:"dense"`
	Output dense `json:"output"`
}

// Head голова классификатора поверх backbone:
// GlobalAveragePooling2D -> Dense(hidden, relu) -> Dense(1).
// Dropout на инференсе тождественен и не хранится.
// Граф пересобирается на каждый вызов, поэтому Head безопасна
// для конкурентного использования.
type Head struct {
	inputDim  int
	hiddenDim int

	w1 []float64 // inputDim × hiddenDim
	b1 []float64
	w2 []float64 // hiddenDim × 1
	b2 []float64
}

// LoadHead читает веса головы из JSON.
func LoadHead(path string) (*Head, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read head weights: %w", err)
	}
	var f headFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse head weights: %w", err)
	}
	return NewHead(f.Dense.Kernel, f.Dense.Bias, f.Output.Kernel, f.Output.Bias)
}

// NewHead собирает голову из матриц весов.
func NewHead(kernel [][]float64, bias []float64, outKernel [][]float64, outBias []float64) (*Head, error) {
	if len(kernel) == 0 || len(kernel[0]) == 0 {
		return nil, fmt.Errorf("empty dense kernel")
	}
	in, hidden := len(kernel), len(kernel[0])
	if len(bias) != hidden {
		return nil, fmt.Errorf("dense bias has %d values, want %d", len(bias), hidden)
	}
	if len(outKernel) != hidden {
		return nil, fmt.Errorf("output kernel has %d rows, want %d", len(outKernel), hidden)
	}
	if len(outBias) != 1 {
		return nil, fmt.Errorf("output bias has %d values, want 1", len(outBias))
	}

	h := &Head{
		inputDim:  in,
		hiddenDim: hidden,
		w1:        make([]float64, 0, in*hidden),
		b1:        append([]float64(nil), bias...),
		w2:        make([]float64, 0, hidden),
		b2:        append([]float64(nil), outBias...),
	}
	for i, row := range kernel {
		if len(row) != hidden {
			return nil, fmt.Errorf("dense kernel row %d has %d values, want %d", i, len(row), hidden)
		}
		h.w1 = append(h.w1, row...)
	}
	for i, row := range outKernel {
		if len(row) != 1 {
			return nil, fmt.Errorf("output kernel row %d has %d values, want 1", i, len(row))
		}
		h.w2 = append(h.w2, row[0])
	}
	return h, nil
}

// InputDim число каналов, которое ожидает голова.
func (h *Head) InputDim() int {
	return h.inputDim
}

// Gradients прогоняет карту признаков через голову и возвращает
// логит положительного класса и ∂y/∂A в порядке HWC.
func (h *Head) Gradients(fm entity.FeatureMap) (float64, []float64, error) {
	hw := fm.Height * fm.Width
	if fm.Channels != h.inputDim {
		return 0, nil, fmt.Errorf("feature map has %d channels, head expects %d", fm.Channels, h.inputDim)
	}
	if hw == 0 || len(fm.Data) != hw*fm.Channels {
		return 0, nil, fmt.Errorf("feature map data has %d values, want %d", len(fm.Data), hw*fm.Channels)
	}

	g := gorgonia.NewGraph()

	features := h.newMatrix(g, "features", hw, fm.Channels, fm.Data)
	w1 := h.newMatrix(g, "dense_kernel", h.inputDim, h.hiddenDim, h.w1)
	b1 := h.newVector(g, "dense_bias", h.b1)
	w2 := h.newMatrix(g, "output_kernel", h.hiddenDim, 1, h.w2)
	b2 := h.newVector(g, "output_bias", h.b2)

	// GAP: среднее по пространственной оси
	pooled, err := gorgonia.Mean(features, 0)
	if err != nil {
		return 0, nil, fmt.Errorf("pool: %w", err)
	}
	row, err := gorgonia.Reshape(pooled, tensor.Shape{1, h.inputDim})
	if err != nil {
		return 0, nil, fmt.Errorf("reshape: %w", err)
	}

	hidden, err := gorgonia.Mul(row, w1)
	if err != nil {
		return 0, nil, fmt.Errorf("dense mul: %w", err)
	}
	hidden, err = gorgonia.BroadcastAdd(hidden, b1, nil, []byte{0})
	if err != nil {
		return 0, nil, fmt.Errorf("dense bias: %w", err)
	}
	hidden, err = gorgonia.Rectify(hidden)
	if err != nil {
		return 0, nil, fmt.Errorf("dense relu: %w", err)
	}

	out, err := gorgonia.Mul(hidden, w2)
	if err != nil {
		return 0, nil, fmt.Errorf("output mul: %w", err)
	}
	out, err = gorgonia.BroadcastAdd(out, b2, nil, []byte{0})
	if err != nil {
		return 0, nil, fmt.Errorf("output bias: %w", err)
	}
	logit, err := gorgonia.Sum(out)
	if err != nil {
		return 0, nil, fmt.Errorf("logit: %w", err)
	}

	grads, err := gorgonia.Grad(logit, features)
	if err != nil {
		return 0, nil, fmt.Errorf("gradient failed: %w", err)
	}

	vm := gorgonia.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		return 0, nil, fmt.Errorf("vm run failed: %w", err)
	}

	y, ok := logit.Value().Data().(float64)
	if !ok {
		return 0, nil, fmt.Errorf("unexpected logit value %T", logit.Value().Data())
	}
	gv := grads[0].Value()
	if gv == nil {
		return 0, nil, fmt.Errorf("no gradient value")
	}
	data, ok := gv.Data().([]float64)
	if !ok {
		return 0, nil, fmt.Errorf("unexpected gradient value %T", gv.Data())
	}

	result := make([]float64, len(data))
	copy(result, data)
	return y, result, nil
}

func (h *Head) newMatrix(g *gorgonia.ExprGraph, name string, rows, cols int, backing []float64) *gorgonia.Node {
	t := tensor.New(
		tensor.WithShape(rows, cols),
		tensor.WithBacking(append([]float64(nil), backing...)),
	)
	return gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(rows, cols),
		gorgonia.WithName(name),
		gorgonia.WithValue(t),
	)
}

func (h *Head) newVector(g *gorgonia.ExprGraph, name string, backing []float64) *gorgonia.Node {
	t := tensor.New(
		tensor.WithShape(len(backing)),
		tensor.WithBacking(append([]float64(nil), backing...)),
	)
	return gorgonia.NewVector(g, tensor.Float64,
		gorgonia.WithShape(len(backing)),
		gorgonia.WithName(name),
		gorgonia.WithValue(t),
	)
}

// Проверка реализации интерфейса
var _ port.GradientHead = (*Head)(nil)
