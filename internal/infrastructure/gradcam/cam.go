package gradcam

import (
	"fmt"
	"math"

	"pneumoscan/internal/domain/entity"
)

// epsilon защищает нормализацию от деления на ноль
const epsilon = 1e-8

// ChannelWeights усредняет градиенты по пространству: w_c = mean_{y,x} ∂y/∂A[y,x,c].
func ChannelWeights(fm entity.FeatureMap, grads []float64) ([]float64, error) {
	hw := fm.Height * fm.Width
	if len(grads) != hw*fm.Channels {
		return nil, fmt.Errorf("gradient has %d values, want %d", len(grads), hw*fm.Channels)
	}
	weights := make([]float64, fm.Channels)
	for i, g := range grads {
		weights[i%fm.Channels] += g
	}
	for c := range weights {
		weights[c] /= float64(hw)
	}
	return weights, nil
}

// Compute строит карту Grad-CAM: ReLU(Σ_c w_c·A_c), делённую на max+ε.
func Compute(fm entity.FeatureMap, grads []float64) ([][]float64, error) {
	weights, err := ChannelWeights(fm, grads)
	if err != nil {
		return nil, err
	}

	cam := make([][]float64, fm.Height)
	peak := 0.0
	for y := 0; y < fm.Height; y++ {
		cam[y] = make([]float64, fm.Width)
		for x := 0; x < fm.Width; x++ {
			sum := 0.0
			for c, w := range weights {
				sum += w * fm.At(y, x, c)
			}
			if math.IsNaN(sum) || sum < 0 {
				sum = 0
			}
			cam[y][x] = sum
			if sum > peak {
				peak = sum
			}
		}
	}

	for y := range cam {
		for x := range cam[y] {
			cam[y][x] /= peak + epsilon
		}
	}
	return cam, nil
}
