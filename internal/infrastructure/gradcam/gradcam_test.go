package gradcam

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"pneumoscan/internal/domain/entity"
)

func testHead(t *testing.T) *Head {
	t.Helper()
	h, err := NewHead(
		[][]float64{{1, 0}, {0, 1}}, []float64{0, -100},
		[][]float64{{2}, {3}}, []float64{0.5},
	)
	require.NoError(t, err)
	return h
}

func TestHeadGradients(t *testing.T) {
	h := testHead(t)
	// две пространственные позиции, два канала
	fm := entity.FeatureMap{Height: 1, Width: 2, Channels: 2, Data: []float64{1, 2, 3, 4}}

	// mean = [2, 3]; pre = [2, -97]; relu = [2, 0]; y = 2*2 + 0.5
	y, grads, err := h.Gradients(fm)
	require.NoError(t, err)
	require.InDelta(t, 4.5, y, 1e-9)

	// ∂y/∂A[i][0] = W1[0][0]*w2[0]/hw = 1; второй нейрон мёртв, поэтому канал 1 даёт 0
	require.Len(t, grads, 4)
	require.InDelta(t, 1.0, grads[0], 1e-9)
	require.InDelta(t, 0.0, grads[1], 1e-9)
	require.InDelta(t, 1.0, grads[2], 1e-9)
	require.InDelta(t, 0.0, grads[3], 1e-9)
}

func TestHeadGradients_ChannelMismatch(t *testing.T) {
	h := testHead(t)
	_, _, err := h.Gradients(entity.FeatureMap{Height: 1, Width: 1, Channels: 3, Data: []float64{1, 2, 3}})
	require.Error(t, err)

	_, _, err = h.Gradients(entity.FeatureMap{Height: 2, Width: 2, Channels: 2, Data: []float64{1, 2}})
	require.Error(t, err)
}

func TestNewHead_ShapeValidation(t *testing.T) {
	_, err := NewHead(nil, nil, nil, nil)
	require.Error(t, err)

	_, err = NewHead([][]float64{{1, 2}}, []float64{0}, [][]float64{{1}, {1}}, []float64{0})
	require.Error(t, err)

	_, err = NewHead([][]float64{{1, 2}}, []float64{0, 0}, [][]float64{{1}}, []float64{0})
	require.Error(t, err)
}

func TestLoadHead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "head.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"dense": {"kernel": [[1, 0], [0, 1]], "bias": [0, -100]},
		"output": {"kernel": [[2], [3]], "bias": [0.5]}
	}`), 0o644))

	h, err := LoadHead(path)
	require.NoError(t, err)
	require.Equal(t, 2, h.InputDim())

	_, err = LoadHead(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestCompute(t *testing.T) {
	// 2×2 карта, 2 канала
	fm := entity.FeatureMap{Height: 2, Width: 2, Channels: 2, Data: []float64{
		1, 0, // (0,0)
		2, 0, // (0,1)
		0, 5, // (1,0)
		4, 1, // (1,1)
	}}
	// w = [1, -1] после усреднения
	grads := []float64{1, -1, 1, -1, 1, -1, 1, -1}

	cam, err := Compute(fm, grads)
	require.NoError(t, err)

	// сырые значения: 1, 2, -5 -> 0, 3; максимум 3
	require.InDelta(t, 1.0/3.0, cam[0][0], 1e-6)
	require.InDelta(t, 2.0/3.0, cam[0][1], 1e-6)
	require.InDelta(t, 0.0, cam[1][0], 1e-9)
	require.InDelta(t, 1.0, cam[1][1], 1e-6)
}

func TestCompute_AllNegativeIsZeroMap(t *testing.T) {
	fm := entity.FeatureMap{Height: 1, Width: 2, Channels: 1, Data: []float64{1, 2}}
	cam, err := Compute(fm, []float64{-1, -1})
	require.NoError(t, err)
	require.Equal(t, [][]float64{{0, 0}}, cam)
}

func TestCompute_GradientSizeMismatch(t *testing.T) {
	fm := entity.FeatureMap{Height: 1, Width: 1, Channels: 2, Data: []float64{1, 2}}
	_, err := Compute(fm, []float64{1})
	require.Error(t, err)
}
