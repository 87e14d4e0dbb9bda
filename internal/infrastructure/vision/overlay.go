package vision

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"

	"github.com/nfnt/resize"

	"pneumoscan/internal/domain/port"
)

// Доли смешивания исходного снимка и тепловой карты
const (
	SourceWeight  = 0.6
	HeatmapWeight = 0.4
)

// OverlayRenderer рисует карту внимания на чистом Go.
type OverlayRenderer struct{}

// Render масштабирует снимок и карту до size×size, раскрашивает карту
// палитрой JET и смешивает 60/40.
func (r *OverlayRenderer) Render(source []byte, heatmap [][]float64, size int) ([]byte, error) {
	src, err := Decode(source)
	if err != nil {
		return nil, err
	}
	base := resize.Resize(uint(size), uint(size), src, resize.Bilinear)
	heat := UpsampleHeatmap(heatmap, size)

	bb := base.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			sr, sg, sb, _ := base.At(bb.Min.X+x, bb.Min.Y+y).RGBA()
			hc := Jet(heat[y][x])
			out.SetRGBA(x, y, color.RGBA{
				R: blend(uint8(sr>>8), hc.R),
				G: blend(uint8(sg>>8), hc.G),
				B: blend(uint8(sb>>8), hc.B),
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func blend(src, heat uint8) uint8 {
	v := SourceWeight*float64(src) + HeatmapWeight*float64(heat)
	return uint8(math.Round(math.Min(255, v)))
}

// UpsampleHeatmap билинейно растягивает карту [0,1] до size×size.
func UpsampleHeatmap(heatmap [][]float64, size int) [][]float64 {
	h := len(heatmap)
	w := 0
	if h > 0 {
		w = len(heatmap[0])
	}

	out := make([][]float64, size)
	for i := range out {
		out[i] = make([]float64, size)
	}
	if h == 0 || w == 0 {
		return out
	}

	small := image.NewGray16(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			small.SetGray16(x, y, color.Gray16{Y: uint16(math.Round(clamp01(heatmap[y][x]) * 65535))})
		}
	}

	big := resize.Resize(uint(size), uint(size), small, resize.Bilinear)
	bb := big.Bounds()
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			g := color.Gray16Model.Convert(big.At(bb.Min.X+x, bb.Min.Y+y)).(color.Gray16)
			out[y][x] = float64(g.Y) / 65535.0
		}
	}
	return out
}

// Jet палитра COLORMAP_JET: 0 даёт тёмно-синий, 1 тёмно-красный.
func Jet(v float64) color.RGBA {
	// как в cv2.applyColorMap, значение сначала квантуется в uint8
	q := math.Round(clamp01(v)*255) / 255
	return color.RGBA{
		R: channel(1.5 - math.Abs(4*q-3)),
		G: channel(1.5 - math.Abs(4*q-2)),
		B: channel(1.5 - math.Abs(4*q-1)),
		A: 255,
	}
}

func channel(v float64) uint8 {
	return uint8(math.Round(clamp01(v) * 255))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Проверка реализации интерфейса
var _ port.OverlayRenderer = (*OverlayRenderer)(nil)
