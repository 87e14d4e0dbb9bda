//go:build gocv
// +build gocv

package vision

import (
	"errors"
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	"pneumoscan/internal/domain/port"
)

// GoCVRenderer рисует карту внимания средствами OpenCV.
type GoCVRenderer struct{}

// NewRenderer возвращает рендерер на OpenCV (сборка с тегом gocv).
func NewRenderer() port.OverlayRenderer {
	return &GoCVRenderer{}
}

// Render повторяет cv2.applyColorMap + cv2.addWeighted.
func (r *GoCVRenderer) Render(source []byte, heatmap [][]float64, size int) ([]byte, error) {
	src, err := decodeToMat(source)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	base := gocv.NewMat()
	defer base.Close()
	gocv.Resize(src, &base, image.Pt(size, size), 0, 0, gocv.InterpolationLinear)

	h := len(heatmap)
	if h == 0 || len(heatmap[0]) == 0 {
		return nil, errors.New("empty heatmap")
	}
	w := len(heatmap[0])

	raw := make([]byte, 0, h*w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			raw = append(raw, uint8(math.Round(clamp01(heatmap[y][x])*255)))
		}
	}

	small, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8U, raw)
	if err != nil {
		return nil, fmt.Errorf("heatmap mat: %w", err)
	}
	defer small.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.Resize(small, &gray, image.Pt(size, size), 0, 0, gocv.InterpolationLinear)

	colored := gocv.NewMat()
	defer colored.Close()
	gocv.ApplyColorMap(gray, &colored, gocv.ColormapJet)

	overlay := gocv.NewMat()
	defer overlay.Close()
	gocv.AddWeighted(base, SourceWeight, colored, HeatmapWeight, 0, &overlay)

	buf, err := gocv.IMEncode(gocv.PNGFileExt, overlay)
	if err != nil {
		return nil, fmt.Errorf("encode overlay: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// decodeToMat превращает байты изображения в gocv.Mat.
func decodeToMat(imageData []byte) (gocv.Mat, error) {
	if err := checkDimensions(imageData); err != nil {
		return gocv.NewMat(), err
	}
	mat, err := gocv.IMDecode(imageData, gocv.IMReadColor)
	if err == nil && !mat.Empty() {
		return mat, nil
	}
	if !mat.Empty() {
		mat.Close()
	}
	return gocv.NewMat(), errors.New("failed to decode image")
}

// Проверка реализации интерфейса
var _ port.OverlayRenderer = (*GoCVRenderer)(nil)
