package entity

// FeatureMap выход последнего сверточного слоя: H×W×C в порядке HWC.
type FeatureMap struct {
	Height   int
	Width    int
	Channels int
	Data     []float64
}

// At возвращает активацию канала c в точке (y, x).
func (f FeatureMap) At(y, x, c int) float64 {
	return f.Data[(y*f.Width+x)*f.Channels+c]
}

// SaliencyOverlay тепловая карта внимания классификатора.
type SaliencyOverlay struct {
	Map       [][]float64 // нормализованная карта [0,1], строки по Y
	Rendered  []byte      // PNG с наложением
	Reference string      // путь в хранилище артефактов
}
