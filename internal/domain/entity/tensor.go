package entity

// Layout порядок осей тензора изображения
type Layout string

const (
	LayoutNHWC Layout = "NHWC" // batch, height, width, channels (Keras)
	LayoutNCHW Layout = "NCHW" // batch, channels, height, width (PyTorch)
)

// ImageTensor нормализованное изображение, готовое для инференса.
// Значения лежат в [0,1], размер батча всегда 1.
type ImageTensor struct {
	Data     []float32
	Size     int    // сторона квадрата в пикселях
	Channels int    // 1 или 3
	Layout   Layout // порядок осей
}

// Shape возвращает форму тензора с явными осями батча и каналов.
func (t ImageTensor) Shape() []int64 {
	s, c := int64(t.Size), int64(t.Channels)
	if t.Layout == LayoutNCHW {
		return []int64{1, c, s, s}
	}
	return []int64{1, s, s, c}
}

// At возвращает значение пикселя (x, y) в канале ch.
func (t ImageTensor) At(x, y, ch int) float32 {
	if t.Layout == LayoutNCHW {
		return t.Data[ch*t.Size*t.Size+y*t.Size+x]
	}
	return t.Data[(y*t.Size+x)*t.Channels+ch]
}
