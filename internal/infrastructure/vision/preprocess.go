package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"pneumoscan/internal/domain/entity"
	"pneumoscan/internal/domain/port"
)

// Preprocessor декодирует снимок и приводит его к входу модели.
type Preprocessor struct {
	Size     int
	Channels int
	Layout   entity.Layout
}

// NewPreprocessor создаёт препроцессор под квадратный вход size×size.
func NewPreprocessor(size, channels int, layout entity.Layout) *Preprocessor {
	if layout == "" {
		layout = entity.LayoutNHWC
	}
	return &Preprocessor{Size: size, Channels: channels, Layout: layout}
}

// Preprocess декодирует, масштабирует и нормализует изображение в [0,1].
// Срез data не изменяется и может быть прочитан повторно.
func (p *Preprocessor) Preprocess(data []byte) (entity.ImageTensor, error) {
	if p.Size <= 0 {
		return entity.ImageTensor{}, fmt.Errorf("invalid target size %d", p.Size)
	}
	if p.Channels != 1 && p.Channels != 3 {
		return entity.ImageTensor{}, fmt.Errorf("unsupported channel count %d", p.Channels)
	}

	img, err := Decode(data)
	if err != nil {
		return entity.ImageTensor{}, err
	}

	resized := resize.Resize(uint(p.Size), uint(p.Size), img, resize.Bilinear)
	bounds := resized.Bounds()

	t := entity.ImageTensor{
		Data:     make([]float32, p.Size*p.Size*p.Channels),
		Size:     p.Size,
		Channels: p.Channels,
		Layout:   p.Layout,
	}
	plane := p.Size * p.Size

	for y := 0; y < p.Size; y++ {
		for x := 0; x < p.Size; x++ {
			px := resized.At(bounds.Min.X+x, bounds.Min.Y+y)

			if p.Channels == 1 {
				g := color.GrayModel.Convert(px).(color.Gray)
				// для одного канала NHWC и NCHW совпадают
				t.Data[y*p.Size+x] = float32(g.Y) / 255.0
				continue
			}

			r, g, b, _ := px.RGBA()
			vals := [3]float32{float32(r) / 65535.0, float32(g) / 65535.0, float32(b) / 65535.0}
			for ch, v := range vals {
				if p.Layout == entity.LayoutNCHW {
					t.Data[ch*plane+y*p.Size+x] = v
				} else {
					t.Data[(y*p.Size+x)*3+ch] = v
				}
			}
		}
	}

	return t, nil
}

// MaxPixels предел площади снимка. Заголовок проверяется до декодирования,
// чтобы маленький файл не мог объявить гигантский растр.
const MaxPixels = 8192 * 8192

// Decode превращает байты в image.Image.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, &entity.DecodeError{Err: errors.New("empty image")}
	}
	if err := checkDimensions(data); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &entity.DecodeError{Err: err}
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, &entity.DecodeError{Err: errors.New("empty image")}
	}
	return img, nil
}

// checkDimensions читает только заголовок и отклоняет снимки больше MaxPixels.
func checkDimensions(data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return &entity.DecodeError{Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return &entity.DecodeError{Err: errors.New("empty image")}
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return &entity.DecodeError{Err: fmt.Errorf("image is %dx%d, limit is %d pixels", cfg.Width, cfg.Height, MaxPixels)}
	}
	return nil
}

// Проверка реализации интерфейса
var _ port.Preprocessor = (*Preprocessor)(nil)
