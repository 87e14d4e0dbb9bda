package entity

// ImageLabel метка классификатора снимка
type ImageLabel string

const (
	ImagePositive ImageLabel = "PNEUMONIA"
	ImageNegative ImageLabel = "NORMAL"
)

// TextLabel метка классификатора симптомов
type TextLabel string

const (
	TextNormal    TextLabel = "NORMAL"
	TextBacterial TextLabel = "BACTERIAL_PNEUMONIA"
	TextViral     TextLabel = "VIRAL_PNEUMONIA"
)

// ClassificationResult результат классификации снимка.
// Confidence всегда означает уверенность в выданной метке, а не сырой скор.
type ClassificationResult struct {
	Label      ImageLabel
	Confidence float64
}

// Positive сообщает, найден ли положительный класс.
func (r ClassificationResult) Positive() bool {
	return r.Label == ImagePositive
}

// TextClassification результат классификации текста симптомов.
type TextClassification struct {
	Label      TextLabel
	Confidence float64
}

// ValidationResult итог проверки модальности снимка.
type ValidationResult struct {
	InDomain   bool
	Confidence float64
}
