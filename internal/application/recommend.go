package app

import "pneumoscan/internal/domain/entity"

// Тексты рекомендаций
const (
	RecommendConflicting = "The chest X-ray does not show radiological evidence of pneumonia; " +
		"however, the reported symptoms suggest a possible respiratory condition. " +
		"Clinical consultation is recommended."
	RecommendNormal = "No radiological evidence of pneumonia detected. " +
		"Routine clinical observation is recommended."
	RecommendHigh = "High likelihood of pneumonia detected. " +
		"Physician consultation is strongly recommended."
	RecommendModerate = "Moderate likelihood of pneumonia detected. " +
		"Clinical correlation and follow-up assessment may be considered."
	RecommendLow = "Low confidence indication of pneumonia. " +
		"Monitoring and clinical assessment are advised."
)

// Пороги уверенности для положительного снимка
const (
	HighConfidence     = 0.80
	ModerateConfidence = 0.60
)

// Recommend выбирает рекомендацию, срабатывает первое подходящее правило.
// text == nil означает, что текстового сигнала нет.
func Recommend(label entity.ImageLabel, confidence float64, text *entity.TextLabel) string {
	if label != entity.ImagePositive {
		if text != nil && *text != entity.TextNormal {
			return RecommendConflicting
		}
		return RecommendNormal
	}

	switch {
	case confidence >= HighConfidence:
		return RecommendHigh
	case confidence >= ModerateConfidence:
		return RecommendModerate
	default:
		return RecommendLow
	}
}
