package telegram

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	app "pneumoscan/internal/application"
	"pneumoscan/internal/domain/entity"
)

func TestFormatReport(t *testing.T) {
	transcript := "high fever"
	text := FormatReport(entity.DiagnosticReport{
		Image:          entity.ClassificationResult{Label: entity.ImagePositive, Confidence: 0.85},
		Transcription:  &transcript,
		PneumoniaType:  string(entity.TextBacterial),
		Recommendation: app.RecommendHigh,
	})

	require.Contains(t, text, "Признаки пневмонии обнаружены")
	require.Contains(t, text, "PNEUMONIA, уверенность 0.8500")
	require.Contains(t, text, "high fever")
	require.Contains(t, text, "BACTERIAL_PNEUMONIA")
	require.Contains(t, text, app.RecommendHigh)
}

func TestFormatReport_Negative(t *testing.T) {
	text := FormatReport(entity.DiagnosticReport{
		Image:          entity.ClassificationResult{Label: entity.ImageNegative, Confidence: 0.9},
		Recommendation: app.RecommendNormal,
	})

	require.Contains(t, text, "Признаков пневмонии не обнаружено")
	require.NotContains(t, text, "Тип:")
	require.NotContains(t, text, "Распознанный текст")
}

func TestFormatValidation(t *testing.T) {
	require.Contains(t, FormatValidation(entity.ValidationResult{InDomain: true, Confidence: 0.91}), "0.9100")
	require.Contains(t, FormatValidation(entity.ValidationResult{Confidence: 0.3}), "🚫")
}

func TestFailureMessage(t *testing.T) {
	require.Contains(t, FailureMessage(&entity.DomainRejection{Confidence: 0.2}), "0.2000")
	require.Equal(t, msgReportError, FailureMessage(&entity.PersistenceError{Err: errors.New("disk")}))
	require.Equal(t, msgProcessingError, FailureMessage(&entity.InferenceError{Err: errors.New("onnx")}))
	require.Equal(t, msgBusy, FailureMessage(app.ErrBusy))
}
