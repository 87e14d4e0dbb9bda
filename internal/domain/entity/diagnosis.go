package entity

import (
	"math"
	"time"
)

// PneumoniaUndetermined подтип, когда текстового сигнала нет
const PneumoniaUndetermined = "Undetermined (image-based)"

// Stage состояние конвейера диагностики
type Stage string

const (
	StageReceived         Stage = "received"
	StageValidating       Stage = "validating"
	StageRejected         Stage = "rejected"
	StageClassifyingImage Stage = "classifying_image"
	StageExplaining       Stage = "explaining"
	StageClassifyingText  Stage = "classifying_text"
	StageRecommending     Stage = "recommending"
	StageReporting        Stage = "reporting"
	StageComplete         Stage = "complete"
)

// DiagnosisInput входные данные одного запроса.
type DiagnosisInput struct {
	Image []byte
	Audio []byte  // голосовое описание симптомов, приоритетнее Text
	Text  *string // nil, если текст не передавали
}

// DiagnosticReport итог работы конвейера.
type DiagnosticReport struct {
	Validation     ValidationResult
	Image          ClassificationResult
	Text           *TextClassification
	Transcription  *string
	Overlay        *SaliencyOverlay
	PneumoniaType  string
	Recommendation string
	ReportPath     string
	Degraded       []Stage // необязательные этапы, которые не дали сигнала
}

// Record собирает запись для хранилища отчётов.
func (r DiagnosticReport) Record() ReportRecord {
	rec := ReportRecord{
		ImagePrediction: string(r.Image.Label),
		ImageConfidence: Round4(r.Image.Confidence),
		Transcription:   r.Transcription,
		PneumoniaType:   r.PneumoniaType,
		Recommendation:  r.Recommendation,
	}
	if r.Text != nil {
		rec.TextPrediction = string(r.Text.Label)
	}
	if r.Overlay != nil {
		rec.GradcamImage = r.Overlay.Reference
	}
	for _, st := range r.Degraded {
		rec.Degraded = append(rec.Degraded, string(st))
	}
	return rec
}

// Round4 округляет уверенность до 4 знаков и зажимает в [0,1].
func Round4(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return math.Round(v*1e4) / 1e4
}

// ReportRecord то, что уходит в хранилище отчётов.
type ReportRecord struct {
	ImagePrediction string   `json:"image_prediction"`
	ImageConfidence float64  `json:"image_confidence"`
	Transcription   *string  `json:"transcription,omitempty"`
	TextPrediction  string   `json:"text_prediction,omitempty"`
	PneumoniaType   string   `json:"pneumonia_type,omitempty"`
	GradcamImage    string   `json:"gradcam_image,omitempty"`
	Recommendation  string   `json:"recommendation"`
	Degraded        []string `json:"degraded,omitempty"`
}

// ReportSummary строка индекса сохранённых отчётов.
type ReportSummary struct {
	ID              string    `json:"id"`
	File            string    `json:"file"`
	CreatedAt       time.Time `json:"created_at"`
	ImagePrediction string    `json:"image_prediction"`
	ImageConfidence float64   `json:"image_confidence"`
	PneumoniaType   string    `json:"pneumonia_type,omitempty"`
	Recommendation  string    `json:"recommendation"`
}
