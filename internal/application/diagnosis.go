package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pneumoscan/internal/domain/entity"
	"pneumoscan/internal/domain/port"
	"pneumoscan/internal/logging"
	"pneumoscan/internal/metrics"
)

// reportAttempts запись отчёта повторяется один раз
const reportAttempts = 2

// DiagnosisService конвейер диагностики:
// проверка модальности → классификация снимка → {объяснение, симптомы} →
// рекомендация → отчёт.
type DiagnosisService struct {
	validator   *ValidationService
	images      *ImageClassifier
	explainer   *SaliencyExplainer
	symptoms    *SymptomClassifier
	transcriber port.Transcriber
	reports     port.ReportStore
	metrics     *metrics.Metrics
	timeout     time.Duration
	log         *slog.Logger
}

// DiagnosisDeps зависимости конвейера. Explainer, Symptoms и Transcriber
// необязательны: без них соответствующие ветки пропускаются.
type DiagnosisDeps struct {
	Validator   *ValidationService
	Images      *ImageClassifier
	Explainer   *SaliencyExplainer
	Symptoms    *SymptomClassifier
	Transcriber port.Transcriber
	Reports     port.ReportStore
	Metrics     *metrics.Metrics
	Timeout     time.Duration // таймаут распознавания речи
}

// NewDiagnosisService собирает конвейер.
func NewDiagnosisService(deps DiagnosisDeps) *DiagnosisService {
	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}
	return &DiagnosisService{
		validator:   deps.Validator,
		images:      deps.Images,
		explainer:   deps.Explainer,
		symptoms:    deps.Symptoms,
		transcriber: deps.Transcriber,
		reports:     deps.Reports,
		metrics:     m,
		timeout:     deps.Timeout,
		log:         logging.New("pipeline"),
	}
}

// Validate только проверяет модальность снимка.
func (s *DiagnosisService) Validate(ctx context.Context, image []byte) (entity.ValidationResult, error) {
	s.metrics.Requests.WithLabelValues("validate").Inc()
	if len(image) == 0 {
		return entity.ValidationResult{}, &entity.InputError{Field: "image", Reason: "no image received"}
	}

	start := time.Now()
	out := s.validator.Validate(ctx, image)
	s.observe(entity.StageValidating, start)
	if out.Degraded {
		s.metrics.Degraded.WithLabelValues(string(entity.StageValidating)).Inc()
	}
	if !out.Value.InDomain {
		s.metrics.Rejections.Inc()
	}
	return out.Value, nil
}

// Diagnose прогоняет полный конвейер.
// Ошибки: *entity.InputError, *entity.DomainRejection, *entity.InferenceError,
// *entity.PersistenceError. Сбои объяснения и текста не прерывают запрос.
func (s *DiagnosisService) Diagnose(ctx context.Context, in entity.DiagnosisInput) (entity.DiagnosticReport, error) {
	s.metrics.Requests.WithLabelValues("diagnose").Inc()
	if len(in.Image) == 0 {
		return entity.DiagnosticReport{}, &entity.InputError{Field: "image", Reason: "chest X-ray image is required"}
	}

	log := s.log.With("request_id", uuid.NewString())
	var report entity.DiagnosticReport
	s.enter(log, entity.StageReceived)

	// Проверка модальности
	s.enter(log, entity.StageValidating)
	start := time.Now()
	validation := s.validator.Validate(ctx, in.Image)
	s.observe(entity.StageValidating, start)
	report.Validation = validation.Value
	if validation.Degraded {
		report.Degraded = append(report.Degraded, entity.StageValidating)
		s.metrics.Degraded.WithLabelValues(string(entity.StageValidating)).Inc()
	}
	if !validation.Value.InDomain {
		s.enter(log, entity.StageRejected)
		s.metrics.Rejections.Inc()
		return report, &entity.DomainRejection{Confidence: validation.Value.Confidence}
	}

	// Классификация снимка
	s.enter(log, entity.StageClassifyingImage)
	start = time.Now()
	result, input, err := s.images.Classify(ctx, in.Image)
	s.observe(entity.StageClassifyingImage, start)
	if err != nil {
		log.Error("image classification failed", "error", err)
		return report, err
	}
	report.Image = result
	s.metrics.Predictions.WithLabelValues(string(result.Label)).Inc()

	// Объяснение и симптомы независимы и идут параллельно
	var (
		overlay       *entity.SaliencyOverlay
		textOut       *entity.Outcome[entity.TextClassification]
		transcription *string
		g             errgroup.Group
	)
	if result.Positive() && s.explainer != nil {
		g.Go(func() error {
			s.enter(log, entity.StageExplaining)
			start := time.Now()
			ov, err := s.explainer.Explain(ctx, in.Image, input)
			s.observe(entity.StageExplaining, start)
			if err != nil {
				log.Warn("overlay omitted", "error", err)
				return nil
			}
			overlay = ov
			return nil
		})
	}
	if s.symptoms != nil && (len(in.Audio) > 0 || in.Text != nil) {
		g.Go(func() error {
			s.enter(log, entity.StageClassifyingText)
			start := time.Now()
			defer s.observe(entity.StageClassifyingText, start)

			text, transcribed, ok := s.symptomText(ctx, log, in)
			transcription = transcribed
			if !ok {
				return nil
			}
			out := s.symptoms.Classify(ctx, text)
			textOut = &out
			return nil
		})
	}
	_ = g.Wait()

	report.Overlay = overlay
	report.Transcription = transcription
	if result.Positive() && s.explainer != nil && overlay == nil {
		report.Degraded = append(report.Degraded, entity.StageExplaining)
		s.metrics.Degraded.WithLabelValues(string(entity.StageExplaining)).Inc()
	}
	if textOut != nil {
		if textOut.Degraded {
			report.Degraded = append(report.Degraded, entity.StageClassifyingText)
			s.metrics.Degraded.WithLabelValues(string(entity.StageClassifyingText)).Inc()
			log.Warn("no text signal", "reason", textOut.Reason)
		} else {
			text := textOut.Value
			report.Text = &text
		}
	}

	// Рекомендация
	s.enter(log, entity.StageRecommending)
	var textLabel *entity.TextLabel
	if report.Text != nil {
		textLabel = &report.Text.Label
	}
	report.Recommendation = Recommend(result.Label, result.Confidence, textLabel)
	if result.Positive() {
		report.PneumoniaType = entity.PneumoniaUndetermined
		if textLabel != nil {
			report.PneumoniaType = string(*textLabel)
		}
	}

	// Отчёт
	s.enter(log, entity.StageReporting)
	start = time.Now()
	path, err := s.saveReport(ctx, log, report.Record())
	s.observe(entity.StageReporting, start)
	if err != nil {
		log.Error("report not persisted", "error", err)
		return report, err
	}
	report.ReportPath = path

	s.enter(log, entity.StageComplete)
	log.Info("diagnosis complete",
		"label", result.Label,
		"confidence", entity.Round4(result.Confidence),
		"pneumonia_type", report.PneumoniaType,
		"degraded", len(report.Degraded))
	return report, nil
}

// symptomText выбирает источник текста: аудио приоритетнее текста.
// Если распознавание не удалось, используется текст, если он есть.
func (s *DiagnosisService) symptomText(ctx context.Context, log *slog.Logger, in entity.DiagnosisInput) (text string, transcription *string, ok bool) {
	if len(in.Audio) > 0 {
		if s.transcriber == nil {
			log.Warn("audio received but no transcriber configured")
		} else {
			t, err := runStage(ctx, s.timeout, func(ctx context.Context) (string, error) {
				return s.transcriber.Transcribe(ctx, in.Audio)
			})
			if err == nil {
				t = strings.TrimSpace(t)
				return t, &t, true
			}
			log.Warn("transcription failed", "error", err)
		}
	}
	if in.Text != nil && *in.Text != "" {
		return *in.Text, nil, true
	}
	return "", nil, false
}

// saveReport пишет отчёт, при ошибке повторяет один раз.
func (s *DiagnosisService) saveReport(ctx context.Context, log *slog.Logger, record entity.ReportRecord) (string, error) {
	if s.reports == nil {
		return "", &entity.PersistenceError{Err: errors.New("report store is not configured")}
	}

	var err error
	for attempt := 1; attempt <= reportAttempts; attempt++ {
		var path string
		path, err = s.reports.Save(ctx, record)
		if err == nil {
			return path, nil
		}
		log.Warn("report save failed", "attempt", attempt, "error", err)
		if ctx.Err() != nil {
			break
		}
	}
	return "", &entity.PersistenceError{Err: err}
}

func (s *DiagnosisService) enter(log *slog.Logger, stage entity.Stage) {
	log.Debug("stage", "stage", stage)
}

func (s *DiagnosisService) observe(stage entity.Stage, start time.Time) {
	s.metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
}
