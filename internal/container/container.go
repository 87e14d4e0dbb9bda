package container

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"pneumoscan/config"
	app "pneumoscan/internal/application"
	"pneumoscan/internal/domain/entity"
	"pneumoscan/internal/domain/port"
	"pneumoscan/internal/infrastructure/bundle"
	"pneumoscan/internal/infrastructure/gradcam"
	"pneumoscan/internal/infrastructure/llm"
	"pneumoscan/internal/infrastructure/onnx"
	"pneumoscan/internal/infrastructure/speech"
	"pneumoscan/internal/infrastructure/storage"
	"pneumoscan/internal/infrastructure/textmodel"
	"pneumoscan/internal/infrastructure/vision"
	"pneumoscan/internal/logging"
	"pneumoscan/internal/metrics"
)

type Container struct {
	Metrics      *metrics.Metrics
	UserService  *app.UserService
	Diagnosis    *app.DiagnosisService
	Consultation *app.ConsultationService
	Assistant    *app.AssistantService
	Files        FileResolver

	closers []func()
}

// FileResolver отдаёт пути к сохранённым отчётам и картам внимания
// и список последних отчётов
type FileResolver interface {
	ReportPath(name string) (string, error)
	ArtifactPath(name string) (string, error)
	RecentReports(ctx context.Context, limit int) ([]entity.ReportSummary, error)
}

// Parts готовые адаптеры, из которых собираются сервисы.
// Необязательные поля могут быть nil.
type Parts struct {
	ImageBundle     entity.ModelBundle
	ValidatorBundle entity.ValidatorBundle
	SymptomBundle   entity.SymptomBundle

	ImagePreprocessor     port.Preprocessor
	ValidatorPreprocessor port.Preprocessor
	ImageModel            port.ScoreModel
	ValidatorModel        port.ScoreModel
	Saliency              port.SaliencyModel
	Renderer              port.OverlayRenderer
	Tokenizer             port.Tokenizer
	TextModel             port.TextModel
	Transcriber           port.Transcriber
	Chat                  port.ChatModel

	Users     port.UserRepository
	Artifacts port.ArtifactStore
	Reports   port.ReportStore
	Files     FileResolver
	Metrics   *metrics.Metrics

	StageTimeout time.Duration
}

// New собирает сервисы приложения из готовых адаптеров.
func New(p Parts) *Container {
	m := p.Metrics
	if m == nil {
		m = metrics.New()
	}

	userService := app.NewUserService(p.Users)
	validator := app.NewValidationService(p.ValidatorPreprocessor, p.ValidatorModel, p.ValidatorBundle, p.StageTimeout)
	images := app.NewImageClassifier(p.ImagePreprocessor, p.ImageModel, p.ImageBundle, p.StageTimeout)
	explainer := app.NewSaliencyExplainer(p.Saliency, p.Renderer, p.Artifacts, p.StageTimeout)

	var symptoms *app.SymptomClassifier
	if p.Tokenizer != nil && p.TextModel != nil {
		symptoms = app.NewSymptomClassifier(p.Tokenizer, p.TextModel, p.SymptomBundle, p.StageTimeout)
	}

	diagnosis := app.NewDiagnosisService(app.DiagnosisDeps{
		Validator:   validator,
		Images:      images,
		Explainer:   explainer,
		Symptoms:    symptoms,
		Transcriber: p.Transcriber,
		Reports:     p.Reports,
		Metrics:     m,
		Timeout:     p.StageTimeout,
	})

	return &Container{
		Metrics:      m,
		UserService:  userService,
		Diagnosis:    diagnosis,
		Consultation: app.NewConsultationService(userService, diagnosis),
		Assistant:    app.NewAssistantService(p.Chat),
		Files:        p.Files,
	}
}

// Build поднимает модели и хранилища по конфигурации и собирает контейнер.
// Классификатор снимков и валидатор обязательны, остальное подключается,
// если настроено.
func Build(cfg *config.Config) (*Container, error) {
	log := logging.New("container")

	if err := onnx.Init(cfg.ONNXRuntime); err != nil {
		return nil, err
	}

	var closers []func()
	fail := func(err error) (*Container, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		onnx.Shutdown()
		return nil, err
	}

	imageBundle, err := bundle.LoadImage(cfg.ModelsDir)
	if err != nil {
		return fail(fmt.Errorf("image model: %w", err))
	}
	validatorBundle, err := bundle.LoadValidator(cfg.ModelsDir)
	if err != nil {
		return fail(fmt.Errorf("validator model: %w", err))
	}
	log.Info("model bundles loaded",
		"architecture", imageBundle.Architecture,
		"input_size", imageBundle.InputSize,
		"validator_convention", validatorBundle.Convention)

	imageModel, err := onnx.NewImageModel(imageBundle)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, imageModel.Close)

	validatorModel, err := onnx.NewValidatorModel(validatorBundle)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, validatorModel.Close)

	p := Parts{
		ImageBundle:           imageBundle,
		ValidatorBundle:       validatorBundle,
		ImagePreprocessor:     vision.NewPreprocessor(imageBundle.InputSize, imageBundle.Channels, imageBundle.Layout),
		ValidatorPreprocessor: vision.NewPreprocessor(validatorBundle.InputSize, validatorBundle.Channels, validatorBundle.Layout),
		ImageModel:            imageModel,
		ValidatorModel:        validatorModel,
		Renderer:              vision.NewRenderer(),
		Users:                 storage.NewMemoryUserRepository(),
		StageTimeout:          cfg.StageTimeout,
	}

	p.Saliency, err = loadSaliency(imageBundle, imageModel)
	if err != nil {
		log.Warn("grad-cam disabled, overlays will be omitted", "error", err)
	}

	if err := loadSymptoms(cfg, &p, &closers); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fail(fmt.Errorf("symptom model: %w", err))
		}
		log.Warn("symptom model not found, text path disabled", "dir", cfg.ModelsDir)
	}

	if cfg.TranscribeURL != "" {
		transcriber, err := speech.NewClient(speech.Config{
			URL:     cfg.TranscribeURL,
			APIKey:  cfg.TranscribeAPIKey,
			Model:   cfg.TranscribeModel,
			Timeout: cfg.StageTimeout,
		})
		if err != nil {
			return fail(err)
		}
		p.Transcriber = transcriber
	}

	if cfg.GroqAPIKey != "" {
		chat, err := llm.NewClient(llm.Config{
			APIKey:  cfg.GroqAPIKey,
			BaseURL: cfg.GroqBaseURL,
			Model:   cfg.GroqModel,
		})
		if err != nil {
			return fail(err)
		}
		p.Chat = chat
	} else {
		log.Warn("GROQ_API_KEY is not set, assistant will answer as unavailable")
	}

	artifacts, err := storage.NewFileArtifactStore(cfg.DataDir)
	if err != nil {
		return fail(err)
	}
	reports, err := storage.NewFileReportStore(cfg.DataDir)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() { reports.Close() })

	p.Artifacts = artifacts
	p.Reports = reports
	p.Files = files{artifacts: artifacts, reports: reports}

	c := New(p)
	c.closers = closers
	return c, nil
}

// Close освобождает модели и хранилища.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	if len(c.closers) > 0 {
		onnx.Shutdown()
	}
}

func loadSaliency(b entity.ModelBundle, features port.FeatureModel) (port.SaliencyModel, error) {
	if b.FeatureOutput == "" {
		return nil, onnx.ErrNoFeatureOutput
	}
	if b.HeadPath == "" {
		return nil, errors.New("classifier head weights are not configured")
	}
	head, err := gradcam.LoadHead(b.HeadPath)
	if err != nil {
		return nil, err
	}
	if _, _, c := b.FeatureShape(); head.InputDim() != c {
		return nil, fmt.Errorf("head expects %d channels, %s has %d", head.InputDim(), b.Architecture, c)
	}
	return gradcam.NewExplainer(features, head), nil
}

func loadSymptoms(cfg *config.Config, p *Parts, closers *[]func()) error {
	b, err := bundle.LoadSymptom(cfg.ModelsDir)
	if err != nil {
		return err
	}
	tokenizer, err := textmodel.LoadWordPiece(b.VocabPath, b.MaxLength, b.Lowercase)
	if err != nil {
		return err
	}
	model, err := onnx.NewTextModel(b)
	if err != nil {
		return err
	}
	*closers = append(*closers, model.Close)

	logging.New("container").Debug("symptom model loaded", "labels", b.Labels, "vocab", filepath.Base(b.VocabPath))
	p.SymptomBundle = b
	p.Tokenizer = tokenizer
	p.TextModel = model
	return nil
}

type files struct {
	artifacts *storage.FileArtifactStore
	reports   *storage.FileReportStore
}

func (f files) ReportPath(name string) (string, error)   { return f.reports.Path(name) }
func (f files) ArtifactPath(name string) (string, error) { return f.artifacts.Path(name) }

func (f files) RecentReports(ctx context.Context, limit int) ([]entity.ReportSummary, error) {
	return f.reports.Recent(ctx, limit)
}
