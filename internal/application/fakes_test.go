package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"pneumoscan/internal/domain/entity"
	"pneumoscan/internal/domain/port"
)

var errBoom = errors.New("boom")

type fakePreprocessor struct {
	size int
	err  error
}

func (f fakePreprocessor) Preprocess(data []byte) (entity.ImageTensor, error) {
	if f.err != nil {
		return entity.ImageTensor{}, f.err
	}
	size := f.size
	if size == 0 {
		size = 4
	}
	return entity.ImageTensor{Data: make([]float32, size*size), Size: size, Channels: 1}, nil
}

type fakeScore struct {
	score float64
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (f *fakeScore) Score(ctx context.Context, _ entity.ImageTensor) (float64, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.score, f.err
}

type fakeSaliency struct {
	heatmap [][]float64
	err     error
}

func (f fakeSaliency) Saliency(context.Context, entity.ImageTensor) ([][]float64, error) {
	return f.heatmap, f.err
}

type fakeRenderer struct {
	err  error
	size int
}

func (f *fakeRenderer) Render(_ []byte, _ [][]float64, size int) ([]byte, error) {
	f.size = size
	if f.err != nil {
		return nil, f.err
	}
	return []byte("png"), nil
}

type fakeArtifacts struct {
	err error
}

func (f fakeArtifacts) Save(context.Context, []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "static/gradcam/gradcam_test.png", nil
}

type fakeTokenizer struct {
	err error
}

func (f fakeTokenizer) Encode(text string) (port.Encoding, error) {
	if f.err != nil {
		return port.Encoding{}, f.err
	}
	return port.Encoding{InputIDs: []int64{101, 102}, AttentionMask: []int64{1, 1}, TypeIDs: []int64{0, 0}}, nil
}

type fakeTextModel struct {
	logits []float32
	err    error
	calls  atomic.Int32
}

func (f *fakeTextModel) Logits(context.Context, port.Encoding) ([]float32, error) {
	f.calls.Add(1)
	return f.logits, f.err
}

type fakeTranscriber struct {
	text  string
	err   error
	calls atomic.Int32
}

func (f *fakeTranscriber) Transcribe(context.Context, []byte) (string, error) {
	f.calls.Add(1)
	return f.text, f.err
}

type fakeReports struct {
	mu      sync.Mutex
	fails   int
	calls   int
	records []entity.ReportRecord
}

func (f *fakeReports) Save(_ context.Context, rec entity.ReportRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fails {
		return "", errBoom
	}
	f.records = append(f.records, rec)
	return "reports/report_test.json", nil
}

type fakeChat struct {
	reply string
	err   error
	calls int
	user  string
}

func (f *fakeChat) Chat(_ context.Context, _, user string) (string, error) {
	f.calls++
	f.user = user
	return f.reply, f.err
}

// symptomLogits логиты, у которых побеждает метка с индексом i
func symptomLogits(i int) []float32 {
	l := []float32{0, 0, 0}
	l[i] = 5
	return l
}

var testLabels = []entity.TextLabel{entity.TextNormal, entity.TextBacterial, entity.TextViral}

// pipeline тестовый конвейер с доступом ко всем фейкам
type pipeline struct {
	validatorModel *fakeScore
	imageModel     *fakeScore
	saliency       fakeSaliency
	renderer       *fakeRenderer
	textModel      *fakeTextModel
	transcriber    *fakeTranscriber
	reports        *fakeReports
}

func newPipeline() *pipeline {
	return &pipeline{
		validatorModel: &fakeScore{score: 0.91},
		imageModel:     &fakeScore{score: 0.85},
		saliency:       fakeSaliency{heatmap: [][]float64{{0, 1}, {1, 0}}},
		renderer:       &fakeRenderer{},
		textModel:      &fakeTextModel{logits: symptomLogits(1)},
		transcriber:    &fakeTranscriber{text: "productive cough"},
		reports:        &fakeReports{},
	}
}

func (p *pipeline) service() *DiagnosisService {
	validator := NewValidationService(fakePreprocessor{}, p.validatorModel, entity.ValidatorBundle{
		Threshold:  0.5,
		Convention: entity.PositiveInDomain,
	}, time.Second)
	images := NewImageClassifier(fakePreprocessor{size: 8}, p.imageModel, entity.ModelBundle{
		Architecture: entity.BackboneEfficientNetB0,
		Threshold:    0.5,
	}, time.Second)
	explainer := NewSaliencyExplainer(p.saliency, p.renderer, fakeArtifacts{}, time.Second)
	symptoms := NewSymptomClassifier(fakeTokenizer{}, p.textModel, entity.SymptomBundle{Labels: testLabels}, time.Second)

	return NewDiagnosisService(DiagnosisDeps{
		Validator:   validator,
		Images:      images,
		Explainer:   explainer,
		Symptoms:    symptoms,
		Transcriber: p.transcriber,
		Reports:     p.reports,
		Timeout:     time.Second,
	})
}
