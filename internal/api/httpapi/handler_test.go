package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	app "pneumoscan/internal/application"
	"pneumoscan/internal/domain/entity"
	"pneumoscan/internal/metrics"
)

type fakeDiagnoser struct {
	validation entity.ValidationResult
	report     entity.DiagnosticReport
	err        error
	got        entity.DiagnosisInput
	calls      int
}

func (f *fakeDiagnoser) Validate(_ context.Context, image []byte) (entity.ValidationResult, error) {
	f.calls++
	return f.validation, f.err
}

func (f *fakeDiagnoser) Diagnose(_ context.Context, in entity.DiagnosisInput) (entity.DiagnosticReport, error) {
	f.calls++
	f.got = in
	return f.report, f.err
}

type fakeAssistant struct {
	got string
}

func (f *fakeAssistant) Reply(_ context.Context, message string) string {
	f.got = message
	return "echo: " + message
}

type fakeFiles struct {
	dir     string
	reports []entity.ReportSummary
	err     error
	limit   int
}

func (f *fakeFiles) RecentReports(_ context.Context, limit int) ([]entity.ReportSummary, error) {
	f.limit = limit
	return f.reports, f.err
}

func (f *fakeFiles) ReportPath(name string) (string, error) {
	if !strings.HasPrefix(name, "report_") {
		return "", errors.New("invalid")
	}
	return filepath.Join(f.dir, name), nil
}

func (f *fakeFiles) ArtifactPath(name string) (string, error) {
	if !strings.HasPrefix(name, "gradcam_") {
		return "", errors.New("invalid")
	}
	return filepath.Join(f.dir, name), nil
}

func newTestServer(d *fakeDiagnoser, a *fakeAssistant, files Files) http.Handler {
	return NewServer(":0", NewHandler(d, a, files, metrics.New().Registry)).Router()
}

func multipartRequest(t *testing.T, url string, files map[string][]byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for name, data := range files {
		part, err := w.CreateFormFile(name, name+".bin")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, url, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	h := newTestServer(&fakeDiagnoser{}, nil, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decode(t, rec)["status"])
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestValidateImage(t *testing.T) {
	d := &fakeDiagnoser{validation: entity.ValidationResult{InDomain: true, Confidence: 0.912345}}
	h := newTestServer(d, nil, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, multipartRequest(t, "/validate-image", map[string][]byte{"image": []byte("xray")}, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, true, body["valid"])
	require.Equal(t, 0.9123, body["confidence"])
	require.Equal(t, msgValidXray, body["message"])

	d.validation = entity.ValidationResult{InDomain: false, Confidence: 0.3}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, multipartRequest(t, "/validate-image", map[string][]byte{"image": []byte("mri")}, nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body = decode(t, rec)
	require.Equal(t, false, body["valid"])
	require.Equal(t, 0.3, body["confidence"])
	require.Equal(t, msgNotXray, body["message"])
}

func TestValidateImage_Missing(t *testing.T) {
	d := &fakeDiagnoser{}
	h := newTestServer(d, nil, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, multipartRequest(t, "/validate-image", nil, map[string]string{"text": "x"}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	require.Equal(t, false, body["valid"])
	require.Equal(t, msgNoImage, body["message"])
	require.NotContains(t, body, "confidence")
	require.Zero(t, d.calls)
}

func TestDiagnose(t *testing.T) {
	transcript := "fever"
	d := &fakeDiagnoser{report: entity.DiagnosticReport{
		Image:          entity.ClassificationResult{Label: entity.ImagePositive, Confidence: 0.85},
		Transcription:  &transcript,
		Overlay:        &entity.SaliencyOverlay{Reference: "static/gradcam/gradcam_1.png"},
		PneumoniaType:  entity.PneumoniaUndetermined,
		Recommendation: app.RecommendHigh,
		ReportPath:     "reports/report_1.json",
	}}
	h := newTestServer(d, nil, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, multipartRequest(t, "/diagnose",
		map[string][]byte{"image": []byte("xray"), "audio": []byte("OggS")},
		map[string]string{"text": "cough"}))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, []byte("xray"), d.got.Image)
	require.Equal(t, []byte("OggS"), d.got.Audio)
	require.NotNil(t, d.got.Text)
	require.Equal(t, "cough", *d.got.Text)

	body := decode(t, rec)
	require.Equal(t, "PNEUMONIA", body["image_prediction"])
	require.Equal(t, 0.85, body["image_confidence"])
	require.Equal(t, "fever", body["transcription"])
	require.Equal(t, entity.PneumoniaUndetermined, body["pneumonia_type"])
	require.Equal(t, "static/gradcam/gradcam_1.png", body["gradcam_image"])
	require.Equal(t, app.RecommendHigh, body["recommendation"])
	require.Equal(t, "reports/report_1.json", body["report_path"])
}

func TestDiagnose_NegativeOmitsOptionalFields(t *testing.T) {
	d := &fakeDiagnoser{report: entity.DiagnosticReport{
		Image:          entity.ClassificationResult{Label: entity.ImageNegative, Confidence: 0.7},
		Recommendation: app.RecommendNormal,
		ReportPath:     "reports/report_2.json",
	}}
	h := newTestServer(d, nil, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, multipartRequest(t, "/diagnose", map[string][]byte{"image": []byte("xray")}, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, d.got.Text)
	require.Nil(t, d.got.Audio)

	body := decode(t, rec)
	require.NotContains(t, body, "pneumonia_type")
	require.NotContains(t, body, "gradcam_image")
	require.NotContains(t, body, "transcription")
}

func TestDiagnose_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		check  func(t *testing.T, body map[string]any)
	}{
		{
			name:   "rejection",
			err:    &entity.DomainRejection{Confidence: 0.3012},
			status: http.StatusBadRequest,
			check: func(t *testing.T, body map[string]any) {
				require.Equal(t, msgRejected, body["error"])
				require.Equal(t, 0.3012, body["confidence"])
				require.Equal(t, 0.301, body["validator_confidence"])
			},
		},
		{
			name:   "inference",
			err:    &entity.InferenceError{Stage: entity.StageClassifyingImage, Err: errors.New("onnx: secret detail")},
			status: http.StatusInternalServerError,
			check: func(t *testing.T, body map[string]any) {
				require.Equal(t, msgInferenceFailed, body["error"])
				require.NotContains(t, body["message"], "secret")
			},
		},
		{
			name:   "persistence",
			err:    &entity.PersistenceError{Err: errors.New("disk full")},
			status: http.StatusInternalServerError,
			check: func(t *testing.T, body map[string]any) {
				require.Equal(t, msgReportFailed, body["error"])
			},
		},
		{
			name:   "unexpected",
			err:    errors.New("weird"),
			status: http.StatusInternalServerError,
			check: func(t *testing.T, body map[string]any) {
				require.Equal(t, msgInternal, body["error"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(&fakeDiagnoser{err: tt.err}, nil, nil)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, multipartRequest(t, "/diagnose", map[string][]byte{"image": []byte("xray")}, nil))
			require.Equal(t, tt.status, rec.Code)
			tt.check(t, decode(t, rec))
		})
	}
}

func TestDiagnose_MissingImage(t *testing.T) {
	d := &fakeDiagnoser{}
	h := newTestServer(d, nil, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, multipartRequest(t, "/diagnose", map[string][]byte{"audio": []byte("OggS")}, nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, msgImageRequired, decode(t, rec)["error"])
	require.Zero(t, d.calls)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/diagnose", strings.NewReader("{}")))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreflight(t *testing.T) {
	h := newTestServer(&fakeDiagnoser{}, nil, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/diagnose", nil))

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestChatbot(t *testing.T) {
	a := &fakeAssistant{}
	h := newTestServer(&fakeDiagnoser{}, a, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chatbot", strings.NewReader(`{"message":"  what is pneumonia? "}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "echo: what is pneumonia?", decode(t, rec)["reply"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chatbot", strings.NewReader(`{"message":"   "}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, msgEmptyQuestion, decode(t, rec)["reply"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chatbot", strings.NewReader(`not json`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report_1.json"), []byte(`{"a":1}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gradcam_1.png"), []byte("png"), 0o644))
	h := newTestServer(&fakeDiagnoser{}, nil, &fakeFiles{dir: dir})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/report_1.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	require.JSONEq(t, `{"a":1}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/gradcam/gradcam_1.png", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "png", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/index.db", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReportList(t *testing.T) {
	files := &fakeFiles{reports: []entity.ReportSummary{{
		ID:              "1",
		File:            "report_1.json",
		CreatedAt:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		ImagePrediction: "PNEUMONIA",
		ImageConfidence: 0.8,
		PneumoniaType:   "VIRAL_PNEUMONIA",
		Recommendation:  "rec",
	}}}
	h := newTestServer(&fakeDiagnoser{}, nil, files)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 5, files.limit)
	require.JSONEq(t, `{"reports":[{
		"id":"1","file":"report_1.json","created_at":"2026-01-02T03:04:05Z",
		"image_prediction":"PNEUMONIA","image_confidence":0.8,
		"pneumonia_type":"VIRAL_PNEUMONIA","recommendation":"rec"}]}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, defaultReportLimit, files.limit)

	for _, bad := range []string{"0", "101", "abc"} {
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports?limit="+bad, nil))
		require.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}

	files.reports, files.err = nil, errors.New("db down")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "db down")

	files.err = nil
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports", nil))
	require.JSONEq(t, `{"reports":[]}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.Requests.WithLabelValues("diagnose").Inc()
	h := NewServer(":0", NewHandler(&fakeDiagnoser{}, nil, nil, m.Registry)).Router()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `pneumoscan_requests_total{operation="diagnose"} 1`)
}
