package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pneumoscan/internal/domain/entity"
	"pneumoscan/internal/logging"
)

// maxUploadBytes предел размера multipart-запроса
const maxUploadBytes = 32 << 20

// Размер страницы GET /reports
const (
	defaultReportLimit = 20
	maxReportLimit     = 100
)

// Тексты ответов API
const (
	msgNoImage         = "No image received"
	msgValidXray       = "Valid Chest X-ray detected"
	msgNotXray         = "Uploaded image is NOT a Chest X-ray. Brain MRI, CT scans, or other medical images are not supported. Please upload a valid Chest X-ray image."
	msgImageRequired   = "Chest X-ray image is required"
	msgRejected        = "Uploaded image is not a Chest X-ray."
	msgRejectedDetail  = "The system is trained exclusively on Chest X-ray images. Brain MRI, CT scans, or unrelated images are not supported. Please re-upload a valid Chest X-ray."
	msgInferenceFailed = "Image analysis failed"
	msgReportFailed    = "Report could not be saved"
	msgInternal        = "Internal server error"
	msgRetry           = "Please try again later."
	msgEmptyQuestion   = "Please enter a valid question."
	msgAssistantDown   = "Assistant temporarily unavailable."
)

// Diagnoser конвейер диагностики
type Diagnoser interface {
	Validate(ctx context.Context, image []byte) (entity.ValidationResult, error)
	Diagnose(ctx context.Context, in entity.DiagnosisInput) (entity.DiagnosticReport, error)
}

// Assistant чат-ассистент
type Assistant interface {
	Reply(ctx context.Context, message string) string
}

// Files пути к сохранённым отчётам и картам внимания и индекс отчётов
type Files interface {
	ReportPath(name string) (string, error)
	ArtifactPath(name string) (string, error)
	RecentReports(ctx context.Context, limit int) ([]entity.ReportSummary, error)
}

// Handler HTTP API сервиса
type Handler struct {
	diagnosis Diagnoser
	assistant Assistant
	files     Files
	registry  prometheus.Gatherer
	log       *slog.Logger
}

// NewHandler создаёт обработчик API. registry может быть nil, тогда /metrics не регистрируется.
func NewHandler(diagnosis Diagnoser, assistant Assistant, files Files, registry prometheus.Gatherer) *Handler {
	return &Handler{
		diagnosis: diagnosis,
		assistant: assistant,
		files:     files,
		registry:  registry,
		log:       logging.New("http"),
	}
}

// RegisterRoutes регистрирует маршруты API
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.Use(corsMiddleware)

	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)

	r.HandleFunc("/validate-image", h.handleValidate).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/diagnose", h.handleDiagnose).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/chatbot", h.handleChatbot).Methods(http.MethodPost, http.MethodOptions)

	r.HandleFunc("/reports", h.handleReportList).Methods(http.MethodGet)
	r.HandleFunc("/reports/{filename}", h.handleReport).Methods(http.MethodGet)
	r.HandleFunc("/static/gradcam/{filename}", h.handleGradcam).Methods(http.MethodGet)

	if h.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
}

// corsMiddleware разрешает запросы фронтенда с любого origin
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// respondJSON отправляет JSON-ответ
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error("encode response", "error", err)
	}
}

// respondError отправляет ошибку в виде {"error", "message"}
func (h *Handler) respondError(w http.ResponseWriter, status int, errText, message string) {
	body := map[string]any{"error": errText}
	if message != "" {
		body["message"] = message
	}
	h.respondJSON(w, status, body)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type validateResponse struct {
	Valid      bool     `json:"valid"`
	Confidence *float64 `json:"confidence,omitempty"`
	Message    string   `json:"message"`
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	image, err := h.readUpload(w, r, "image")
	if err != nil || len(image) == 0 {
		h.respondJSON(w, http.StatusBadRequest, validateResponse{Message: msgNoImage})
		return
	}

	result, err := h.diagnosis.Validate(r.Context(), image)
	if err != nil {
		h.respondFailure(w, err)
		return
	}

	confidence := entity.Round4(result.Confidence)
	if !result.InDomain {
		h.respondJSON(w, http.StatusBadRequest, validateResponse{Confidence: &confidence, Message: msgNotXray})
		return
	}
	h.respondJSON(w, http.StatusOK, validateResponse{Valid: true, Confidence: &confidence, Message: msgValidXray})
}

type diagnoseResponse struct {
	ImagePrediction string  `json:"image_prediction"`
	ImageConfidence float64 `json:"image_confidence"`
	Transcription   *string `json:"transcription,omitempty"`
	PneumoniaType   string  `json:"pneumonia_type,omitempty"`
	GradcamImage    string  `json:"gradcam_image,omitempty"`
	Recommendation  string  `json:"recommendation"`
	ReportPath      string  `json:"report_path"`
}

func (h *Handler) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	image, err := h.readUpload(w, r, "image")
	if err != nil || len(image) == 0 {
		h.respondError(w, http.StatusBadRequest, msgImageRequired, "")
		return
	}

	in := entity.DiagnosisInput{Image: image}
	if audio, err := h.readUpload(w, r, "audio"); err == nil && len(audio) > 0 {
		in.Audio = audio
	}
	if r.MultipartForm != nil {
		if vals, ok := r.MultipartForm.Value["text"]; ok && len(vals) > 0 {
			text := vals[0]
			in.Text = &text
		}
	}

	report, err := h.diagnosis.Diagnose(r.Context(), in)
	if err != nil {
		h.respondFailure(w, err)
		return
	}

	resp := diagnoseResponse{
		ImagePrediction: string(report.Image.Label),
		ImageConfidence: entity.Round4(report.Image.Confidence),
		Transcription:   report.Transcription,
		PneumoniaType:   report.PneumoniaType,
		Recommendation:  report.Recommendation,
		ReportPath:      report.ReportPath,
	}
	if report.Overlay != nil {
		resp.GradcamImage = report.Overlay.Reference
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// respondFailure переводит ошибку конвейера в JSON. Внутренние сообщения
// пишутся в лог и клиенту не отдаются.
func (h *Handler) respondFailure(w http.ResponseWriter, err error) {
	var rejection *entity.DomainRejection
	switch {
	case errors.As(err, &rejection):
		h.respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":                msgRejected,
			"message":              msgRejectedDetail,
			"confidence":           entity.Round4(rejection.Confidence),
			"validator_confidence": math.Round(rejection.Confidence*1e3) / 1e3,
		})
	case errors.Is(err, entity.ErrInput):
		h.respondError(w, http.StatusBadRequest, msgImageRequired, "")
	case errors.Is(err, entity.ErrInference):
		h.log.Error("inference failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, msgInferenceFailed, msgRetry)
	case errors.Is(err, entity.ErrPersistence):
		h.log.Error("report persistence failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, msgReportFailed, msgRetry)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.log.Warn("request aborted", "error", err)
		h.respondError(w, http.StatusServiceUnavailable, msgInferenceFailed, msgRetry)
	default:
		h.log.Error("unexpected error", "error", err)
		h.respondError(w, http.StatusInternalServerError, msgInternal, msgRetry)
	}
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

func (h *Handler) handleChatbot(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		h.log.Warn("bad chatbot request", "error", err)
		h.respondJSON(w, http.StatusBadRequest, chatResponse{Reply: msgEmptyQuestion})
		return
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		h.respondJSON(w, http.StatusOK, chatResponse{Reply: msgEmptyQuestion})
		return
	}
	if h.assistant == nil {
		h.respondJSON(w, http.StatusInternalServerError, chatResponse{Reply: msgAssistantDown})
		return
	}

	h.respondJSON(w, http.StatusOK, chatResponse{Reply: h.assistant.Reply(r.Context(), message)})
}

// handleReportList отдаёт последние отчёты из индекса, ?limit=N (1..100)
func (h *Handler) handleReportList(w http.ResponseWriter, r *http.Request) {
	limit := defaultReportLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxReportLimit {
			h.respondError(w, http.StatusBadRequest, "Invalid limit", "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	if h.files == nil {
		h.respondJSON(w, http.StatusOK, map[string]any{"reports": []entity.ReportSummary{}})
		return
	}

	reports, err := h.files.RecentReports(r.Context(), limit)
	if err != nil {
		h.log.Error("list reports", "error", err)
		h.respondError(w, http.StatusInternalServerError, msgInternal, msgRetry)
		return
	}
	if reports == nil {
		reports = []entity.ReportSummary{}
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	h.serveFile(w, r, true)
}

func (h *Handler) handleGradcam(w http.ResponseWriter, r *http.Request) {
	h.serveFile(w, r, false)
}

// serveFile отдаёт отчёт (report=true) или карту внимания по имени файла
func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request, report bool) {
	if h.files == nil {
		h.respondError(w, http.StatusNotFound, "File not found", "")
		return
	}

	name := mux.Vars(r)["filename"]
	resolve := h.files.ArtifactPath
	if report {
		resolve = h.files.ReportPath
	}

	path, err := resolve(name)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "File not found", "")
		return
	}

	if report {
		w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
	}
	http.ServeFile(w, r, path)
}

// readUpload читает файл из multipart-поля. Отсутствующее поле — http.ErrMissingFile.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request, field string) ([]byte, error) {
	if r.MultipartForm == nil {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, err
		}
	}

	files := r.MultipartForm.File[field]
	if len(files) == 0 {
		return nil, http.ErrMissingFile
	}
	return readPart(files[0])
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
