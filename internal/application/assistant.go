package app

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"pneumoscan/internal/domain/port"
	"pneumoscan/internal/logging"
)

// Ответы ассистента
const (
	ReplyEmpty     = "Please enter a valid healthcare-related question."
	ReplyEmergency = "⚠️ This may be an emergency. Please seek urgent medical care immediately " +
		"or contact local emergency services."
	ReplyOffTopic = "I can help only with healthcare-related questions (pneumonia, chest X-rays, " +
		"symptoms, precautions, diagnosis explanation). Please ask a medical question."
	ReplyUnavailable = "Assistant temporarily unavailable. Please try again later."
)

// AssistantPrompt системный промпт языковой модели
const AssistantPrompt = `You are Smart HealthAI Assistant, a healthcare-only assistant.
You must ONLY answer questions related to:
- Pneumonia, chest X-ray analysis, lung/respiratory health
- Symptoms, precautions, basic medical guidance
- Explaining AI diagnosis results (confidence, grad-cam)
- General wellness and patient care guidance

Strict rules:
1) If the user asks anything NOT related to healthcare, politely refuse.
2) Do not answer questions about politics, entertainment, coding, sports, or general topics.
3) Do NOT claim you are a doctor. Provide informational guidance only.
4) If the user describes emergency symptoms, tell them to seek urgent medical care.
5) Keep answers short, clear, and supportive.`

var healthKeywords = []string{
	"pneumonia", "x-ray", "xray", "lungs", "lung", "cough", "fever", "breathing",
	"shortness of breath", "infection", "chest", "respiratory", "symptoms",
	"treatment", "medicine", "antibiotic", "doctor", "hospital", "diagnosis",
	"covid", "sars", "mri", "ct", "scan", "report", "gradcam", "risk", "prevention",
	"precautions", "healthy", "health", "pain", "fatigue", "oxygen", "spo2",
}

var emergencyKeywords = []string{
	"severe chest pain", "not breathing", "unconscious", "blue lips",
	"very low oxygen", "spo2 below", "fainting", "blood cough", "collapse",
}

// AssistantService медицинский чат-ассистент с фильтром тем.
type AssistantService struct {
	model port.ChatModel
	log   *slog.Logger
}

// NewAssistantService создаёт ассистента. model может быть nil,
// тогда на медицинские вопросы отвечаем, что ассистент недоступен.
func NewAssistantService(model port.ChatModel) *AssistantService {
	return &AssistantService{model: model, log: logging.New("assistant")}
}

// Reply отвечает на сообщение пользователя. Ошибки не возвращаются.
func (s *AssistantService) Reply(ctx context.Context, message string) string {
	msg := normalize(message)
	if msg == "" {
		return ReplyEmpty
	}
	if containsAny(msg, emergencyKeywords) {
		s.log.Info("emergency keywords detected")
		return ReplyEmergency
	}
	if !containsAny(msg, healthKeywords) {
		return ReplyOffTopic
	}
	if s.model == nil {
		return ReplyUnavailable
	}

	reply, err := s.model.Chat(ctx, AssistantPrompt, strings.TrimSpace(message))
	if err != nil || strings.TrimSpace(reply) == "" {
		s.log.Error("chat failed", "error", err)
		return ReplyUnavailable
	}
	return strings.TrimSpace(reply)
}

// normalize сворачивает регистр, снимает диакритику ("Fièvre" -> "fievre")
// и схлопывает пробелы, чтобы ключевые слова совпадали с любым написанием
func normalize(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), cases.Fold(), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = strings.ToLower(s)
	}
	return strings.Join(strings.Fields(folded), " ")
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
