package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	app "pneumoscan/internal/application"
	"pneumoscan/internal/domain/entity"
	"pneumoscan/internal/logging"
)

const (
	msgStart = `👋 Привет! Я помогаю оценить рентгеновский снимок грудной клетки.

📸 Отправьте снимок, и я проверю его на признаки пневмонии и покажу, куда смотрела модель.

📋 Команды:
/diagnose — диагностика по снимку
/validate — только проверить, что это рентген грудной клетки
/help — справка
/cancel — отменить текущую операцию`

	msgHelp = `ℹ️ Как пользоваться ботом:

1️⃣ Отправьте /diagnose
2️⃣ По желанию запишите голосовое сообщение с описанием симптомов
3️⃣ Отправьте снимок; в подписи к фото можно описать симптомы текстом
4️⃣ Вы получите результат: оценку, рекомендацию и карту внимания

⚠️ Бот не заменяет врача. Результат носит справочный характер.

📋 Команды:
/diagnose — диагностика
/validate — проверка снимка
/cancel — отменить операцию`

	msgAwaitingXray    = "📸 Отправьте рентгеновский снимок грудной клетки. Симптомы можно описать в подписи или голосовым сообщением до снимка."
	msgAwaitingCheck   = "📸 Отправьте снимок для проверки."
	msgCancelled       = "❌ Операция отменена. Отправьте /diagnose для новой диагностики."
	msgSendPhoto       = "📸 Пожалуйста, отправьте рентгеновский снимок грудной клетки."
	msgUnknownCommand  = "❓ Неизвестная команда. Используйте /help для справки."
	msgProcessing      = "⏳ Обрабатываю снимок..."
	msgBusy            = "⏳ Предыдущий снимок ещё обрабатывается."
	msgVoiceSaved      = "🎙 Голосовое описание сохранено. Теперь отправьте снимок."
	msgProcessingError = "⚠️ Не удалось обработать снимок. Попробуйте другое изображение."
	msgReportError     = "⚠️ Анализ выполнен, но отчёт не удалось сохранить. Попробуйте ещё раз."
	msgRejected        = "🚫 Это не похоже на рентген грудной клетки (уверенность %.4f). Снимки МРТ, КТ и другие изображения не поддерживаются."
	msgValid           = "✅ Рентген грудной клетки распознан (уверенность %.4f)."
)

// Bot представляет Telegram-бота
type Bot struct {
	api          *tgbotapi.BotAPI
	users        *app.UserService
	consultation *app.ConsultationService
	httpClient   *http.Client
	log          *slog.Logger
}

// NewBot создаёт нового бота
func NewBot(token string, users *app.UserService, consultation *app.ConsultationService) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log := logging.New("telegram")
	log.Info("authorized", "account", api.Self.UserName)

	return &Bot{
		api:          api,
		users:        users,
		consultation: consultation,
		httpClient:   &http.Client{Timeout: time.Minute},
		log:          log,
	}, nil
}

// Run запускает основной цикл обработки сообщений до отмены ctx
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			go b.handleMessage(ctx, update.Message)
		}
	}
}

// handleMessage обрабатывает входящее сообщение
func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	user, err := b.users.Get(ctx, msg.From.ID, msg.Chat.ID)
	if err != nil {
		b.log.Error("get user", "error", err)
		return
	}

	switch {
	case msg.IsCommand():
		b.handleCommand(ctx, msg)
	case len(msg.Photo) > 0:
		// Файл с максимальным разрешением
		b.handleImage(ctx, msg, user, msg.Photo[len(msg.Photo)-1].FileID)
	case msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/"):
		b.handleImage(ctx, msg, user, msg.Document.FileID)
	case msg.Voice != nil:
		b.handleVoice(ctx, msg, user)
	default:
		b.sendMessage(msg.Chat.ID, msgSendPhoto)
	}
}

// handleCommand обрабатывает команды бота
func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	userID, chatID := msg.From.ID, msg.Chat.ID

	var err error
	switch msg.Command() {
	case "start":
		_, err = b.users.Cancel(ctx, userID, chatID)
		b.sendMessage(chatID, msgStart)

	case "help":
		b.sendMessage(chatID, msgHelp)

	case "diagnose":
		_, err = b.users.BeginDiagnosis(ctx, userID, chatID)
		b.sendMessage(chatID, msgAwaitingXray)

	case "validate":
		_, err = b.users.BeginCheck(ctx, userID, chatID)
		b.sendMessage(chatID, msgAwaitingCheck)

	case "cancel":
		_, err = b.users.Cancel(ctx, userID, chatID)
		b.sendMessage(chatID, msgCancelled)

	default:
		b.sendMessage(chatID, msgUnknownCommand)
	}

	if err != nil {
		b.log.Error("update user state", "command", msg.Command(), "error", err)
	}
}

// handleVoice сохраняет голосовое описание симптомов до прихода снимка
func (b *Bot) handleVoice(ctx context.Context, msg *tgbotapi.Message, user *entity.User) {
	voice, err := b.downloadFile(ctx, msg.Voice.FileID)
	if err != nil {
		b.log.Error("download voice", "error", err)
		b.sendMessage(msg.Chat.ID, msgProcessingError)
		return
	}

	current, err := b.consultation.AcceptVoice(ctx, user.ID, user.ChatID, voice)
	if err != nil {
		b.log.Error("save voice", "error", err)
		b.sendMessage(msg.Chat.ID, msgProcessingError)
		return
	}
	if current.State == entity.StateMainMenu {
		if _, err := b.users.BeginDiagnosis(ctx, user.ID, user.ChatID); err != nil {
			b.log.Error("begin diagnosis after voice", "error", err)
		}
	}
	b.sendMessage(msg.Chat.ID, msgVoiceSaved)
}

// handleImage запускает диагностику или проверку в зависимости от состояния.
// Занятость проверяется атомарно в ConsultationService, снимок состояния
// здесь только выбирает сценарий.
func (b *Bot) handleImage(ctx context.Context, msg *tgbotapi.Message, user *entity.User, fileID string) {
	b.sendMessage(msg.Chat.ID, msgProcessing)

	image, err := b.downloadFile(ctx, fileID)
	if err != nil {
		b.log.Error("download photo", "error", err)
		b.sendMessage(msg.Chat.ID, msgProcessingError)
		return
	}

	if user.State == entity.StateAwaitingCheck {
		result, err := b.consultation.ProcessCheck(ctx, user.ID, user.ChatID, image)
		if err != nil {
			b.log.Warn("validate photo", "error", err)
			b.sendMessage(msg.Chat.ID, FailureMessage(err))
			return
		}
		b.sendMessage(msg.Chat.ID, FormatValidation(result))
		return
	}

	report, err := b.consultation.ProcessXray(ctx, user.ID, user.ChatID, image, strings.TrimSpace(msg.Caption))
	if err != nil {
		b.log.Warn("diagnose photo", "error", err)
		b.sendMessage(msg.Chat.ID, FailureMessage(err))
		return
	}

	if report.Overlay != nil && len(report.Overlay.Rendered) > 0 {
		photo := tgbotapi.NewPhoto(msg.Chat.ID, tgbotapi.FileBytes{Name: "gradcam.png", Bytes: report.Overlay.Rendered})
		photo.Caption = FormatReport(report)
		_, err := b.api.Send(photo)
		if err == nil {
			return
		}
		b.log.Error("send overlay", "error", err)
	}
	b.sendMessage(msg.Chat.ID, FormatReport(report))
}

// FormatReport текст результата диагностики
func FormatReport(r entity.DiagnosticReport) string {
	var sb strings.Builder

	if r.Image.Positive() {
		sb.WriteString("🩻 Признаки пневмонии обнаружены")
	} else {
		sb.WriteString("🩻 Признаков пневмонии не обнаружено")
	}
	fmt.Fprintf(&sb, " (%s, уверенность %.4f)\n", r.Image.Label, entity.Round4(r.Image.Confidence))

	if r.Transcription != nil {
		fmt.Fprintf(&sb, "🎙 Распознанный текст: %s\n", *r.Transcription)
	}
	if r.PneumoniaType != "" {
		fmt.Fprintf(&sb, "🔬 Тип: %s\n", r.PneumoniaType)
	}
	fmt.Fprintf(&sb, "\n💡 %s", r.Recommendation)

	return sb.String()
}

// FormatValidation текст результата проверки снимка
func FormatValidation(v entity.ValidationResult) string {
	if v.InDomain {
		return fmt.Sprintf(msgValid, entity.Round4(v.Confidence))
	}
	return fmt.Sprintf(msgRejected, entity.Round4(v.Confidence))
}

// FailureMessage текст ошибки диагностики для пользователя
func FailureMessage(err error) string {
	var rejection *entity.DomainRejection
	switch {
	case errors.As(err, &rejection):
		return fmt.Sprintf(msgRejected, entity.Round4(rejection.Confidence))
	case errors.Is(err, entity.ErrPersistence):
		return msgReportError
	case errors.Is(err, app.ErrBusy):
		return msgBusy
	default:
		return msgProcessingError
	}
}

// downloadFile скачивает файл из Telegram
func (b *Bot) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.Link(b.api.Token), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	return data, nil
}

// sendMessage отправляет текстовое сообщение
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "error", err)
	}
}
