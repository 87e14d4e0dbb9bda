package app

import (
	"context"
	"errors"

	"pneumoscan/internal/domain/entity"
)

// ConsultationService сценарий бота поверх конвейера диагностики.
type ConsultationService struct {
	users     *UserService
	diagnosis *DiagnosisService
}

// NewConsultationService создаёт сервис, который ведёт пользователя по сценарию.
func NewConsultationService(users *UserService, diagnosis *DiagnosisService) *ConsultationService {
	return &ConsultationService{users: users, diagnosis: diagnosis}
}

// AcceptVoice сохраняет голосовое описание, оно уйдёт вместе со следующим снимком.
func (s *ConsultationService) AcceptVoice(ctx context.Context, userID, chatID int64, voice []byte) (*entity.User, error) {
	return s.users.AttachVoice(ctx, userID, chatID, voice)
}

// ProcessXray диагностирует снимок; подпись к фото используется как текст симптомов.
// Пока идёт обработка, следующий снимок получает ErrBusy.
// После обработки пользователь возвращается в главное меню при любом исходе.
func (s *ConsultationService) ProcessXray(ctx context.Context, userID, chatID int64, photo []byte, caption string) (entity.DiagnosticReport, error) {
	if s.diagnosis == nil {
		return entity.DiagnosticReport{}, errors.New("diagnosis is not configured")
	}

	user, err := s.users.BeginProcessing(ctx, userID, chatID)
	if err != nil {
		return entity.DiagnosticReport{}, err
	}
	defer s.users.Cancel(context.WithoutCancel(ctx), userID, chatID)

	in := entity.DiagnosisInput{Image: photo, Audio: user.Voice}
	if caption != "" {
		in.Text = &caption
	}
	return s.diagnosis.Diagnose(ctx, in)
}

// ProcessCheck только проверяет модальность снимка.
func (s *ConsultationService) ProcessCheck(ctx context.Context, userID, chatID int64, photo []byte) (entity.ValidationResult, error) {
	if s.diagnosis == nil {
		return entity.ValidationResult{}, errors.New("diagnosis is not configured")
	}
	if _, err := s.users.BeginProcessing(ctx, userID, chatID); err != nil {
		return entity.ValidationResult{}, err
	}
	defer s.users.Cancel(context.WithoutCancel(ctx), userID, chatID)

	return s.diagnosis.Validate(ctx, photo)
}
