package app

import (
	"context"
	"errors"

	"pneumoscan/internal/domain/entity"
	"pneumoscan/internal/domain/port"
)

// ErrBusy снимок этого пользователя уже обрабатывается
var ErrBusy = errors.New("previous image is still being processed")

// UserService управляет диалогами пользователей бота
type UserService struct {
	repo port.UserRepository
}

func NewUserService(repo port.UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) Get(ctx context.Context, userID, chatID int64) (*entity.User, error) {
	return s.repo.Get(ctx, userID, chatID)
}

func (s *UserService) SetState(ctx context.Context, userID, chatID int64, state entity.UserState) (*entity.User, error) {
	user, err := s.repo.Get(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}

	user.SetState(state)
	if err := s.repo.Save(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// BeginDiagnosis ждём снимок для полной диагностики
func (s *UserService) BeginDiagnosis(ctx context.Context, userID, chatID int64) (*entity.User, error) {
	return s.SetState(ctx, userID, chatID, entity.StateAwaitingXray)
}

// BeginCheck ждём снимок только для проверки модальности
func (s *UserService) BeginCheck(ctx context.Context, userID, chatID int64) (*entity.User, error) {
	return s.SetState(ctx, userID, chatID, entity.StateAwaitingCheck)
}

// BeginProcessing занимает пользователя на время обработки снимка.
// Возвращает пользователя до перехода (с его голосовым сообщением) или ErrBusy.
func (s *UserService) BeginProcessing(ctx context.Context, userID, chatID int64) (*entity.User, error) {
	prev, ok, err := s.repo.TransitionState(ctx, userID, chatID, entity.StateProcessing)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrBusy
	}
	return prev, nil
}

// AttachVoice запоминает голосовое описание симптомов до прихода снимка
func (s *UserService) AttachVoice(ctx context.Context, userID, chatID int64, voice []byte) (*entity.User, error) {
	user, err := s.repo.Get(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}

	user.Voice = voice
	if err := s.repo.Save(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

func (s *UserService) Cancel(ctx context.Context, userID, chatID int64) (*entity.User, error) {
	if _, err := s.repo.Get(ctx, userID, chatID); err != nil {
		return nil, err
	}
	if err := s.repo.Reset(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, userID, chatID)
}
