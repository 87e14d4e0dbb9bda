package storage

import (
	"context"
	"sync"

	"pneumoscan/internal/domain/entity"
	"pneumoscan/internal/domain/port"
)

// MemoryUserRepository in-memory хранилище диалогов бота
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[int64]*entity.User
}

// NewMemoryUserRepository создаёт новое in-memory хранилище
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users: make(map[int64]*entity.User),
	}
}

// Get возвращает копию пользователя по ID, создаёт нового если не найден
func (r *MemoryUserRepository) Get(ctx context.Context, userID, chatID int64) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, exists := r.users[userID]
	if !exists {
		user = entity.NewUser(userID, chatID)
		r.users[userID] = user
	}

	cp := *user
	return &cp, nil
}

// Save сохраняет состояние пользователя
func (r *MemoryUserRepository) Save(ctx context.Context, user *entity.User) error {
	cp := *user

	r.mu.Lock()
	r.users[user.ID] = &cp
	r.mu.Unlock()

	return nil
}

// TransitionState проверяет и меняет состояние под одной блокировкой
func (r *MemoryUserRepository) TransitionState(ctx context.Context, userID, chatID int64, to entity.UserState) (*entity.User, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, exists := r.users[userID]
	if !exists {
		user = entity.NewUser(userID, chatID)
		r.users[userID] = user
	}

	prev := *user
	if user.State == to {
		return &prev, false, nil
	}
	user.SetState(to)
	return &prev, true, nil
}

// Reset возвращает пользователя в главное меню и забывает голосовое сообщение
func (r *MemoryUserRepository) Reset(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user, exists := r.users[userID]; exists {
		user.Reset()
	}

	return nil
}

// Проверка реализации интерфейса
var _ port.UserRepository = (*MemoryUserRepository)(nil)
