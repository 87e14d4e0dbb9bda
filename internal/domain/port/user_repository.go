package port

import (
	"context"

	"pneumoscan/internal/domain/entity"
)

// UserRepository хранилище диалогов Telegram-бота
type UserRepository interface {
	// Get возвращает пользователя по ID, создаёт нового если не найден
	Get(ctx context.Context, userID, chatID int64) (*entity.User, error)

	// Save сохраняет пользователя целиком, включая голосовое сообщение
	Save(ctx context.Context, user *entity.User) error

	// TransitionState атомарно переводит пользователя в состояние to, если он
	// ещё не в нём. Возвращает копию пользователя до перехода и признак перехода.
	TransitionState(ctx context.Context, userID, chatID int64, to entity.UserState) (*entity.User, bool, error)

	// Reset возвращает пользователя в главное меню
	Reset(ctx context.Context, userID int64) error
}
