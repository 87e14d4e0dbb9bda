package entity

// UserState состояние пользователя в диалоге
type UserState string

const (
	StateMainMenu      UserState = "main_menu"      // В главном меню
	StateAwaitingXray  UserState = "awaiting_xray"  // Ожидание снимка для диагностики
	StateAwaitingCheck UserState = "awaiting_check" // Ожидание снимка для проверки модальности
	StateProcessing    UserState = "processing"     // Обработка снимка
)

// User представляет пользователя бота
type User struct {
	ID     int64     // Telegram User ID
	ChatID int64     // Telegram Chat ID
	State  UserState // Текущее состояние пользователя
	Voice  []byte    // Голосовое описание симптомов до отправки снимка
}

// NewUser создаёт нового пользователя с начальным состоянием
func NewUser(userID, chatID int64) *User {
	return &User{
		ID:     userID,
		ChatID: chatID,
		State:  StateMainMenu,
	}
}

// SetState обновляет состояние пользователя
func (u *User) SetState(state UserState) {
	u.State = state
}

// Reset возвращает пользователя в главное меню и забывает голосовое сообщение
func (u *User) Reset() {
	u.State = StateMainMenu
	u.Voice = nil
}
