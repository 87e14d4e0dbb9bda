package entity

// Outcome результат необязательного этапа конвейера.
// Degraded=true означает, что этап не дал сигнала и Value содержит
// безопасное значение по умолчанию.
type Outcome[T any] struct {
	Value    T
	Degraded bool
	Reason   string
}

// Ok оборачивает успешный результат этапа.
func Ok[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v}
}

// Degrade возвращает деградированный результат с причиной.
func Degrade[T any](fallback T, reason string) Outcome[T] {
	return Outcome[T]{Value: fallback, Degraded: true, Reason: reason}
}
