package entity

import (
	"errors"
	"fmt"
)

var (
	ErrInput           = errors.New("input error")
	ErrDomainRejection = errors.New("image rejected by domain gate")
	ErrInference       = errors.New("inference error")
	ErrPersistence     = errors.New("persistence error")
	ErrDecode          = errors.New("image decode error")
	ErrExplainability  = errors.New("explainability error")
)

// InputError отсутствующий или некорректный вход запроса.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input %q: %s", e.Field, e.Reason)
}

func (e *InputError) Is(target error) bool { return target == ErrInput }

// DomainRejection снимок не прошёл проверку модальности.
type DomainRejection struct {
	Confidence float64
}

func (e *DomainRejection) Error() string {
	return fmt.Sprintf("image rejected by domain gate (confidence=%.4f)", e.Confidence)
}

func (e *DomainRejection) Is(target error) bool { return target == ErrDomainRejection }

// InferenceError ошибка вызова модели.
type InferenceError struct {
	Stage Stage
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed at %s: %v", e.Stage, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

func (e *InferenceError) Is(target error) bool { return target == ErrInference }

// PersistenceError ошибка записи отчёта.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist report: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// DecodeError байты не являются изображением.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// ExplainabilityError не удалось построить карту внимания.
type ExplainabilityError struct {
	Err error
}

func (e *ExplainabilityError) Error() string {
	return fmt.Sprintf("explain prediction: %v", e.Err)
}

func (e *ExplainabilityError) Unwrap() error { return e.Err }

func (e *ExplainabilityError) Is(target error) bool { return target == ErrExplainability }
