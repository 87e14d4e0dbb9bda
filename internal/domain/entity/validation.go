package entity

import "fmt"

// ScoreConvention какой класс модель-валидатор обучена выдавать как 1.
// Задаётся в манифесте каждой развёрнутой модели и нигде больше.
type ScoreConvention string

const (
	// PositiveInDomain: s > threshold означает рентген грудной клетки
	PositiveInDomain ScoreConvention = "in_domain"
	// PositiveOutOfDomain: s < threshold означает рентген грудной клетки
	PositiveOutOfDomain ScoreConvention = "out_of_domain"
)

// DefaultValidatorThreshold порог валидатора
const DefaultValidatorThreshold = 0.5

// ParseScoreConvention проверяет значение из манифеста.
func ParseScoreConvention(s string) (ScoreConvention, error) {
	switch ScoreConvention(s) {
	case PositiveInDomain, PositiveOutOfDomain:
		return ScoreConvention(s), nil
	default:
		return "", fmt.Errorf("unknown validator positive_class %q (want %q or %q)", s, PositiveInDomain, PositiveOutOfDomain)
	}
}

// InDomain применяет соглашение к скору.
// На самом пороге снимок отклоняется при любом соглашении.
func (c ScoreConvention) InDomain(score, threshold float64) bool {
	if c == PositiveOutOfDomain {
		return score < threshold
	}
	return score > threshold
}

// ValidatorBundle параметры модели-валидатора.
type ValidatorBundle struct {
	Name       string
	ModelPath  string
	InputSize  int
	Channels   int
	Layout     Layout
	Threshold  float64
	Convention ScoreConvention
	InputName  string
	OutputName string
}

// SymptomBundle параметры текстового классификатора.
type SymptomBundle struct {
	Name       string
	ModelPath  string
	VocabPath  string
	Labels     []TextLabel
	MaxLength  int
	Lowercase  bool
	InputIDs   string
	Attention  string
	TypeIDs    string // пусто, если модель не принимает token_type_ids
	OutputName string
}
