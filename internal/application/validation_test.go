package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pneumoscan/internal/domain/entity"
)

func validatorWith(model *fakeScore, pre fakePreprocessor, conv entity.ScoreConvention, timeout time.Duration) *ValidationService {
	return NewValidationService(pre, model, entity.ValidatorBundle{Threshold: 0.5, Convention: conv}, timeout)
}

func TestValidationService_Conventions(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		conv  entity.ScoreConvention
		score float64
		want  bool
	}{
		{"in_domain high", entity.PositiveInDomain, 0.91, true},
		{"in_domain low", entity.PositiveInDomain, 0.30, false},
		{"in_domain at threshold", entity.PositiveInDomain, 0.5, false},
		{"out_of_domain low", entity.PositiveOutOfDomain, 0.10, true},
		{"out_of_domain high", entity.PositiveOutOfDomain, 0.80, false},
		{"out_of_domain at threshold", entity.PositiveOutOfDomain, 0.5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &fakeScore{score: tt.score}
			out := validatorWith(model, fakePreprocessor{}, tt.conv, time.Second).Validate(ctx, []byte("img"))
			require.False(t, out.Degraded)
			require.Equal(t, tt.want, out.Value.InDomain)
			require.Equal(t, tt.score, out.Value.Confidence)
			require.Equal(t, int32(1), model.calls.Load())
		})
	}
}

func TestValidationService_FailsClosed(t *testing.T) {
	ctx := context.Background()

	// снимок не декодируется: модель не вызывается
	model := &fakeScore{score: 0.99}
	out := validatorWith(model, fakePreprocessor{err: &entity.DecodeError{Err: errBoom}}, entity.PositiveInDomain, time.Second).
		Validate(ctx, []byte("junk"))
	require.True(t, out.Degraded)
	require.False(t, out.Value.InDomain)
	require.Zero(t, out.Value.Confidence)
	require.Zero(t, model.calls.Load())

	// ошибка модели
	out = validatorWith(&fakeScore{err: errBoom}, fakePreprocessor{}, entity.PositiveOutOfDomain, time.Second).
		Validate(ctx, []byte("img"))
	require.True(t, out.Degraded)
	require.False(t, out.Value.InDomain)
	require.Contains(t, out.Reason, "boom")

	// таймаут
	slow := &fakeScore{score: 0.99, delay: 200 * time.Millisecond}
	out = validatorWith(slow, fakePreprocessor{}, entity.PositiveInDomain, 10*time.Millisecond).
		Validate(ctx, []byte("img"))
	require.True(t, out.Degraded)
	require.False(t, out.Value.InDomain)
	require.Zero(t, out.Value.Confidence)
}
