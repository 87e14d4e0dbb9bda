package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"pneumoscan/internal/domain/entity"
	"pneumoscan/internal/infrastructure/storage"
)

func TestConsultationService_ProcessXray(t *testing.T) {
	p := newPipeline()
	users := NewUserService(storage.NewMemoryUserRepository())
	svc := NewConsultationService(users, p.service())
	ctx := context.Background()

	_, err := users.BeginDiagnosis(ctx, 1, 10)
	require.NoError(t, err)
	_, err = svc.AcceptVoice(ctx, 1, 10, []byte("OggS"))
	require.NoError(t, err)

	report, err := svc.ProcessXray(ctx, 1, 10, []byte("xray"), "fever")
	require.NoError(t, err)
	require.NotNil(t, report.Transcription)
	require.Equal(t, "productive cough", *report.Transcription)
	require.Equal(t, int32(1), p.transcriber.calls.Load())

	user, err := users.Get(ctx, 1, 10)
	require.NoError(t, err)
	require.Equal(t, entity.StateMainMenu, user.State)
	require.Nil(t, user.Voice)
}

func TestConsultationService_CaptionAsText(t *testing.T) {
	p := newPipeline()
	p.textModel.logits = symptomLogits(2)
	svc := NewConsultationService(NewUserService(storage.NewMemoryUserRepository()), p.service())

	report, err := svc.ProcessXray(context.Background(), 2, 20, []byte("xray"), "dry cough")
	require.NoError(t, err)
	require.Nil(t, report.Transcription)
	require.Equal(t, string(entity.TextViral), report.PneumoniaType)
	require.Zero(t, p.transcriber.calls.Load())
}

func TestConsultationService_ProcessCheck(t *testing.T) {
	p := newPipeline()
	p.validatorModel.score = 0.2
	users := NewUserService(storage.NewMemoryUserRepository())
	svc := NewConsultationService(users, p.service())
	ctx := context.Background()

	_, err := users.BeginCheck(ctx, 3, 30)
	require.NoError(t, err)

	v, err := svc.ProcessCheck(ctx, 3, 30, []byte("photo"))
	require.NoError(t, err)
	require.False(t, v.InDomain)

	user, _ := users.Get(ctx, 3, 30)
	require.Equal(t, entity.StateMainMenu, user.State)
}

func TestConsultationService_BusyWhileProcessing(t *testing.T) {
	p := newPipeline()
	users := NewUserService(storage.NewMemoryUserRepository())
	svc := NewConsultationService(users, p.service())
	ctx := context.Background()

	// первый снимок ещё в обработке
	_, err := users.BeginProcessing(ctx, 4, 40)
	require.NoError(t, err)

	_, err = svc.ProcessXray(ctx, 4, 40, []byte("xray"), "")
	require.ErrorIs(t, err, ErrBusy)
	_, err = svc.ProcessCheck(ctx, 4, 40, []byte("xray"))
	require.ErrorIs(t, err, ErrBusy)
	require.Zero(t, p.validatorModel.calls.Load())

	// отказ не сбрасывает чужую обработку
	user, _ := users.Get(ctx, 4, 40)
	require.Equal(t, entity.StateProcessing, user.State)
}

func TestConsultationService_NotConfigured(t *testing.T) {
	svc := NewConsultationService(NewUserService(storage.NewMemoryUserRepository()), nil)
	_, err := svc.ProcessXray(context.Background(), 1, 1, []byte("x"), "")
	require.Error(t, err)
	_, err = svc.ProcessCheck(context.Background(), 1, 1, []byte("x"))
	require.Error(t, err)
}
