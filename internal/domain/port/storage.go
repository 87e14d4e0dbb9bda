package port

import (
	"context"

	"pneumoscan/internal/domain/entity"
)

// OverlayRenderer рисует тепловую карту поверх исходного снимка
type OverlayRenderer interface {
	// Render возвращает PNG размером size×size
	Render(source []byte, heatmap [][]float64, size int) ([]byte, error)
}

// ArtifactStore хранилище артефактов (карт внимания)
type ArtifactStore interface {
	// Save сохраняет данные и возвращает ссылку для последующего скачивания
	Save(ctx context.Context, data []byte) (string, error)
}

// ReportStore хранилище отчётов
type ReportStore interface {
	// Save сохраняет отчёт и возвращает путь для скачивания
	Save(ctx context.Context, record entity.ReportRecord) (string, error)
}

// ReportIndex список сохранённых отчётов
type ReportIndex interface {
	// Recent возвращает последние limit отчётов, новые первыми
	Recent(ctx context.Context, limit int) ([]entity.ReportSummary, error)
}
