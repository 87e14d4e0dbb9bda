package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"pneumoscan/internal/domain/entity"
	"pneumoscan/internal/domain/port"
)

// ReportsDir каталог отчётов относительно корня данных
const ReportsDir = "reports"

const reportSchema = `
CREATE TABLE IF NOT EXISTS reports (
	id               TEXT PRIMARY KEY,
	file             TEXT NOT NULL,
	created_at       TIMESTAMP NOT NULL,
	image_prediction TEXT NOT NULL,
	image_confidence REAL NOT NULL,
	pneumonia_type   TEXT,
	recommendation   TEXT NOT NULL
)`

// FileReportStore пишет отчёты в JSON-файлы и ведёт их индекс в SQLite
type FileReportStore struct {
	dir string
	db  *sql.DB
	now func() time.Time
}

// NewFileReportStore открывает root/reports и root/reports/index.db
func NewFileReportStore(root string) (*FileReportStore, error) {
	dir := filepath.Join(root, ReportsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create reports dir: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dir, "index.db")+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open report index: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(reportSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create report index: %w", err)
	}

	return &FileReportStore{dir: dir, db: db, now: time.Now}, nil
}

// Save пишет report_<id>.json, добавляет строку в индекс и возвращает
// путь вида reports/report_<id>.json
func (s *FileReportStore) Save(ctx context.Context, record entity.ReportRecord) (string, error) {
	id := uuid.NewString()
	name := fmt.Sprintf("report_%s.json", id)

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(s.dir, name), data); err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reports (id, file, created_at, image_prediction, image_confidence, pneumonia_type, recommendation)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, name, s.now().UTC(), record.ImagePrediction, record.ImageConfidence,
		record.PneumoniaType, record.Recommendation)
	if err != nil {
		os.Remove(filepath.Join(s.dir, name))
		return "", fmt.Errorf("failed to index report: %w", err)
	}

	return ReportsDir + "/" + name, nil
}

// Recent возвращает последние limit отчётов, новые первыми
func (s *FileReportStore) Recent(ctx context.Context, limit int) ([]entity.ReportSummary, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file, created_at, image_prediction, image_confidence, COALESCE(pneumonia_type, ''), recommendation
		 FROM reports ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var out []entity.ReportSummary
	for rows.Next() {
		var r entity.ReportSummary
		if err := rows.Scan(&r.ID, &r.File, &r.CreatedAt, &r.ImagePrediction, &r.ImageConfidence, &r.PneumoniaType, &r.Recommendation); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Path возвращает путь к файлу отчёта по имени
func (s *FileReportStore) Path(name string) (string, error) {
	return resolve(s.dir, name, "report_", ".json")
}

// Close закрывает индекс
func (s *FileReportStore) Close() error {
	return s.db.Close()
}

// Проверка реализации интерфейсов
var (
	_ port.ReportStore = (*FileReportStore)(nil)
	_ port.ReportIndex = (*FileReportStore)(nil)
)
