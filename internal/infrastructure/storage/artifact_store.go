package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"pneumoscan/internal/domain/port"
)

// ErrInvalidName имя файла выходит за пределы каталога хранилища
var ErrInvalidName = errors.New("invalid file name")

// GradcamDir каталог карт внимания относительно корня данных
const GradcamDir = "static/gradcam"

// FileArtifactStore хранит PNG карт внимания на диске
type FileArtifactStore struct {
	root string
	dir  string
}

// NewFileArtifactStore создаёт каталог root/static/gradcam
func NewFileArtifactStore(root string) (*FileArtifactStore, error) {
	dir := filepath.Join(root, GradcamDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact dir: %w", err)
	}
	return &FileArtifactStore{root: root, dir: dir}, nil
}

// Save пишет PNG под уникальным именем и возвращает ссылку вида
// static/gradcam/gradcam_<hex>.png
func (s *FileArtifactStore) Save(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := fmt.Sprintf("gradcam_%s.png", strings.ReplaceAll(uuid.NewString(), "-", ""))
	if err := writeFileAtomic(filepath.Join(s.dir, name), data); err != nil {
		return "", err
	}
	return GradcamDir + "/" + name, nil
}

// Path возвращает путь к сохранённому артефакту по имени файла
func (s *FileArtifactStore) Path(name string) (string, error) {
	return resolve(s.dir, name, "gradcam_", ".png")
}

// resolve проверяет, что name является простым именем файла хранилища внутри dir
func resolve(dir, name, prefix, suffix string) (string, error) {
	if name != filepath.Base(name) || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	p := filepath.Join(dir, name)
	if _, err := os.Stat(p); err != nil {
		return "", err
	}
	return p, nil
}

// writeFileAtomic пишет во временный файл и переименовывает его
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Проверка реализации интерфейса
var _ port.ArtifactStore = (*FileArtifactStore)(nil)
