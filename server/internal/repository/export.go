package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/models"
)

// FileExporter writes each record as an indented JSON file named after the
// participant and completion time.
type FileExporter struct {
	dir string
}

func NewFileExporter(dir string) *FileExporter {
	return &FileExporter{dir: dir}
}

func (e *FileExporter) Save(_ context.Context, rec *models.SessionRecord) error {
	data, err := Encode(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := os.MkdirAll(e.dir, 0o750); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(e.dir, rec.FileName())
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return os.Rename(tmp, path)
}
