package billing

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
)

// BatchWriter persists one export batch under name and reports where it went.
type BatchWriter interface {
	WriteBatch(ctx context.Context, name string, records []Record) (string, error)
}

// FileWriter writes batches as CSV files. A bare file name lands in Dir; a
// name with a directory part is used as given. The file appears atomically,
// so a failed write never leaves a partial batch behind.
type FileWriter struct {
	Dir string
}

func (w FileWriter) path(name string) string {
	if filepath.IsAbs(name) || filepath.Base(name) != name {
		return name
	}
	return filepath.Join(w.Dir, name)
}

func (w FileWriter) WriteBatch(ctx context.Context, name string, records []Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := EncodeCSV(&buf, records); err != nil {
		return "", err
	}

	path := w.path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	if err := atomic.WriteFile(path, &buf); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// EncodeCSV writes the header row and one row per record.
func EncodeCSV(buf *bytes.Buffer, records []Record) error {
	cw := csv.NewWriter(buf)
	if err := cw.Write(Columns[:]); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(r.Values()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
