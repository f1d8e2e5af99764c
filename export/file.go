package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/NethermindEth/chaosfeed/core"
)

// FileSink writes the log to Path, replacing the file atomically.
type FileSink struct {
	Path string
}

func NewFileSink(path string) *FileSink {
	if path == "" {
		path = DefaultFilename
	}
	return &FileSink{Path: path}
}

func (f *FileSink) Export(ctx context.Context, records []core.IterationRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Marshal(records)
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.Path)+".*")
	if err != nil {
		return fmt.Errorf("create temp export file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close export: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("replace %s: %w", f.Path, err)
	}
	return nil
}
