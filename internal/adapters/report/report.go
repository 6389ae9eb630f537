// Package report writes run reports to disk as JSON.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"github.com/okian/broutes/internal/domain/model"
	"github.com/okian/broutes/pkg/logger"
)

// Write stores r at path as indented JSON. The file is replaced atomically,
// so readers never observe a partial report.
func Write(ctx context.Context, path string, r *model.Report) error {
	if r == nil {
		return ErrNilReport
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: create directory: %w", ErrWriteReport, err)
		}
	}

	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("%w: create pending file: %w", ErrWriteReport, err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			logger.Named("report").Debug(ctx, "cleanup pending report", logger.Error(err))
		}
	}()

	enc := json.NewEncoder(pending)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("%w: encode: %w", ErrWriteReport, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("%w: replace %s: %w", ErrWriteReport, path, err)
	}

	logger.Named("report").Info(ctx, "report written",
		logger.String("path", path),
		logger.String("plan", r.Plan),
		logger.Int("outcomes", len(r.Outcomes)),
	)
	return nil
}

// Read loads a report written by Write.
func Read(path string) (*model.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadReport, err)
	}
	var r model.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrReadReport, path, err)
	}
	return &r, nil
}
