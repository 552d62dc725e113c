package proposal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"FRBScanner/internal/config"
	"FRBScanner/internal/domain"
	"FRBScanner/internal/ports"
)

// ChannelOutbox names the local directory review surface.
const ChannelOutbox = config.ChannelOutbox

// OutboxEmitter writes proposals into a local directory for dry runs and tests.
type OutboxEmitter struct {
	dir    string
	logger *slog.Logger
}

var _ ports.ProposalEmitter = (*OutboxEmitter)(nil)

// NewOutboxEmitter writes into dir, creating it on first use.
func NewOutboxEmitter(dir string, logger *slog.Logger) *OutboxEmitter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &OutboxEmitter{dir: dir, logger: logger}
}

// Name identifies the channel in summaries.
func (o *OutboxEmitter) Name() string { return ChannelOutbox }

// Emit writes <stem>.md and <stem>.csv. Re-emitting an identical change reuses
// the existing files.
func (o *OutboxEmitter) Emit(ctx context.Context, change domain.ProposedChange) (domain.ProposalHandle, error) {
	if err := ctx.Err(); err != nil {
		return domain.ProposalHandle{}, &domain.EmissionFailure{Channel: ChannelOutbox, Err: err}
	}
	files, err := Render(change)
	if err != nil {
		return domain.ProposalHandle{}, &domain.EmissionFailure{Channel: ChannelOutbox, Err: err}
	}
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return domain.ProposalHandle{}, &domain.EmissionFailure{Channel: ChannelOutbox, Err: fmt.Errorf("create outbox: %w", err)}
	}

	mdPath := filepath.Join(o.dir, files.MarkdownName())
	csvPath := filepath.Join(o.dir, files.CSVName())
	handle := domain.ProposalHandle{Channel: ChannelOutbox, ID: mdPath, Branch: files.Stem}
	if abs, err := filepath.Abs(mdPath); err == nil {
		handle.URL = "file://" + filepath.ToSlash(abs)
	}

	if existing, err := os.ReadFile(csvPath); err == nil && bytes.Equal(existing, files.CSV) {
		handle.Reused = true
		o.logger.Info("proposal already in outbox", "path", mdPath)
		return handle, nil
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return domain.ProposalHandle{}, &domain.EmissionFailure{Channel: ChannelOutbox, Err: err}
	}

	if err := writeFileAtomic(csvPath, files.CSV); err != nil {
		return domain.ProposalHandle{}, &domain.EmissionFailure{Channel: ChannelOutbox, Err: err}
	}
	if err := writeFileAtomic(mdPath, files.Markdown); err != nil {
		_ = os.Remove(csvPath)
		return domain.ProposalHandle{}, &domain.EmissionFailure{Channel: ChannelOutbox, Err: err}
	}
	o.logger.Info("proposal written", "path", mdPath, "records", len(change.Entries))
	return handle, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".proposal-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}
