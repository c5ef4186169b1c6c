package archive

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
)

const upsertTranscriptQuery = `
	INSERT INTO transcripts (
		job_id, status, locator, language, model, transcript, error_detail,
		segments_done, segments_total, finished_at, archived_at
	) VALUES (
		:job_id, :status, :locator, :language, :model, :transcript, :error_detail,
		:segments_done, :segments_total, :finished_at, :archived_at
	)
	ON CONFLICT (job_id) DO UPDATE SET
		status = excluded.status,
		transcript = excluded.transcript,
		error_detail = excluded.error_detail,
		segments_done = excluded.segments_done,
		segments_total = excluded.segments_total,
		finished_at = excluded.finished_at,
		archived_at = excluded.archived_at
`

// Storage persists archived transcripts
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// Upsert stores a transcript. Redelivered events overwrite the same row.
func (s *Storage) Upsert(ctx context.Context, rec Transcript) error {
	if _, err := s.db.NamedExecContext(ctx, upsertTranscriptQuery, rec); err != nil {
		return fmt.Errorf("failed to upsert transcript: %w", err)
	}

	s.logger.Debug("Transcript archived",
		slog.String("job_id", rec.JobID),
		slog.String("status", rec.Status),
		slog.Int("chars", len(rec.Text)),
	)
	return nil
}
