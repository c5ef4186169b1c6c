package archive

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/transcribe-service/internal/events"
)

// Transcript is one archived terminal job
type Transcript struct {
	JobID         string       `db:"job_id"`
	Status        string       `db:"status"`
	Locator       string       `db:"locator"`
	Language      string       `db:"language"`
	Model         string       `db:"model"`
	Text          string       `db:"transcript"`
	ErrorDetail   string       `db:"error_detail"`
	SegmentsDone  int          `db:"segments_done"`
	SegmentsTotal int          `db:"segments_total"`
	FinishedAt    sql.NullTime `db:"finished_at"`
	ArchivedAt    time.Time    `db:"archived_at"`
}

// FromEvent converts a terminal job event into an archive record
func FromEvent(ev events.Event, archivedAt time.Time) (Transcript, error) {
	if _, err := uuid.Parse(ev.JobID); err != nil {
		return Transcript{}, fmt.Errorf("%w: job_id %q is not a UUID", ErrInvalidEvent, ev.JobID)
	}
	if !ev.Status.IsTerminal() {
		return Transcript{}, fmt.Errorf("%w: status %s is not terminal", ErrInvalidEvent, ev.Status)
	}

	rec := Transcript{
		JobID:         ev.JobID,
		Status:        string(ev.Status),
		Locator:       ev.Locator,
		Language:      ev.Language,
		Model:         ev.Model,
		Text:          ev.Transcript,
		ErrorDetail:   ev.ErrorDetail,
		SegmentsDone:  ev.CurrentSegment,
		SegmentsTotal: ev.TotalSegments,
		ArchivedAt:    archivedAt.UTC(),
	}
	if ev.FinishedAt != nil && !ev.FinishedAt.IsZero() {
		rec.FinishedAt = sql.NullTime{Time: ev.FinishedAt.UTC(), Valid: true}
	}
	return rec, nil
}

func decodeEvent(body []byte) (events.Event, error) {
	ev, err := events.Decode(body)
	if err != nil {
		return events.Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return ev, nil
}
