package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/transcribe-service/internal/domain"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// JobCursor marks the last job of a page in (created_at, job_id) order
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

func DecodeJobCursor(cursorStr string) (*JobCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var createdAt int64
	if _, err := fmt.Sscanf(parts[0], "%d", &createdAt); err != nil {
		return nil, fmt.Errorf("invalid createdAt in cursor: %w", err)
	}

	return &JobCursor{
		CreatedAt: time.Unix(0, createdAt).UTC(),
		JobID:     parts[1],
	}, nil
}

func EncodeJobCursor(cursor *JobCursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.CreatedAt.UnixNano(), cursor.JobID)
	return base64.URLEncoding.EncodeToString([]byte(cs))
}

// after reports whether s sorts strictly after the cursor
func (c *JobCursor) after(s domain.Snapshot) bool {
	if s.CreatedAt.Equal(c.CreatedAt) {
		return s.ID > c.JobID
	}
	return s.CreatedAt.After(c.CreatedAt)
}

// paginate returns one page of snapshots already sorted by (created_at, id)
func paginate(snaps []domain.Snapshot, cursor *JobCursor, pageSize int) ([]domain.Snapshot, string) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	start := 0
	if cursor != nil {
		start = len(snaps)
		for i, s := range snaps {
			if cursor.after(s) {
				start = i
				break
			}
		}
	}

	end := start + pageSize
	if end >= len(snaps) {
		return snaps[start:], ""
	}

	last := snaps[end-1]
	return snaps[start:end], EncodeJobCursor(&JobCursor{CreatedAt: last.CreatedAt, JobID: last.ID})
}
