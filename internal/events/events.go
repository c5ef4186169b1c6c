// Package events publishes job lifecycle events to the message broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/transcribe-service/internal/domain"
)

// Type is the routing key of an event
type Type string

// Event types
const (
	TypeProcessing Type = "job.processing"
	TypeProgress   Type = "job.progress"
	TypeDone       Type = "job.done"
	TypeFailed     Type = "job.failed"
	TypeCancelled  Type = "job.cancelled"
)

// TerminalTypes lists the events emitted once per job when it ends
var TerminalTypes = []Type{TypeDone, TypeFailed, TypeCancelled}

// TypeForStatus maps a terminal status to its event type
func TypeForStatus(status domain.JobStatus) (Type, bool) {
	switch status {
	case domain.JobStatusDone:
		return TypeDone, true
	case domain.JobStatusFailed:
		return TypeFailed, true
	case domain.JobStatusCancelled:
		return TypeCancelled, true
	default:
		return "", false
	}
}

// Event is the message body published for a job
type Event struct {
	Type           Type             `json:"type"`
	JobID          string           `json:"job_id"`
	Status         domain.JobStatus `json:"status"`
	Locator        string           `json:"locator"`
	Language       string           `json:"language,omitempty"`
	Model          string           `json:"model,omitempty"`
	CurrentSegment int              `json:"current_segment"`
	TotalSegments  int              `json:"total_segments"`
	Transcript     string           `json:"transcript,omitempty"`
	ErrorStage     string           `json:"error_stage,omitempty"`
	ErrorDetail    string           `json:"error_detail,omitempty"`
	OccurredAt     time.Time        `json:"occurred_at"`
	FinishedAt     *time.Time       `json:"finished_at,omitempty"`
}

// FromSnapshot builds an event from a job snapshot.
// The transcript is only carried by terminal events.
func FromSnapshot(t Type, snap domain.Snapshot) Event {
	ev := Event{
		Type:           t,
		JobID:          snap.ID,
		Status:         snap.Status,
		Locator:        snap.Locator,
		Language:       snap.Language,
		Model:          snap.Model,
		CurrentSegment: snap.CurrentSegment,
		TotalSegments:  snap.TotalSegments,
		ErrorDetail:    snap.ErrorDetail,
		OccurredAt:     snap.UpdatedAt,
	}
	if snap.Status.IsTerminal() {
		ev.Transcript = snap.Transcript
		finished := snap.FinishedAt
		ev.FinishedAt = &finished
	}
	return ev
}

// Decode parses a published event body
func Decode(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	if ev.JobID == "" {
		return Event{}, fmt.Errorf("event has no job_id")
	}
	if !ev.Status.IsValid() {
		return Event{}, fmt.Errorf("event has unknown status %q", ev.Status)
	}
	return ev, nil
}

// Publisher delivers events at most once. Errors are reported but callers never retry.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NopPublisher drops every event
type NopPublisher struct{}

// Publish implements Publisher
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// broker is the part of the RabbitMQ client the publisher needs
type broker interface {
	PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// BrokerPublisher publishes JSON events with the event type as routing key
type BrokerPublisher struct {
	client  broker
	timeout time.Duration
	logger  *slog.Logger
}

// NewBrokerPublisher creates a publisher on top of a RabbitMQ client
func NewBrokerPublisher(client broker, timeout time.Duration, logger *slog.Logger) *BrokerPublisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &BrokerPublisher{client: client, timeout: timeout, logger: logger}
}

// Publish implements Publisher
func (p *BrokerPublisher) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.client.PublishWithRetry(ctx, string(ev.Type), body, "application/json"); err != nil {
		return fmt.Errorf("failed to publish %s for job %s: %w", ev.Type, ev.JobID, err)
	}

	p.logger.Debug("Job event published",
		slog.String("job_id", ev.JobID),
		slog.String("type", string(ev.Type)),
	)
	return nil
}
