package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/transcribe-service/internal/domain"
	"github.com/cuongbtq/transcribe-service/internal/events"
)

const testJobID = "6f1c3c8e-4a43-4a55-9d0e-2f0d4b9b7a11"

type ackRecord struct {
	tag     uint64
	ack     bool
	requeue bool
}

// fakeAcknowledger records ACK/NACK calls made through amqp.Delivery
type fakeAcknowledger struct {
	mu      sync.Mutex
	records []ackRecord
	done    chan struct{}
	want    int
}

func newFakeAcknowledger(want int) *fakeAcknowledger {
	return &fakeAcknowledger{done: make(chan struct{}), want: want}
}

func (f *fakeAcknowledger) record(r ackRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, r)
	if len(f.records) == f.want {
		close(f.done)
	}
	return nil
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	return f.record(ackRecord{tag: tag, ack: true})
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	return f.record(ackRecord{tag: tag, requeue: requeue})
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.record(ackRecord{tag: tag, requeue: requeue})
}

func (f *fakeAcknowledger) byTag() map[uint64]ackRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[uint64]ackRecord, len(f.records))
	for _, r := range f.records {
		out[r.tag] = r
	}
	return out
}

type fakeSource struct {
	stream chan amqp.Delivery
	err    error
}

func (f *fakeSource) Consume(consumerTag string, prefetch int) (<-chan amqp.Delivery, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

type fakeStore struct {
	mu   sync.Mutex
	recs map[string]Transcript
	err  error
}

func (f *fakeStore) Upsert(ctx context.Context, rec Transcript) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.recs[rec.JobID] = rec
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func eventBody(t *testing.T, ev events.Event) []byte {
	t.Helper()
	body, err := json.Marshal(ev)
	require.NoError(t, err)
	return body
}

func runArchiver(t *testing.T, store *fakeStore, bodies [][]byte) *fakeAcknowledger {
	t.Helper()

	acker := newFakeAcknowledger(len(bodies))
	source := &fakeSource{stream: make(chan amqp.Delivery, len(bodies))}
	for i, body := range bodies {
		source.stream <- amqp.Delivery{Acknowledger: acker, DeliveryTag: uint64(i + 1), Body: body}
	}

	a := NewArchiver(&Config{
		Logger:       discardLogger(),
		Source:       source,
		Store:        store,
		ConsumerTag:  "test",
		Concurrency:  2,
		StoreTimeout: time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Start(ctx) }()

	select {
	case <-acker.done:
	case <-time.After(5 * time.Second):
		t.Fatal("deliveries were not settled")
	}
	cancel()
	require.NoError(t, <-errCh)
	a.Stop()
	return acker
}

func TestArchiver_SettlesEveryDelivery(t *testing.T) {
	finished := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{recs: map[string]Transcript{}}

	bodies := [][]byte{
		eventBody(t, events.Event{
			Type: events.TypeDone, JobID: testJobID, Status: domain.JobStatusDone,
			Locator: "https://example.com/v", Transcript: "hello\n",
			CurrentSegment: 1, TotalSegments: 1, FinishedAt: &finished,
		}),
		eventBody(t, events.Event{Type: events.TypeProgress, JobID: testJobID, Status: domain.JobStatusProcessing}),
		[]byte(`{not json`),
		eventBody(t, events.Event{Type: events.TypeDone, JobID: "not-a-uuid", Status: domain.JobStatusDone}),
	}

	acker := runArchiver(t, store, bodies)
	got := acker.byTag()

	assert.True(t, got[1].ack, "terminal event is stored and acknowledged")
	assert.True(t, got[2].ack, "progress events are acknowledged without storage")
	assert.False(t, got[3].ack)
	assert.False(t, got[3].requeue, "malformed messages are dropped")
	assert.False(t, got[4].ack)
	assert.False(t, got[4].requeue)

	rec, ok := store.recs[testJobID]
	require.True(t, ok)
	assert.Equal(t, "DONE", rec.Status)
	assert.Equal(t, "hello\n", rec.Text)
	assert.True(t, rec.FinishedAt.Valid)
	assert.Equal(t, finished, rec.FinishedAt.Time)
}

func TestArchiver_StoreFailureRequeues(t *testing.T) {
	store := &fakeStore{recs: map[string]Transcript{}, err: errors.New("connection refused")}
	bodies := [][]byte{
		eventBody(t, events.Event{Type: events.TypeFailed, JobID: testJobID, Status: domain.JobStatusFailed, ErrorDetail: "boom"}),
	}

	acker := runArchiver(t, store, bodies)
	got := acker.byTag()

	assert.False(t, got[1].ack)
	assert.True(t, got[1].requeue)
}

func TestArchiver_ConsumeError(t *testing.T) {
	a := NewArchiver(&Config{
		Logger: discardLogger(),
		Source: &fakeSource{err: errors.New("not connected")},
		Store:  &fakeStore{recs: map[string]Transcript{}},
	})

	err := a.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

func TestFromEvent(t *testing.T) {
	archivedAt := time.Date(2026, 3, 1, 13, 0, 0, 0, time.FixedZone("X", 3600))

	rec, err := FromEvent(events.Event{
		JobID: testJobID, Status: domain.JobStatusCancelled, Transcript: "partial\n",
		CurrentSegment: 1, TotalSegments: 4,
	}, archivedAt)
	require.NoError(t, err)
	assert.Equal(t, "CANCELLED", rec.Status)
	assert.Equal(t, 1, rec.SegmentsDone)
	assert.Equal(t, 4, rec.SegmentsTotal)
	assert.False(t, rec.FinishedAt.Valid)
	assert.Equal(t, time.UTC, rec.ArchivedAt.Location())

	_, err = FromEvent(events.Event{JobID: testJobID, Status: domain.JobStatusQueued}, archivedAt)
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestShouldRequeue(t *testing.T) {
	assert.True(t, shouldRequeue(NewRetryableError(errors.New("timeout"))))
	assert.False(t, shouldRequeue(ErrInvalidEvent))
	assert.False(t, shouldRequeue(errors.New("unknown")))
}
