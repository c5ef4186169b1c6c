// Package archive consumes terminal job events and stores their transcripts.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Source delivers broker messages with manual acknowledgement
type Source interface {
	Consume(consumerTag string, prefetch int) (<-chan amqp.Delivery, error)
}

// Store persists archive records
type Store interface {
	Upsert(ctx context.Context, rec Transcript) error
}

// Config holds archiver configuration
type Config struct {
	Logger       *slog.Logger
	Source       Source
	Store        Store
	ConsumerTag  string
	Prefetch     int
	Concurrency  int
	StoreTimeout time.Duration
}

// Archiver dispatches deliveries to a fixed pool of goroutines
type Archiver struct {
	logger       *slog.Logger
	source       Source
	store        Store
	consumerTag  string
	prefetch     int
	concurrency  int
	storeTimeout time.Duration
	now          func() time.Time

	deliveries chan amqp.Delivery
	wg         sync.WaitGroup
	stopOnce   sync.Once
	stopChan   chan struct{}
}

// NewArchiver creates a new archiver instance
func NewArchiver(cfg *Config) *Archiver {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Archiver{
		logger:       cfg.Logger,
		source:       cfg.Source,
		store:        cfg.Store,
		consumerTag:  cfg.ConsumerTag,
		prefetch:     cfg.Prefetch,
		concurrency:  concurrency,
		storeTimeout: cfg.StoreTimeout,
		now:          time.Now,
		deliveries:   make(chan amqp.Delivery, concurrency),
		stopChan:     make(chan struct{}),
	}
}

// Start subscribes to the queue and blocks until ctx ends or the broker closes the stream
func (a *Archiver) Start(ctx context.Context) error {
	a.logger.Info("Starting transcript archiver",
		slog.Int("concurrency", a.concurrency),
		slog.Int("prefetch", a.prefetch),
	)

	stream, err := a.source.Consume(a.consumerTag, a.prefetch)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	a.spawnPool(ctx)
	a.dispatch(ctx, stream)
	close(a.deliveries)
	return nil
}

// Stop waits for in-flight deliveries to finish
func (a *Archiver) Stop() {
	a.logger.Info("Stopping archiver...")
	a.stopOnce.Do(func() { close(a.stopChan) })
	a.wg.Wait()
	a.logger.Info("Archiver stopped")
}

// dispatch forwards deliveries to the pool until ctx ends or the stream closes
func (a *Archiver) dispatch(ctx context.Context, stream <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Message dispatcher stopped - context canceled")
			return
		case <-a.stopChan:
			a.logger.Info("Message dispatcher stopped")
			return
		case d, ok := <-stream:
			if !ok {
				a.logger.Warn("RabbitMQ delivery channel closed")
				return
			}
			select {
			case a.deliveries <- d:
			case <-ctx.Done():
				a.nack(d, true, "shutdown")
				return
			}
		}
	}
}

func (a *Archiver) spawnPool(ctx context.Context) {
	for i := 0; i < a.concurrency; i++ {
		a.wg.Add(1)
		go a.workerLoop(ctx, i)
	}
	a.logger.Info("Archiver pool spawned", slog.Int("worker_count", a.concurrency))
}

func (a *Archiver) workerLoop(ctx context.Context, workerNum int) {
	defer a.wg.Done()

	for d := range a.deliveries {
		err := a.handle(ctx, d)
		if err == nil {
			if ackErr := d.Ack(false); ackErr != nil {
				a.logger.Error("Failed to ACK message",
					slog.Int("worker_num", workerNum),
					slog.Any("error", ackErr),
				)
			}
			continue
		}

		requeue := shouldRequeue(err)
		a.logger.Error("Failed to archive event",
			slog.Int("worker_num", workerNum),
			slog.Uint64("delivery_tag", d.DeliveryTag),
			slog.Bool("requeue", requeue),
			slog.Any("error", err),
		)
		a.nack(d, requeue, "archive failed")
	}
}

// handle archives one delivery. Non-terminal events are acknowledged without storage.
func (a *Archiver) handle(ctx context.Context, d amqp.Delivery) error {
	ev, err := decodeEvent(d.Body)
	if err != nil {
		return err
	}
	if !ev.Status.IsTerminal() {
		a.logger.Debug("Skipping non-terminal event",
			slog.String("job_id", ev.JobID),
			slog.String("type", string(ev.Type)),
		)
		return nil
	}

	rec, err := FromEvent(ev, a.now())
	if err != nil {
		return err
	}

	storeCtx := ctx
	if a.storeTimeout > 0 {
		var cancel context.CancelFunc
		storeCtx, cancel = context.WithTimeout(ctx, a.storeTimeout)
		defer cancel()
	}
	if err := a.store.Upsert(storeCtx, rec); err != nil {
		return NewRetryableError(err)
	}

	a.logger.Info("Transcript archived",
		slog.String("job_id", rec.JobID),
		slog.String("status", rec.Status),
	)
	return nil
}

func (a *Archiver) nack(d amqp.Delivery, requeue bool, reason string) {
	if err := d.Nack(false, requeue); err != nil {
		a.logger.Error("Failed to NACK message",
			slog.String("reason", reason),
			slog.Any("error", err),
		)
	}
}
