// Package segment splits a source into bounded, contiguous time slices
// and materializes them one at a time.
package segment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/transcribe-service/internal/audio"
	"github.com/cuongbtq/transcribe-service/internal/domain"
)

// DefaultMaxDuration is the segment length used when none is configured
const DefaultMaxDuration = 5 * time.Minute

// maxSegments bounds the plan size so a bogus duration cannot allocate without limit
const maxSegments = 1_000_000

// Decoder is the audio capability the planner relies on
type Decoder interface {
	Probe(ctx context.Context, source domain.Resource) (time.Duration, error)
	Extract(ctx context.Context, source domain.Resource, rng audio.Range, index int) (domain.Resource, error)
}

// Segment is one materialized slice. The caller owns Handle and must release it.
type Segment struct {
	Index  int
	Range  audio.Range
	Handle domain.Resource
}

// Planner computes segment plans for sources
type Planner struct {
	decoder Decoder
	logger  *slog.Logger
}

// NewPlanner creates a planner backed by decoder
func NewPlanner(decoder Decoder, logger *slog.Logger) *Planner {
	return &Planner{decoder: decoder, logger: logger}
}

// Plan probes the source and splits it into ranges no longer than maxDuration.
// No segment file is created until a cursor asks for it.
func (p *Planner) Plan(ctx context.Context, source domain.Resource, maxDuration time.Duration) (*Plan, error) {
	if maxDuration <= 0 {
		return nil, &domain.SegmentationError{Reason: fmt.Sprintf("max segment duration must be positive, got %s", maxDuration)}
	}

	total, err := p.decoder.Probe(ctx, source)
	if err != nil {
		return nil, &domain.SegmentationError{Reason: "cannot read source duration", Err: err}
	}

	ranges, err := Split(total, maxDuration)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("Segment plan ready",
		slog.String("source", source.Path()),
		slog.Duration("duration", total),
		slog.Duration("max_segment", maxDuration),
		slog.Int("segments", len(ranges)),
	)

	return &Plan{source: source, total: total, ranges: ranges, decoder: p.decoder}, nil
}

// Split covers [0, total) with contiguous ranges of at most max; only the last one may be shorter
func Split(total, max time.Duration) ([]audio.Range, error) {
	if max <= 0 {
		return nil, &domain.SegmentationError{Reason: fmt.Sprintf("max segment duration must be positive, got %s", max)}
	}
	if total <= 0 {
		return nil, &domain.SegmentationError{Reason: "source has zero duration"}
	}

	n := total / max
	if total%max != 0 {
		n++
	}
	if n > maxSegments {
		return nil, &domain.SegmentationError{Reason: fmt.Sprintf("source of %s needs %d segments, limit is %d", total, n, maxSegments)}
	}

	ranges := make([]audio.Range, 0, int(n))
	for start := time.Duration(0); ; start += max {
		if rest := total - start; rest <= max {
			ranges = append(ranges, audio.Range{Start: start, Length: rest})
			break
		}
		ranges = append(ranges, audio.Range{Start: start, Length: max})
	}
	return ranges, nil
}

// Plan is the ordered segment layout of one source
type Plan struct {
	source  domain.Resource
	total   time.Duration
	ranges  []audio.Range
	decoder Decoder
}

// Len returns the number of segments
func (p *Plan) Len() int {
	return len(p.ranges)
}

// Duration returns the probed source duration
func (p *Plan) Duration() time.Duration {
	return p.total
}

// Ranges returns a copy of the planned ranges
func (p *Plan) Ranges() []audio.Range {
	out := make([]audio.Range, len(p.ranges))
	copy(out, p.ranges)
	return out
}

// Cursor starts a fresh pass over the segments
func (p *Plan) Cursor() *Cursor {
	return &Cursor{plan: p}
}

// Cursor materializes segments in index order
type Cursor struct {
	plan *Plan
	next int
}

// Next extracts the next segment. ok is false once every segment was produced.
func (c *Cursor) Next(ctx context.Context) (seg Segment, ok bool, err error) {
	if c.next >= len(c.plan.ranges) {
		return Segment{}, false, nil
	}

	index := c.next
	rng := c.plan.ranges[index]
	handle, err := c.plan.decoder.Extract(ctx, c.plan.source, rng, index)
	if err != nil {
		return Segment{}, false, &domain.SegmentationError{Reason: fmt.Sprintf("cannot extract segment %d", index), Err: err}
	}

	c.next++
	return Segment{Index: index, Range: rng, Handle: handle}, true, nil
}

// Position returns the index of the segment the next call to Next produces
func (c *Cursor) Position() int {
	return c.next
}
