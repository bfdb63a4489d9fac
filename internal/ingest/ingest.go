// Package ingest implements the capture ingest stage: quality gating,
// presence tracking, and the bounded admission queue feeding the
// classification workers.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/elaichix/satwatch/internal/common"
	"github.com/elaichix/satwatch/internal/model"
	"github.com/elaichix/satwatch/internal/observability"
	"github.com/elaichix/satwatch/internal/service"
)

// Reject reasons recorded in statistics.
const (
	ReasonLowQuality = "LOW_QUALITY"
	ReasonNoResult   = "NO_RESULT"
)

// Config holds ingest configuration options.
type Config struct {
	// MinDuration rejects segments shorter than this window.
	MinDuration time.Duration
	// QualityFloor rejects segments whose signal-quality score is below
	// this value.
	QualityFloor float64
	// QueueCapacity bounds the admission queue. Admission blocks at
	// capacity; a valid segment is never dropped.
	QueueCapacity int
}

// DefaultConfig returns the default ingest configuration.
func DefaultConfig() Config {
	return Config{
		MinDuration:   time.Second,
		QualityFloor:  0.3,
		QueueCapacity: 64,
	}
}

// Ingestor accepts capture segments, rejects low-quality ones, and queues
// the rest for classification. Rejection reports rather than crashes, and
// presence tracking runs independently of classification.
type Ingestor struct {
	storage   service.Storage
	metrics   *observability.PipelineCollector
	queue     chan *model.CaptureSegment
	config    Config
	closeOnce sync.Once
}

// New creates an ingestor.
func New(storage service.Storage, metrics *observability.PipelineCollector, config Config) (*Ingestor, error) {
	if storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if metrics == nil {
		metrics = observability.NopCollector()
	}
	if config.QueueCapacity <= 0 {
		config.QueueCapacity = DefaultConfig().QueueCapacity
	}
	if config.QualityFloor <= 0 {
		config.QualityFloor = DefaultConfig().QualityFloor
	}
	if config.MinDuration <= 0 {
		config.MinDuration = DefaultConfig().MinDuration
	}

	return &Ingestor{
		storage: storage,
		metrics: metrics,
		queue:   make(chan *model.CaptureSegment, config.QueueCapacity),
		config:  config,
	}, nil
}

// Submit admits one segment. The transponder's presence is updated even for
// rejected segments. Admission blocks when the queue is at capacity;
// back-pressure is preferred over loss.
//
// Returns common.ErrSegmentRejected (wrapped) for quality rejections; the
// caller treats that as a reported statistic, not a failure.
func (in *Ingestor) Submit(ctx context.Context, segment *model.CaptureSegment) error {
	if segment == nil {
		return fmt.Errorf("nil segment")
	}

	// Presence tracking is independent of classification.
	if err := in.storage.TouchTransponder(ctx, segment.Key, segment.End); err != nil {
		return fmt.Errorf("failed to update presence for %s: %w", segment.Key, err)
	}

	if reason := in.gate(segment); reason != "" {
		slog.Info("Segment rejected",
			"segment_id", segment.ID,
			"transponder", segment.Key.String(),
			"reason", reason,
			"quality", segment.Quality,
			"duration", segment.Duration())
		in.metrics.SegmentsRejected.WithLabelValues(reason).Inc()
		if err := in.storage.IncrementRejectCount(ctx, segment.Key, reason); err != nil {
			return fmt.Errorf("failed to record rejection for %s: %w", segment.Key, err)
		}
		return fmt.Errorf("segment %s (%s): %w", segment.ID, reason, common.ErrSegmentRejected)
	}

	select {
	case in.queue <- segment:
		in.metrics.SegmentsIngested.WithLabelValues(segment.Key.Satellite).Inc()
		in.metrics.QueueLength.Set(float64(len(in.queue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// gate returns the rejection reason for a segment, or "" when it is valid.
// Too-short and under-floor segments are both reported as LOW_QUALITY.
func (in *Ingestor) gate(segment *model.CaptureSegment) string {
	if segment.Duration() < in.config.MinDuration {
		return ReasonLowQuality
	}
	if segment.Quality < in.config.QualityFloor {
		return ReasonLowQuality
	}
	return ""
}

// Segments exposes the admission queue for the classification workers.
func (in *Ingestor) Segments() <-chan *model.CaptureSegment {
	return in.queue
}

// Close marks the end of ingestion. Queued segments remain consumable.
func (in *Ingestor) Close() {
	in.closeOnce.Do(func() {
		close(in.queue)
	})
}

// Drain pulls segments from a capture source until it is exhausted or the
// context is canceled, then closes the queue. Quality rejections are
// reported and skipped; one bad segment never halts the others.
func (in *Ingestor) Drain(ctx context.Context, source service.CaptureSource) error {
	defer in.Close()

	for {
		segment, err := source.Next(ctx)
		if err != nil {
			if errors.Is(err, service.ErrSourceDrained) {
				return nil
			}
			return fmt.Errorf("capture source: %w", err)
		}

		if err := in.Submit(ctx, segment); err != nil {
			if common.IsRejection(err) {
				continue
			}
			return err
		}
	}
}
