// Package engine implements the core pipeline engine that folds capture
// segments into the classification ledger.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/elaichix/satwatch/internal/classifier"
	"github.com/elaichix/satwatch/internal/common"
	"github.com/elaichix/satwatch/internal/disclosure"
	"github.com/elaichix/satwatch/internal/ingest"
	"github.com/elaichix/satwatch/internal/model"
	"github.com/elaichix/satwatch/internal/modulation"
	"github.com/elaichix/satwatch/internal/observability"
	"github.com/elaichix/satwatch/internal/service"
	"github.com/elaichix/satwatch/internal/traffic"
)

// Config holds configuration options for the pipeline engine.
type Config struct {
	Workers int
	Retry   service.RetryOptions
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Workers: 4,
		Retry: service.RetryOptions{
			MaxAttempts:  5,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// PipelineEngine orchestrates classification of capture segments. Workers
// pull segments concurrently; folds for the same transponder are serialized
// through a per-key lock so each transponder sees its segments in delivery
// order.
type PipelineEngine struct {
	storage     service.Storage
	identifier  *modulation.Identifier
	prober      service.PayloadProber
	classifier  *classifier.Classifier
	categorizer *traffic.Categorizer
	tracker     *disclosure.Tracker
	metrics     *observability.PipelineCollector
	config      Config

	keyLocks sync.Map // model.TransponderKey -> *sync.Mutex

	mu    sync.Mutex
	stats service.PipelineStats
}

// New creates a pipeline engine with the default configuration.
func New(storage service.Storage, identifier *modulation.Identifier, prober service.PayloadProber, cls *classifier.Classifier, categorizer *traffic.Categorizer, tracker *disclosure.Tracker, metrics *observability.PipelineCollector) (*PipelineEngine, error) {
	return NewWithConfig(storage, identifier, prober, cls, categorizer, tracker, metrics, DefaultConfig())
}

// NewWithConfig creates a pipeline engine with custom configuration. The
// tracker and categorizer may be nil; disclosure and traffic categorization
// are then skipped.
func NewWithConfig(storage service.Storage, identifier *modulation.Identifier, prober service.PayloadProber, cls *classifier.Classifier, categorizer *traffic.Categorizer, tracker *disclosure.Tracker, metrics *observability.PipelineCollector, config Config) (*PipelineEngine, error) {
	if storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if identifier == nil {
		return nil, fmt.Errorf("modulation identifier is required")
	}
	if prober == nil {
		return nil, fmt.Errorf("payload prober is required")
	}
	if cls == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if metrics == nil {
		metrics = observability.NopCollector()
	}
	if config.Workers <= 0 {
		config.Workers = DefaultConfig().Workers
	}
	return &PipelineEngine{
		storage:     storage,
		identifier:  identifier,
		prober:      prober,
		classifier:  cls,
		categorizer: categorizer,
		tracker:     tracker,
		metrics:     metrics,
		config:      config,
	}, nil
}

// Run consumes segments until the channel closes or the context is
// canceled, and returns the run's statistics.
func (e *PipelineEngine) Run(ctx context.Context, segments <-chan *model.CaptureSegment) (service.PipelineStats, error) {
	start := time.Now()
	slog.Info("Starting pipeline engine", "workers", e.config.Workers)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < e.config.Workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case segment, ok := <-segments:
					if !ok {
						return nil
					}
					e.metrics.QueueLength.Set(float64(len(segments)))
					if err := e.ProcessSegment(ctx, segment); err != nil {
						return err
					}
				}
			}
		})
	}

	err := g.Wait()

	e.mu.Lock()
	e.stats.Duration = time.Since(start)
	stats := e.stats
	e.mu.Unlock()

	slog.Info("Pipeline engine finished",
		"segments_seen", stats.SegmentsSeen,
		"segments_folded", stats.SegmentsFolded,
		"segments_rejected", stats.SegmentsRejected,
		"duplicates", stats.Duplicates,
		"cases_opened", stats.CasesOpened,
		"duration", stats.Duration)

	return stats, err
}

// ProcessSegment runs the full fold sequence for one segment. Rejections and
// duplicates are absorbed; an error means the ledger could not be updated
// even after retries.
func (e *PipelineEngine) ProcessSegment(ctx context.Context, segment *model.CaptureSegment) error {
	e.addStats(func(s *service.PipelineStats) { s.SegmentsSeen++ })

	mod, err := e.identifier.Identify(ctx, segment)
	if err != nil {
		// A failed extraction is a rejection, not a run failure; the
		// other workers keep folding.
		slog.Warn("Feature extraction failed",
			"segment_id", segment.ID,
			"transponder", segment.Key.String(),
			"error", err)
		return e.reject(ctx, segment, ingest.ReasonNoResult)
	}
	if mod == nil {
		// The external extractor produced nothing; this is a rejection,
		// not a processing failure.
		return e.reject(ctx, segment, ingest.ReasonNoResult)
	}

	probe, err := e.prober.Probe(ctx, segment)
	if err != nil {
		// A failed probe degrades the segment to modulation-only
		// evidence rather than discarding it.
		slog.Warn("Payload probe failed",
			"segment_id", segment.ID,
			"transponder", segment.Key.String(),
			"error", err)
		probe = nil
	}

	unlock := e.lockKey(segment.Key)
	defer unlock()

	foldStart := time.Now()
	var outcome foldOutcome
	err = common.WithRetry(ctx, func() error {
		var foldErr error
		outcome, foldErr = e.fold(ctx, segment, mod, probe)
		return foldErr
	}, e.config.Retry)
	if err != nil {
		return fmt.Errorf("%w: folding segment %s: %v", common.ErrLedgerContention, segment.ID, err)
	}
	e.metrics.FoldDuration.Observe(time.Since(foldStart).Seconds())

	if outcome.duplicate {
		slog.Debug("Duplicate segment ignored",
			"segment_id", segment.ID,
			"transponder", segment.Key.String())
		e.metrics.DuplicateSegments.Inc()
		e.addStats(func(s *service.PipelineStats) { s.Duplicates++ })
		return nil
	}

	e.addStats(func(s *service.PipelineStats) { s.SegmentsFolded++ })
	if outcome.transition != nil {
		e.recordVerdictChange(outcome.transition)
	}

	if e.tracker != nil && e.classifier.DisclosureEligible(&outcome.record) {
		cfg := e.classifier.Config()
		_, opened, caseErr := e.tracker.MaybeOpen(ctx, &outcome.record, cfg.MinEvidence, cfg.MinPasses)
		if caseErr != nil {
			return fmt.Errorf("opening disclosure case for %s: %w", segment.Key, caseErr)
		}
		if opened {
			e.metrics.CasesOpened.Inc()
			e.addStats(func(s *service.PipelineStats) { s.CasesOpened++ })
		}
	}

	return nil
}

// foldOutcome carries the result of one ledger fold out of the retry loop.
type foldOutcome struct {
	record     model.ClassificationRecord
	transition *model.VerdictTransition
	duplicate  bool
}

// fold applies one segment's evidence to the ledger in a single
// transaction. Consuming the segment fingerprint first makes the fold
// idempotent: a redelivered segment commits nothing.
func (e *PipelineEngine) fold(ctx context.Context, segment *model.CaptureSegment, mod *model.ModulationResult, probe *model.PayloadProbeResult) (foldOutcome, error) {
	tx, err := e.storage.BeginTx(ctx)
	if err != nil {
		return foldOutcome{}, retryable(fmt.Errorf("beginning fold transaction: %w", err))
	}
	defer func() {
		_ = tx.Rollback()
	}()

	fresh, err := tx.ConsumeSegment(ctx, segment.Key, segment.Fingerprint(), segment.PassID)
	if err != nil {
		return foldOutcome{}, retryable(fmt.Errorf("consuming segment %s: %w", segment.ID, err))
	}
	if !fresh {
		return foldOutcome{duplicate: true}, nil
	}

	// Records and cases hang off the transponder row, so presence must be
	// established in the same transaction even when the segment did not
	// arrive through the ingest queue.
	if err := tx.TouchTransponder(ctx, segment.Key, segment.End); err != nil {
		return foldOutcome{}, retryable(fmt.Errorf("recording presence for %s: %w", segment.Key, err))
	}

	record, err := tx.GetRecord(ctx, segment.Key)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			return foldOutcome{}, retryable(fmt.Errorf("loading record for %s: %w", segment.Key, err))
		}
		record = &model.ClassificationRecord{
			Key:     segment.Key,
			Verdict: model.VerdictUnknown,
			Traffic: model.TrafficUnknown,
		}
	}

	now := time.Now().UTC()
	updated, transition := e.classifier.Apply(*record, segment, mod, probe, now)

	passes, err := tx.CountDistinctPasses(ctx, segment.Key)
	if err != nil {
		return foldOutcome{}, retryable(fmt.Errorf("counting passes for %s: %w", segment.Key, err))
	}
	updated.PassCount = passes

	if e.categorizer != nil && updated.Verdict == model.VerdictUnencrypted {
		category, catErr := e.categorizer.Categorize(ctx, &updated, segment)
		if catErr != nil {
			return foldOutcome{}, retryable(fmt.Errorf("categorizing traffic for %s: %w", segment.Key, catErr))
		}
		if category != updated.Traffic {
			prior := updated.Traffic
			updated.Traffic = category
			if transition == nil {
				// A category revision without a verdict change still
				// belongs in the history.
				transition = &model.VerdictTransition{
					Key:           updated.Key,
					From:          updated.Verdict,
					To:            updated.Verdict,
					SegmentID:     segment.ID,
					Confidence:    updated.Confidence,
					EvidenceCount: updated.EvidenceCount,
					OccurredAt:    now,
				}
			}
			transition.Traffic = category
			slog.Info("Traffic category revised",
				"transponder", segment.Key.String(),
				"from", prior,
				"to", category)
		}
	}

	if err := tx.SaveRecord(ctx, &updated); err != nil {
		return foldOutcome{}, retryable(fmt.Errorf("saving record for %s: %w", segment.Key, err))
	}
	if transition != nil {
		if err := tx.AppendTransition(ctx, transition); err != nil {
			return foldOutcome{}, retryable(fmt.Errorf("appending transition for %s: %w", segment.Key, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return foldOutcome{}, retryable(fmt.Errorf("committing fold for segment %s: %w", segment.ID, err))
	}

	return foldOutcome{record: updated, transition: transition}, nil
}

// reject records a non-processable segment without touching the ledger.
func (e *PipelineEngine) reject(ctx context.Context, segment *model.CaptureSegment, reason string) error {
	slog.Info("Segment rejected",
		"segment_id", segment.ID,
		"transponder", segment.Key.String(),
		"reason", reason)
	e.metrics.SegmentsRejected.WithLabelValues(reason).Inc()
	e.addStats(func(s *service.PipelineStats) { s.SegmentsRejected++ })

	if err := e.storage.IncrementRejectCount(ctx, segment.Key, reason); err != nil {
		return fmt.Errorf("recording rejection for %s: %w", segment.Key, err)
	}
	return nil
}

// recordVerdictChange updates the per-verdict gauge for a transition.
func (e *PipelineEngine) recordVerdictChange(transition *model.VerdictTransition) {
	if transition.From == transition.To {
		return
	}
	if transition.From != model.VerdictUnknown {
		e.metrics.Verdicts.WithLabelValues(string(transition.From)).Dec()
	}
	e.metrics.Verdicts.WithLabelValues(string(transition.To)).Inc()
	slog.Info("Verdict changed",
		"transponder", transition.Key.String(),
		"from", transition.From,
		"to", transition.To,
		"confidence", fmt.Sprintf("%.3f", transition.Confidence),
		"evidence_count", transition.EvidenceCount)
}

// Stats returns a snapshot of the accumulated run statistics.
func (e *PipelineEngine) Stats() service.PipelineStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

func (e *PipelineEngine) addStats(update func(*service.PipelineStats)) {
	e.mu.Lock()
	update(&e.stats)
	e.mu.Unlock()
}

// lockKey serializes folds per transponder key and returns the unlock
// function.
func (e *PipelineEngine) lockKey(key model.TransponderKey) func() {
	lock, _ := e.keyLocks.LoadOrStore(key, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// retryable marks SQLite contention errors for the retry loop; everything
// else fails the fold immediately.
func retryable(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") {
		return &common.RetryableError{Err: err, Retryable: true}
	}
	return &common.RetryableError{Err: err, Retryable: false}
}
