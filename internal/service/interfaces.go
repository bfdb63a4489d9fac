// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/elaichix/satwatch/internal/model"
)

// ErrSourceDrained is returned by a CaptureSource when no further segments
// will be delivered.
var ErrSourceDrained = errors.New("capture source drained")

// CaseFilter defines filtering options for disclosure case queries.
type CaseFilter struct {
	Status model.CaseStatus // empty matches all statuses
	Limit  int
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	// Transponder operations
	SaveTransponder(ctx context.Context, transponder *model.Transponder) error
	GetTransponder(ctx context.Context, key model.TransponderKey) (*model.Transponder, error)
	ListTransponders(ctx context.Context) ([]model.Transponder, error)
	// TouchTransponder updates last-observed presence, creating the
	// transponder on first observation. Runs even for rejected segments.
	TouchTransponder(ctx context.Context, key model.TransponderKey, observedAt time.Time) error

	// Ledger operations
	GetRecord(ctx context.Context, key model.TransponderKey) (*model.ClassificationRecord, error)
	SaveRecord(ctx context.Context, record *model.ClassificationRecord) error
	ListRecords(ctx context.Context) ([]model.ClassificationRecord, error)
	// ConsumeSegment marks a segment fingerprint as folded for a key.
	// Returns false when the fingerprint was already consumed, enforcing
	// at-most-once evidence accounting under redelivery.
	ConsumeSegment(ctx context.Context, key model.TransponderKey, fingerprint, passID string) (bool, error)
	CountDistinctPasses(ctx context.Context, key model.TransponderKey) (int, error)
	AppendTransition(ctx context.Context, transition *model.VerdictTransition) error
	History(ctx context.Context, key model.TransponderKey) ([]model.VerdictTransition, error)

	// Reject statistics
	IncrementRejectCount(ctx context.Context, key model.TransponderKey, reason string) error
	RejectCount(ctx context.Context, key model.TransponderKey) (int, error)

	// Disclosure operations
	OpenCase(ctx context.Context, disclosureCase *model.DisclosureCase) error
	GetOpenCase(ctx context.Context, key model.TransponderKey) (*model.DisclosureCase, error)
	UpdateCase(ctx context.Context, disclosureCase *model.DisclosureCase) error
	ListCases(ctx context.Context, filter CaseFilter) ([]model.DisclosureCase, error)

	// Database management
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit() error
	Rollback() error
	// Include all Storage methods with transactional semantics.
	Storage
}

// CaptureSource delivers capture segments from an external capture system.
// Delivery order is monotonic per transponder key but not globally.
type CaptureSource interface {
	// Next returns the next segment, or ErrSourceDrained when the
	// sequence is finished.
	Next(ctx context.Context) (*model.CaptureSegment, error)
}

// FeatureExtractor is the external modulation-feature capability. A pure
// function from segment reference to measurable features; failure returns
// (nil, nil) rather than an error, and the segment is treated as rejected.
type FeatureExtractor interface {
	Features(ctx context.Context, segment *model.CaptureSegment) (*model.SignalFeatures, error)
}

// PayloadProber is the external payload-structure capability. It inspects
// structural markers only and never returns decoded content.
type PayloadProber interface {
	Probe(ctx context.Context, segment *model.CaptureSegment) (*model.PayloadProbeResult, error)
}

// TrafficFingerprinter is the external traffic fingerprint capability.
type TrafficFingerprinter interface {
	Fingerprint(ctx context.Context, segment *model.CaptureSegment) (*model.TrafficFingerprint, error)
}

// Notifier receives disclosure case state-change events. It does not
// compose or send operator messages itself.
type Notifier interface {
	CaseChanged(ctx context.Context, disclosureCase model.DisclosureCase, previous model.CaseStatus) error
}

// PipelineStats shows the results of a processing run.
type PipelineStats struct {
	SegmentsSeen     int
	SegmentsFolded   int
	SegmentsRejected int
	Duplicates       int
	CasesOpened      int
	Duration         time.Duration
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
