package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/elaichix/satwatch/internal/model"
	"github.com/elaichix/satwatch/internal/service"
)

// TestKey returns a deterministic transponder key for tests.
func TestKey(satellite string, frequencyMHz float64) model.TransponderKey {
	return model.TransponderKey{
		Satellite:    satellite,
		FrequencyMHz: frequencyMHz,
		BandwidthMHz: 36.0,
	}
}

// SegmentOption mutates a fixture segment.
type SegmentOption func(*model.CaptureSegment)

// WithPass sets the observation pass ID.
func WithPass(passID string) SegmentOption {
	return func(s *model.CaptureSegment) { s.PassID = passID }
}

// WithQuality sets the segment quality.
func WithQuality(quality float64) SegmentOption {
	return func(s *model.CaptureSegment) { s.Quality = quality }
}

// WithDuration sets End relative to Start.
func WithDuration(d time.Duration) SegmentOption {
	return func(s *model.CaptureSegment) { s.End = s.Start.Add(d) }
}

// TestSegment builds a capture segment for a key. Sequence numbers produce
// distinct sample references and time windows, so distinct sequence numbers
// have distinct fingerprints.
func TestSegment(key model.TransponderKey, seq int, opts ...SegmentOption) *model.CaptureSegment {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(seq) * time.Minute)
	segment := &model.CaptureSegment{
		ID:                fmt.Sprintf("seg-%s-%04d", key.Satellite, seq),
		Key:               key,
		Start:             start,
		End:               start.Add(30 * time.Second),
		SampleRef:         fmt.Sprintf("capture://%s/%04d", key.Satellite, seq),
		PassID:            fmt.Sprintf("pass-%03d", seq/10),
		SampleRate:        25_000_000,
		Quality:           0.9,
		SignalStrengthDBm: -82.5,
		CarrierToNoiseDB:  14.2,
	}
	for _, opt := range opts {
		opt(segment)
	}
	return segment
}

// StubExtractor returns scripted signal features keyed by segment ID. A
// missing entry yields (nil, nil), the extractor's no-result outcome. Errs
// scripts a failure for specific segments; Err fails every call.
type StubExtractor struct {
	Results map[string]*model.SignalFeatures
	Default *model.SignalFeatures
	Errs    map[string]error
	Err     error
}

// Features implements service.FeatureExtractor.
func (s *StubExtractor) Features(_ context.Context, segment *model.CaptureSegment) (*model.SignalFeatures, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if err, ok := s.Errs[segment.ID]; ok {
		return nil, err
	}
	if features, ok := s.Results[segment.ID]; ok {
		return features, nil
	}
	return s.Default, nil
}

// DVBS2Features returns features inside the DVB-S2 wideband rule window.
func DVBS2Features() *model.SignalFeatures {
	return &model.SignalFeatures{
		SymbolRateMSps:     30.0,
		SpectralOccupancy:  0.85,
		ConstellationOrder: 8,
	}
}

// StubProber returns scripted probe results keyed by segment ID.
type StubProber struct {
	Results map[string]*model.PayloadProbeResult
	Default *model.PayloadProbeResult
	Err     error
}

// Probe implements service.PayloadProber.
func (s *StubProber) Probe(_ context.Context, segment *model.CaptureSegment) (*model.PayloadProbeResult, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if result, ok := s.Results[segment.ID]; ok {
		return result, nil
	}
	return s.Default, nil
}

// HandshakeProbe reports an encryption handshake at the given confidence.
func HandshakeProbe(confidence float64) *model.PayloadProbeResult {
	return &model.PayloadProbeResult{Structure: model.PayloadEncryptionHandshake, Confidence: confidence}
}

// PlaintextProbe reports structured plaintext at the given confidence.
func PlaintextProbe(confidence float64) *model.PayloadProbeResult {
	return &model.PayloadProbeResult{Structure: model.PayloadStructuredPlaintext, Confidence: confidence}
}

// EntropyProbe reports a high-entropy payload at the given confidence.
func EntropyProbe(confidence float64) *model.PayloadProbeResult {
	return &model.PayloadProbeResult{Structure: model.PayloadHighEntropy, Confidence: confidence}
}

// StubFingerprinter returns a fixed traffic fingerprint for every segment.
type StubFingerprinter struct {
	Category   model.TrafficCategory
	Confidence float64
	Err        error
}

// Fingerprint implements service.TrafficFingerprinter.
func (s *StubFingerprinter) Fingerprint(_ context.Context, segment *model.CaptureSegment) (*model.TrafficFingerprint, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Category == "" {
		return nil, nil //nolint:nilnil // no fingerprint is a valid outcome
	}
	return &model.TrafficFingerprint{
		SegmentID:  segment.ID,
		Category:   s.Category,
		Confidence: s.Confidence,
	}, nil
}

// RecordingNotifier captures case-change events for assertions.
type RecordingNotifier struct {
	mu     sync.Mutex
	Events []model.DisclosureCase
	Err    error
}

// CaseChanged implements service.Notifier.
func (n *RecordingNotifier) CaseChanged(_ context.Context, disclosureCase model.DisclosureCase, _ model.CaseStatus) error {
	if n.Err != nil {
		return n.Err
	}
	n.mu.Lock()
	n.Events = append(n.Events, disclosureCase)
	n.mu.Unlock()
	return nil
}

// Count returns the number of recorded events.
func (n *RecordingNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Events)
}

// SliceSource is a CaptureSource backed by a fixed slice of segments.
type SliceSource struct {
	Segments []*model.CaptureSegment
	next     int
}

// Next implements service.CaptureSource.
func (s *SliceSource) Next(_ context.Context) (*model.CaptureSegment, error) {
	if s.next >= len(s.Segments) {
		return nil, service.ErrSourceDrained
	}
	segment := s.Segments[s.next]
	s.next++
	return segment, nil
}
