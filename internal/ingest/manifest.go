package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/elaichix/satwatch/internal/model"
	"github.com/elaichix/satwatch/internal/service"
)

// ManifestEntry is one line of a capture manifest: a segment plus whatever
// the capture system already measured for it. Absent measurements surface as
// no-result from the corresponding capability.
type ManifestEntry struct {
	Segment     model.CaptureSegment      `json:"segment"`
	Features    *model.SignalFeatures     `json:"features,omitempty"`
	Probe       *model.PayloadProbeResult `json:"probe,omitempty"`
	Fingerprint *model.TrafficFingerprint `json:"fingerprint,omitempty"`
}

// Manifest is a capture manifest loaded from a JSON Lines file. It serves as
// the capture source and, because entries carry their own measurements, as
// the feature extractor, payload prober, and traffic fingerprinter for the
// run.
type Manifest struct {
	entries []ManifestEntry
	byID    map[string]*ManifestEntry
	next    int
}

// LoadManifest reads a JSON Lines manifest from a file.
func LoadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening manifest %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	return ReadManifest(f)
}

// ReadManifest parses a JSON Lines manifest. Blank lines are skipped; a
// malformed line fails the whole load with its line number.
func ReadManifest(r io.Reader) (*Manifest, error) {
	manifest := &Manifest{byID: make(map[string]*ManifestEntry)}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var entry ManifestEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("manifest line %d: %w", line, err)
		}
		if entry.Segment.ID == "" {
			return nil, fmt.Errorf("manifest line %d: segment id is required", line)
		}
		if entry.Segment.Key.IsZero() {
			return nil, fmt.Errorf("manifest line %d: transponder key is required", line)
		}

		manifest.entries = append(manifest.entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	for i := range manifest.entries {
		manifest.byID[manifest.entries[i].Segment.ID] = &manifest.entries[i]
	}

	return manifest, nil
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	return len(m.entries)
}

// Next implements service.CaptureSource.
func (m *Manifest) Next(_ context.Context) (*model.CaptureSegment, error) {
	if m.next >= len(m.entries) {
		return nil, service.ErrSourceDrained
	}
	segment := &m.entries[m.next].Segment
	m.next++
	return segment, nil
}

// Features implements service.FeatureExtractor from the manifest's recorded
// measurements.
func (m *Manifest) Features(_ context.Context, segment *model.CaptureSegment) (*model.SignalFeatures, error) {
	entry, ok := m.byID[segment.ID]
	if !ok || entry.Features == nil {
		return nil, nil //nolint:nilnil // no result is a valid outcome
	}
	return entry.Features, nil
}

// Probe implements service.PayloadProber from the manifest's recorded
// measurements.
func (m *Manifest) Probe(_ context.Context, segment *model.CaptureSegment) (*model.PayloadProbeResult, error) {
	entry, ok := m.byID[segment.ID]
	if !ok || entry.Probe == nil {
		return nil, nil //nolint:nilnil // no result is a valid outcome
	}
	return entry.Probe, nil
}

// Fingerprint implements service.TrafficFingerprinter from the manifest's
// recorded measurements.
func (m *Manifest) Fingerprint(_ context.Context, segment *model.CaptureSegment) (*model.TrafficFingerprint, error) {
	entry, ok := m.byID[segment.ID]
	if !ok || entry.Fingerprint == nil {
		return nil, nil //nolint:nilnil // no fingerprint is a valid outcome
	}
	return entry.Fingerprint, nil
}
