package model

import (
	"testing"
	"time"
)

func TestSegmentFingerprint(t *testing.T) {
	key := TransponderKey{Satellite: "EXPRESS-AM6", FrequencyMHz: 11045, BandwidthMHz: 36}
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	base := &CaptureSegment{
		ID:        "seg-1",
		Key:       key,
		Start:     start,
		End:       start.Add(30 * time.Second),
		SampleRef: "capture://am6/0001",
	}

	// A redelivered segment with a different assigned ID is the same
	// observation.
	redelivered := *base
	redelivered.ID = "seg-1-redelivery"
	if base.Fingerprint() != redelivered.Fingerprint() {
		t.Error("redelivered segment should share the fingerprint")
	}

	tests := []struct {
		name   string
		mutate func(*CaptureSegment)
	}{
		{"different window", func(s *CaptureSegment) { s.Start = s.Start.Add(time.Second) }},
		{"different sample ref", func(s *CaptureSegment) { s.SampleRef = "capture://am6/0002" }},
		{"different transponder", func(s *CaptureSegment) { s.Key.FrequencyMHz = 11085 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := *base
			tt.mutate(&other)
			if base.Fingerprint() == other.Fingerprint() {
				t.Error("fingerprints should differ")
			}
		})
	}
}

func TestTransponderKeyString(t *testing.T) {
	key := TransponderKey{Satellite: "YAMAL-402", FrequencyMHz: 10985.25, BandwidthMHz: 54}
	want := "YAMAL-402:10985.250:54.000"
	if got := key.String(); got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}
