package model

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// CaptureSegment is one windowed recording of a transponder downlink.
// Immutable once created. The raw samples live in external capture storage;
// SampleRef is an opaque handle for retrieving them on demand.
type CaptureSegment struct {
	Start      time.Time      `json:"start"`
	End        time.Time      `json:"end"`
	ID         string         `json:"id"`
	Key        TransponderKey `json:"key"`
	SampleRef  string         `json:"sample_ref"`
	PassID     string         `json:"pass_id"` // distinct observation pass this segment was recorded in
	SampleRate float64        `json:"sample_rate,omitempty"`
	Quality    float64        `json:"quality"` // normalized signal-quality score in [0,1], from estimated SNR

	// Optional raw measurements carried from the capture source.
	SignalStrengthDBm float64 `json:"signal_strength_dbm,omitempty"`
	CarrierToNoiseDB  float64 `json:"carrier_to_noise_db,omitempty"`
}

// Duration returns the recorded window length.
func (s *CaptureSegment) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Fingerprint returns a stable hash identifying this segment for
// at-most-once evidence accounting. Redelivered segments produce the
// same fingerprint regardless of their assigned ID.
func (s *CaptureSegment) Fingerprint() string {
	data := fmt.Sprintf("%s:%d:%d:%s",
		s.Key.String(),
		s.Start.UnixNano(),
		s.End.UnixNano(),
		s.SampleRef)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
