package model

// PayloadStructure labels what a payload-structure probe saw in a segment.
type PayloadStructure string

// Payload structure constants.
const (
	// PayloadEncryptionHandshake means a recognizable encryption
	// handshake or header (TLS/DTLS/IPsec or a known proprietary frame)
	// was detected.
	PayloadEncryptionHandshake PayloadStructure = "ENCRYPTION_HANDSHAKE"
	// PayloadStructuredPlaintext means readable, structured plaintext
	// markers were found in the payload.
	PayloadStructuredPlaintext PayloadStructure = "STRUCTURED_PLAINTEXT"
	// PayloadHighEntropy means payload entropy is high with no encryption
	// markers and no recognizable structure.
	PayloadHighEntropy PayloadStructure = "HIGH_ENTROPY"
	// PayloadNoResult means the probe could not produce a result; the
	// segment contributes inconclusive evidence.
	PayloadNoResult PayloadStructure = "NO_RESULT"
)

// PayloadProbeResult is the typed, confidence-scored output of the external
// payload-structure probe. The probe inspects structural markers only and
// never returns decoded content.
type PayloadProbeResult struct {
	SegmentID   string           `json:"segment_id,omitempty"`
	Structure   PayloadStructure `json:"structure"`
	Confidence  float64          `json:"confidence"`
	ContainsPII bool             `json:"contains_pii,omitempty"`
}

// TrafficFingerprint is the typed output of the external traffic
// fingerprint capability, derived from protocol headers and timing
// patterns only.
type TrafficFingerprint struct {
	SegmentID  string          `json:"segment_id,omitempty"`
	Category   TrafficCategory `json:"category"`
	Confidence float64         `json:"confidence"`
}
