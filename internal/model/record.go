package model

import "time"

// Verdict is the encryption-status classification of a transponder.
type Verdict string

// Verdict constants. Once any evidence exists a record never returns to
// VerdictUnknown.
const (
	VerdictUnknown         Verdict = "UNKNOWN"
	VerdictSecure          Verdict = "SECURE"
	VerdictUnencrypted     Verdict = "UNENCRYPTED"
	VerdictObfuscated      Verdict = "OBFUSCATED"
	VerdictFurtherAnalysis Verdict = "FURTHER_ANALYSIS"
)

// conservativeRank orders verdicts for tie-breaking. Higher rank wins a
// confidence tie, biasing the pipeline away from falsely asserting
// UNENCRYPTED, since that assertion drives disclosure action.
var conservativeRank = map[Verdict]int{
	VerdictSecure:          4,
	VerdictFurtherAnalysis: 3,
	VerdictObfuscated:      2,
	VerdictUnencrypted:     1,
	VerdictUnknown:         0,
}

// MoreConservative reports whether v wins a confidence tie against other.
func (v Verdict) MoreConservative(other Verdict) bool {
	return conservativeRank[v] > conservativeRank[other]
}

// Valid reports whether v is a known verdict value.
func (v Verdict) Valid() bool {
	_, ok := conservativeRank[v]
	return ok
}

// TrafficCategory labels the traffic type of a non-secure transponder,
// derived from structural markers only.
type TrafficCategory string

// Traffic category constants.
const (
	TrafficTelecomBackhaul TrafficCategory = "TELECOM_BACKHAUL"
	TrafficEnterpriseVSAT  TrafficCategory = "ENTERPRISE_VSAT"
	TrafficGovernment      TrafficCategory = "GOVERNMENT"
	TrafficIoTSCADA        TrafficCategory = "IOT_SCADA"
	TrafficUnknown         TrafficCategory = "UNKNOWN"
)

// AnalysisDepth records which audit phase a transponder is in. It is a
// per-record property so different transponders can be in different phases
// concurrently.
type AnalysisDepth string

// Analysis depth constants.
const (
	DepthBroadbandScan AnalysisDepth = "BROADBAND_SCAN"
	DepthDeepDive      AnalysisDepth = "DEEP_DIVE"
)

// ClassificationRecord is the durable, current-state verdict for a
// transponder. Exactly one live record per transponder key; superseded
// verdicts are retained as VerdictTransition history entries.
type ClassificationRecord struct {
	FirstSeen     time.Time       `json:"first_seen"`
	LastUpdated   time.Time       `json:"last_updated"`
	Key           TransponderKey  `json:"key"`
	Verdict       Verdict         `json:"verdict"`
	Depth         AnalysisDepth   `json:"analysis_depth"`
	Traffic       TrafficCategory `json:"traffic_category"` // empty until categorized
	Confidence    float64         `json:"confidence"`
	EvidenceCount int             `json:"evidence_count"`

	// Aggregate evidence-weighted confidence per candidate verdict.
	// Cumulative, no decay.
	SecureWeight       float64 `json:"secure_weight"`
	UnencryptedWeight  float64 `json:"unencrypted_weight"`
	ObfuscatedWeight   float64 `json:"obfuscated_weight"`
	InconclusiveWeight float64 `json:"inconclusive_weight"`

	// Distinct observation passes that contributed evidence; the
	// disclosure gate requires at least two.
	PassCount int `json:"pass_count"`

	// ContainsPII is set by the payload probe when personally identifiable
	// information is exposed. Only the flag is recorded, never content.
	ContainsPII bool `json:"contains_pii"`
}

// DisclosureEligible reports whether the record qualifies to open a
// disclosure case under the configured evidence minimums.
func (r *ClassificationRecord) DisclosureEligible(minEvidence, minPasses int) bool {
	return r.Verdict == VerdictUnencrypted &&
		r.EvidenceCount >= minEvidence &&
		r.PassCount >= minPasses
}

// VerdictTransition is an append-only history entry recording a change to a
// classification record. Past entries are never mutated.
type VerdictTransition struct {
	OccurredAt    time.Time       `json:"occurred_at"`
	Key           TransponderKey  `json:"key"`
	From          Verdict         `json:"from"`
	To            Verdict         `json:"to"`
	Traffic       TrafficCategory `json:"traffic_category,omitempty"`
	SegmentID     string          `json:"segment_id"` // segment whose evidence triggered the transition
	Confidence    float64         `json:"confidence"`
	EvidenceCount int             `json:"evidence_count"`
}
