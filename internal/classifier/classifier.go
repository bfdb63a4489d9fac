// Package classifier implements the per-transponder encryption-status state
// machine. It composes the modulation identifier's output with the payload
// probe's structural findings and converges each transponder to one of a
// fixed set of verdicts.
package classifier

import (
	"time"

	"github.com/elaichix/satwatch/internal/model"
)

// Config holds classifier thresholds.
type Config struct {
	// DecisionThreshold is the minimum per-segment evidence confidence;
	// weaker evidence counts as inconclusive.
	DecisionThreshold float64
	// ConflictRatio marks evidence as conflicting: when the losing
	// SECURE weight reaches this fraction of a leading UNENCRYPTED
	// weight, the verdict is held at FURTHER_ANALYSIS instead.
	ConflictRatio float64
	// MinEvidence is the evidence count required before UNENCRYPTED is
	// eligible to open a disclosure case.
	MinEvidence int
	// MinPasses is the number of distinct observation passes required
	// for disclosure eligibility.
	MinPasses int
}

// DefaultConfig returns the default classifier configuration.
func DefaultConfig() Config {
	return Config{
		DecisionThreshold: 0.5,
		ConflictRatio:     0.5,
		MinEvidence:       3,
		MinPasses:         2,
	}
}

// Classifier folds per-segment evidence into classification records. It is
// pure: Apply never mutates its input and carries no state of its own, so
// one instance serves all workers.
type Classifier struct {
	config Config
}

// New creates a classifier with the given configuration.
func New(config Config) *Classifier {
	if config.DecisionThreshold <= 0 {
		config.DecisionThreshold = DefaultConfig().DecisionThreshold
	}
	if config.ConflictRatio <= 0 {
		config.ConflictRatio = DefaultConfig().ConflictRatio
	}
	if config.MinEvidence <= 0 {
		config.MinEvidence = DefaultConfig().MinEvidence
	}
	if config.MinPasses <= 0 {
		config.MinPasses = DefaultConfig().MinPasses
	}
	return &Classifier{config: config}
}

// Config returns the active configuration.
func (c *Classifier) Config() Config {
	return c.config
}

// evidenceVerdict maps one segment's modulation result and payload probe to
// the verdict that segment argues for, with the weight of that argument.
func (c *Classifier) evidenceVerdict(mod *model.ModulationResult, probe *model.PayloadProbeResult) (model.Verdict, float64) {
	// A recognized encryption handshake is decisive regardless of how the
	// carrier was modulated.
	if probe != nil && probe.Structure == model.PayloadEncryptionHandshake {
		weight := probe.Confidence
		if weight >= c.config.DecisionThreshold {
			return model.VerdictSecure, weight
		}
		return model.VerdictFurtherAnalysis, weight
	}

	// Unknown modulation is evidence in itself, but never enough to pick
	// a terminal verdict on its own.
	if mod == nil || mod.Scheme == model.ModulationUnknown {
		return model.VerdictFurtherAnalysis, 0.1
	}

	if probe == nil || probe.Structure == model.PayloadNoResult {
		return model.VerdictFurtherAnalysis, mod.Confidence * 0.25
	}

	// Recognized standard modulation: the payload structure decides.
	weight := mod.Confidence * probe.Confidence
	if weight < c.config.DecisionThreshold {
		return model.VerdictFurtherAnalysis, weight
	}

	switch probe.Structure {
	case model.PayloadStructuredPlaintext:
		return model.VerdictUnencrypted, weight
	case model.PayloadHighEntropy:
		return model.VerdictObfuscated, weight
	default:
		return model.VerdictFurtherAnalysis, weight
	}
}

// Apply folds one segment's evidence into a copy of the record and returns
// it with the transition that occurred, if any. The caller persists both.
// Evidence count increments on every processed segment regardless of whether
// the verdict changes; once any evidence exists the record never returns to
// UNKNOWN.
func (c *Classifier) Apply(record model.ClassificationRecord, segment *model.CaptureSegment, mod *model.ModulationResult, probe *model.PayloadProbeResult, at time.Time) (model.ClassificationRecord, *model.VerdictTransition) {
	verdict, weight := c.evidenceVerdict(mod, probe)

	switch verdict {
	case model.VerdictSecure:
		record.SecureWeight += weight
	case model.VerdictUnencrypted:
		record.UnencryptedWeight += weight
	case model.VerdictObfuscated:
		record.ObfuscatedWeight += weight
	default:
		record.InconclusiveWeight += weight
	}

	record.EvidenceCount++
	record.LastUpdated = at
	if record.FirstSeen.IsZero() {
		record.FirstSeen = at
	}
	if probe != nil && probe.ContainsPII {
		record.ContainsPII = true
	}

	next, confidence := c.aggregate(&record)

	// Confidence on an unchanged verdict never decreases with more
	// consistent evidence.
	if next == record.Verdict && confidence < record.Confidence {
		confidence = record.Confidence
	}

	prior := record.Verdict
	record.Confidence = confidence
	if record.Depth == "" {
		record.Depth = model.DepthBroadbandScan
	}

	if next != prior {
		record.Verdict = next
		// A transponder converging on a terminal verdict graduates from
		// the broadband survey to focused analysis. Depth never
		// regresses.
		switch next {
		case model.VerdictSecure, model.VerdictUnencrypted, model.VerdictObfuscated:
			record.Depth = model.DepthDeepDive
		}
		return record, &model.VerdictTransition{
			Key:           record.Key,
			From:          prior,
			To:            next,
			Traffic:       record.Traffic,
			SegmentID:     segment.ID,
			Confidence:    confidence,
			EvidenceCount: record.EvidenceCount,
			OccurredAt:    at,
		}
	}

	return record, nil
}

// aggregate picks the verdict with the highest cumulative evidence-weighted
// confidence. Exact ties favor the more conservative label in the order
// SECURE > FURTHER_ANALYSIS > OBFUSCATED > UNENCRYPTED, and an UNENCRYPTED
// lead contested by comparable SECURE evidence is held at FURTHER_ANALYSIS.
func (c *Classifier) aggregate(record *model.ClassificationRecord) (model.Verdict, float64) {
	weights := []struct {
		verdict model.Verdict
		weight  float64
	}{
		{model.VerdictSecure, record.SecureWeight},
		{model.VerdictUnencrypted, record.UnencryptedWeight},
		{model.VerdictObfuscated, record.ObfuscatedWeight},
		{model.VerdictFurtherAnalysis, record.InconclusiveWeight},
	}

	winner := model.VerdictFurtherAnalysis
	var winning, total float64
	for _, w := range weights {
		total += w.weight
		if w.weight == 0 {
			continue
		}
		if w.weight > winning || (w.weight == winning && w.verdict.MoreConservative(winner)) {
			winner = w.verdict
			winning = w.weight
		}
	}

	if total == 0 {
		// No evidence yet; callers only reach here after folding at
		// least one segment, but stay defined regardless.
		return model.VerdictFurtherAnalysis, 0
	}

	// Conflicting SECURE-like and UNENCRYPTED-like evidence for the same
	// transponder is a reason for further analysis, not a plaintext call.
	if winner == model.VerdictUnencrypted &&
		record.SecureWeight >= c.config.ConflictRatio*record.UnencryptedWeight &&
		record.SecureWeight > 0 {
		winner = model.VerdictFurtherAnalysis
		winning = record.InconclusiveWeight + record.SecureWeight
	}

	// Laplace-style damping: a single segment can never saturate
	// confidence, and consistent evidence raises it monotonically.
	confidence := winning / (total + 1)
	if confidence > 1 {
		confidence = 1
	}
	return winner, confidence
}

// DisclosureEligible reports whether the record qualifies to open a
// disclosure case under the configured minimums.
func (c *Classifier) DisclosureEligible(record *model.ClassificationRecord) bool {
	return record.DisclosureEligible(c.config.MinEvidence, c.config.MinPasses)
}
