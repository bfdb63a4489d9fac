// Package modulation implements the modulation identifier: a deterministic,
// documented rule set mapping measurable signal features to a scheme label
// with explicit confidence scoring.
package modulation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/elaichix/satwatch/internal/common"
	"github.com/elaichix/satwatch/internal/model"
	"github.com/elaichix/satwatch/internal/service"
)

// FeatureWindow is the predicate of one rule: a segment's features must fall
// inside every bound that is set. Zero-valued bounds are open.
type FeatureWindow struct {
	MinSymbolRateMSps     float64
	MaxSymbolRateMSps     float64
	MinOccupancy          float64
	MaxOccupancy          float64
	MinConstellationOrder int
	MaxConstellationOrder int
}

// Contains reports whether the features fall inside the window.
func (w FeatureWindow) Contains(f model.SignalFeatures) bool {
	if w.MinSymbolRateMSps > 0 && f.SymbolRateMSps < w.MinSymbolRateMSps {
		return false
	}
	if w.MaxSymbolRateMSps > 0 && f.SymbolRateMSps > w.MaxSymbolRateMSps {
		return false
	}
	if w.MinOccupancy > 0 && f.SpectralOccupancy < w.MinOccupancy {
		return false
	}
	if w.MaxOccupancy > 0 && f.SpectralOccupancy > w.MaxOccupancy {
		return false
	}
	if w.MinConstellationOrder > 0 && f.ConstellationOrder < w.MinConstellationOrder {
		return false
	}
	if w.MaxConstellationOrder > 0 && f.ConstellationOrder > w.MaxConstellationOrder {
		return false
	}
	return true
}

// Rule maps a feature window to a modulation scheme. Higher priority rules
// are checked first.
type Rule struct {
	Name       string
	Scheme     model.ModulationScheme
	Match      FeatureWindow
	Priority   int
	Confidence float64
}

// Config holds identifier configuration.
type Config struct {
	// MinConfidence is the floor below which a matched rule is discarded
	// and the segment labeled UNKNOWN.
	MinConfidence float64
}

// DefaultConfig returns the default identifier configuration.
func DefaultConfig() Config {
	return Config{MinConfidence: 0.5}
}

// Identifier classifies capture segments by modulation scheme. It is pure
// and stateless with respect to segments, so it is safe to call from
// concurrent workers.
type Identifier struct {
	extractor service.FeatureExtractor
	rules     []Rule
	config    Config
	mu        sync.RWMutex
}

// New creates an identifier with the default rule set.
func New(extractor service.FeatureExtractor) (*Identifier, error) {
	return NewWithRules(extractor, DefaultRules(), DefaultConfig())
}

// NewWithRules creates an identifier with a custom rule set.
func NewWithRules(extractor service.FeatureExtractor, rules []Rule, config Config) (*Identifier, error) {
	if extractor == nil {
		return nil, fmt.Errorf("feature extractor is required")
	}
	for _, r := range rules {
		if r.Name == "" {
			return nil, fmt.Errorf("%w: rule with empty name", common.ErrInvalidConfig)
		}
		if r.Confidence < 0 || r.Confidence > 1 {
			return nil, fmt.Errorf("%w: rule %s: confidence must be between 0 and 1", common.ErrInvalidConfig, r.Name)
		}
	}

	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	return &Identifier{
		extractor: extractor,
		rules:     sorted,
		config:    config,
	}, nil
}

// unknownResult labels a segment UNKNOWN with zero confidence. UNKNOWN still
// flows downstream: persistent UNKNOWN across many segments is evidence of
// non-standard or obfuscated encoding.
func unknownResult(segment *model.CaptureSegment, features model.SignalFeatures) *model.ModulationResult {
	return &model.ModulationResult{
		SegmentID:  segment.ID,
		Key:        segment.Key,
		Scheme:     model.ModulationUnknown,
		Features:   features,
		Confidence: 0,
	}
}

// Identify produces the immutable modulation result for one segment.
// A nil result means the external extractor produced nothing and the
// segment should be treated as rejected; identification itself never fails.
func (id *Identifier) Identify(ctx context.Context, segment *model.CaptureSegment) (*model.ModulationResult, error) {
	features, err := id.extractor.Features(ctx, segment)
	if err != nil {
		return nil, fmt.Errorf("feature extraction for segment %s: %w", segment.ID, err)
	}
	if features == nil {
		slog.Debug("Feature extractor returned no result",
			"segment_id", segment.ID,
			"transponder", segment.Key.String())
		return nil, nil //nolint:nilnil // no result is a valid outcome
	}

	id.mu.RLock()
	defer id.mu.RUnlock()

	for _, rule := range id.rules {
		if !rule.Match.Contains(*features) {
			continue
		}

		confidence := rule.Confidence

		// Scale down when the segment itself was noisy; a perfect rule
		// match on a marginal capture is weaker evidence.
		if segment.Quality < 0.5 {
			confidence *= segment.Quality * 2
		}

		if confidence < id.config.MinConfidence {
			slog.Debug("Rule matched below confidence floor",
				"rule", rule.Name,
				"confidence", confidence,
				"segment_id", segment.ID)
			return unknownResult(segment, *features), nil
		}

		return &model.ModulationResult{
			SegmentID:   segment.ID,
			Key:         segment.Key,
			Scheme:      rule.Scheme,
			MatchedRule: rule.Name,
			Features:    *features,
			Confidence:  confidence,
		}, nil
	}

	return unknownResult(segment, *features), nil
}

// UpdateRules replaces the rule set.
func (id *Identifier) UpdateRules(rules []Rule) error {
	for _, r := range rules {
		if r.Name == "" {
			return fmt.Errorf("%w: rule with empty name", common.ErrInvalidConfig)
		}
	}

	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	id.mu.Lock()
	id.rules = sorted
	id.mu.Unlock()

	return nil
}

// RuleCount returns the number of loaded rules.
func (id *Identifier) RuleCount() int {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return len(id.rules)
}
