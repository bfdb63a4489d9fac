package modulation

import (
	"context"
	"errors"
	"testing"

	"github.com/elaichix/satwatch/internal/model"
)

type stubExtractor struct {
	features *model.SignalFeatures
	err      error
}

func (s *stubExtractor) Features(_ context.Context, _ *model.CaptureSegment) (*model.SignalFeatures, error) {
	return s.features, s.err
}

func testSegment(quality float64) *model.CaptureSegment {
	return &model.CaptureSegment{
		ID:      "seg-1",
		Key:     model.TransponderKey{Satellite: "EXPRESS-AM6", FrequencyMHz: 11045, BandwidthMHz: 36},
		Quality: quality,
	}
}

func TestIdentify_RuleSelection(t *testing.T) {
	tests := []struct {
		name       string
		features   model.SignalFeatures
		wantScheme model.ModulationScheme
		wantRule   string
	}{
		{
			name:       "dvb-s2x dense constellation",
			features:   model.SignalFeatures{SymbolRateMSps: 45, SpectralOccupancy: 0.9, ConstellationOrder: 32},
			wantScheme: model.ModulationDVBS2X,
			wantRule:   "dvb-s2x-highrate",
		},
		{
			name:       "dvb-s2 wideband",
			features:   model.SignalFeatures{SymbolRateMSps: 30, SpectralOccupancy: 0.85, ConstellationOrder: 8},
			wantScheme: model.ModulationDVBS2,
			wantRule:   "dvb-s2-wideband",
		},
		{
			name:       "legacy dvb-s qpsk",
			features:   model.SignalFeatures{SymbolRateMSps: 18, SpectralOccupancy: 0.6, ConstellationOrder: 4},
			wantScheme: model.ModulationDVBS,
			wantRule:   "dvb-s-legacy",
		},
		{
			name:       "narrow scpc carrier",
			features:   model.SignalFeatures{SymbolRateMSps: 2.5, SpectralOccupancy: 0.1, ConstellationOrder: 4},
			wantScheme: model.ModulationSCPC,
			wantRule:   "scpc-narrow",
		},
		{
			name:       "mcpc multiplex",
			features:   model.SignalFeatures{SymbolRateMSps: 12, SpectralOccupancy: 0.8, ConstellationOrder: 4},
			wantScheme: model.ModulationMCPC,
			wantRule:   "mcpc-multiplex",
		},
		{
			name:       "tdma burst",
			features:   model.SignalFeatures{SymbolRateMSps: 12, SpectralOccupancy: 0.45, ConstellationOrder: 4},
			wantScheme: model.ModulationTDMA,
			wantRule:   "tdma-burst",
		},
		{
			name:       "nothing matches",
			features:   model.SignalFeatures{SymbolRateMSps: 90, SpectralOccupancy: 0.2, ConstellationOrder: 2},
			wantScheme: model.ModulationUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := New(&stubExtractor{features: &tt.features})
			if err != nil {
				t.Fatalf("failed to create identifier: %v", err)
			}

			result, err := id.Identify(context.Background(), testSegment(0.9))
			if err != nil {
				t.Fatalf("identify failed: %v", err)
			}
			if result == nil {
				t.Fatal("result is nil")
			}
			if result.Scheme != tt.wantScheme {
				t.Errorf("scheme: got %s, want %s", result.Scheme, tt.wantScheme)
			}
			if tt.wantRule != "" && result.MatchedRule != tt.wantRule {
				t.Errorf("rule: got %s, want %s", result.MatchedRule, tt.wantRule)
			}
			if result.Scheme == model.ModulationUnknown && result.Confidence != 0 {
				t.Errorf("unknown scheme should carry zero confidence, got %f", result.Confidence)
			}
		})
	}
}

func TestIdentify_HigherPriorityWins(t *testing.T) {
	// Features inside both the mcpc and tdma windows: occupancy bounds make
	// them disjoint, so use a feature set matched only by overlapping custom
	// rules to verify ordering.
	rules := []Rule{
		{Name: "low", Scheme: model.ModulationTDMA, Priority: 10, Confidence: 0.9},
		{Name: "high", Scheme: model.ModulationSCPC, Priority: 20, Confidence: 0.9},
	}
	id, err := NewWithRules(&stubExtractor{features: &model.SignalFeatures{SymbolRateMSps: 5}}, rules, DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create identifier: %v", err)
	}

	result, err := id.Identify(context.Background(), testSegment(0.9))
	if err != nil {
		t.Fatalf("identify failed: %v", err)
	}
	if result.MatchedRule != "high" {
		t.Errorf("expected higher priority rule, got %s", result.MatchedRule)
	}
}

func TestIdentify_LowQualityScalesConfidence(t *testing.T) {
	features := &model.SignalFeatures{SymbolRateMSps: 30, SpectralOccupancy: 0.85, ConstellationOrder: 8}
	id, err := New(&stubExtractor{features: features})
	if err != nil {
		t.Fatalf("failed to create identifier: %v", err)
	}

	// Quality 0.4 scales the 0.85 base confidence to 0.68.
	result, err := id.Identify(context.Background(), testSegment(0.4))
	if err != nil {
		t.Fatalf("identify failed: %v", err)
	}
	if result.Scheme != model.ModulationDVBS2 {
		t.Fatalf("scheme: got %s", result.Scheme)
	}
	if result.Confidence >= 0.85 {
		t.Errorf("confidence not scaled down: %f", result.Confidence)
	}

	// Quality 0.2 scales it to 0.34, below the floor: UNKNOWN.
	result, err = id.Identify(context.Background(), testSegment(0.2))
	if err != nil {
		t.Fatalf("identify failed: %v", err)
	}
	if result.Scheme != model.ModulationUnknown {
		t.Errorf("marginal capture should be UNKNOWN, got %s", result.Scheme)
	}
}

func TestIdentify_NoResultFromExtractor(t *testing.T) {
	id, err := New(&stubExtractor{features: nil})
	if err != nil {
		t.Fatalf("failed to create identifier: %v", err)
	}

	result, err := id.Identify(context.Background(), testSegment(0.9))
	if err != nil {
		t.Fatalf("identify failed: %v", err)
	}
	if result != nil {
		t.Errorf("expected nil result, got %+v", result)
	}
}

func TestIdentify_ExtractorError(t *testing.T) {
	wantErr := errors.New("receiver offline")
	id, err := New(&stubExtractor{err: wantErr})
	if err != nil {
		t.Fatalf("failed to create identifier: %v", err)
	}

	_, err = id.Identify(context.Background(), testSegment(0.9))
	if !errors.Is(err, wantErr) {
		t.Errorf("expected wrapped extractor error, got %v", err)
	}
}

func TestUpdateRules(t *testing.T) {
	id, err := New(&stubExtractor{features: &model.SignalFeatures{SymbolRateMSps: 5}})
	if err != nil {
		t.Fatalf("failed to create identifier: %v", err)
	}
	if id.RuleCount() != len(DefaultRules()) {
		t.Fatalf("rule count: got %d, want %d", id.RuleCount(), len(DefaultRules()))
	}

	if err := id.UpdateRules([]Rule{{Name: "only", Scheme: model.ModulationSCPC, Confidence: 0.9}}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if id.RuleCount() != 1 {
		t.Errorf("rule count after update: got %d, want 1", id.RuleCount())
	}

	if err := id.UpdateRules([]Rule{{Name: ""}}); err == nil {
		t.Error("expected error for unnamed rule")
	}
}
