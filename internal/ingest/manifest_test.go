package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/elaichix/satwatch/internal/model"
	"github.com/elaichix/satwatch/internal/service"
)

const manifestFixture = `{"segment":{"id":"seg-1","key":{"satellite":"EXPRESS-AM6","frequency_mhz":11045,"bandwidth_mhz":36},"start":"2026-03-01T12:00:00Z","end":"2026-03-01T12:00:30Z","sample_ref":"capture://am6/0001","pass_id":"pass-a","quality":0.9},"features":{"symbol_rate_msps":30,"spectral_occupancy":0.85,"constellation_order":8},"probe":{"structure":"STRUCTURED_PLAINTEXT","confidence":0.9}}

{"segment":{"id":"seg-2","key":{"satellite":"EXPRESS-AM6","frequency_mhz":11045,"bandwidth_mhz":36},"start":"2026-03-01T12:01:00Z","end":"2026-03-01T12:01:30Z","sample_ref":"capture://am6/0002","pass_id":"pass-b","quality":0.8}}
`

func TestReadManifest(t *testing.T) {
	manifest, err := ReadManifest(strings.NewReader(manifestFixture))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if manifest.Len() != 2 {
		t.Fatalf("entries: got %d, want 2", manifest.Len())
	}

	ctx := context.Background()

	first, err := manifest.Next(ctx)
	if err != nil {
		t.Fatalf("next failed: %v", err)
	}
	if first.ID != "seg-1" || first.PassID != "pass-a" {
		t.Errorf("first segment wrong: %+v", first)
	}

	features, err := manifest.Features(ctx, first)
	if err != nil {
		t.Fatalf("features failed: %v", err)
	}
	if features == nil || features.SymbolRateMSps != 30 {
		t.Errorf("features wrong: %+v", features)
	}

	probe, err := manifest.Probe(ctx, first)
	if err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if probe == nil || probe.Structure != model.PayloadStructuredPlaintext {
		t.Errorf("probe wrong: %+v", probe)
	}

	second, err := manifest.Next(ctx)
	if err != nil {
		t.Fatalf("next failed: %v", err)
	}
	// The second entry carries no measurements: all capabilities report
	// no result.
	if features, _ := manifest.Features(ctx, second); features != nil {
		t.Errorf("expected no features, got %+v", features)
	}
	if probe, _ := manifest.Probe(ctx, second); probe != nil {
		t.Errorf("expected no probe, got %+v", probe)
	}
	if fingerprint, _ := manifest.Fingerprint(ctx, second); fingerprint != nil {
		t.Errorf("expected no fingerprint, got %+v", fingerprint)
	}

	if _, err := manifest.Next(ctx); !errors.Is(err, service.ErrSourceDrained) {
		t.Errorf("expected ErrSourceDrained, got %v", err)
	}
}

func TestReadManifest_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "invalid json", input: `{"segment":`},
		{name: "missing id", input: `{"segment":{"key":{"satellite":"X","frequency_mhz":1,"bandwidth_mhz":1}}}`},
		{name: "missing key", input: `{"segment":{"id":"seg-1"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadManifest(strings.NewReader(tt.input)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
