package traffic

import (
	"context"
	"testing"

	"github.com/elaichix/satwatch/internal/model"
	"github.com/elaichix/satwatch/internal/testutil"
)

func unencryptedRecord() *model.ClassificationRecord {
	return &model.ClassificationRecord{
		Key:     testutil.TestKey("EXPRESS-AM6", 11045),
		Verdict: model.VerdictUnencrypted,
		Traffic: model.TrafficUnknown,
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name          string
		fingerprinter *testutil.StubFingerprinter
		record        *model.ClassificationRecord
		want          model.TrafficCategory
		wantErr       bool
	}{
		{
			name:          "confident fingerprint assigns category",
			fingerprinter: &testutil.StubFingerprinter{Category: model.TrafficTelecomBackhaul, Confidence: 0.8},
			record:        unencryptedRecord(),
			want:          model.TrafficTelecomBackhaul,
		},
		{
			name:          "low confidence keeps current category",
			fingerprinter: &testutil.StubFingerprinter{Category: model.TrafficGovernment, Confidence: 0.3},
			record:        unencryptedRecord(),
			want:          model.TrafficUnknown,
		},
		{
			name:          "no fingerprint keeps current category",
			fingerprinter: &testutil.StubFingerprinter{},
			record:        unencryptedRecord(),
			want:          model.TrafficUnknown,
		},
		{
			name:          "secure record is an error",
			fingerprinter: &testutil.StubFingerprinter{Category: model.TrafficTelecomBackhaul, Confidence: 0.9},
			record: &model.ClassificationRecord{
				Key:     testutil.TestKey("EXPRESS-AM6", 11045),
				Verdict: model.VerdictSecure,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			categorizer, err := New(tt.fingerprinter, DefaultConfig())
			if err != nil {
				t.Fatalf("failed to create categorizer: %v", err)
			}

			segment := testutil.TestSegment(tt.record.Key, 1)
			got, err := categorizer.Categorize(context.Background(), tt.record, segment)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("categorize failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("category: got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCategorize_RevisesEarlierCategory(t *testing.T) {
	categorizer, err := New(&testutil.StubFingerprinter{Category: model.TrafficIoTSCADA, Confidence: 0.9}, DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create categorizer: %v", err)
	}

	record := unencryptedRecord()
	record.Traffic = model.TrafficTelecomBackhaul

	got, err := categorizer.Categorize(context.Background(), record, testutil.TestSegment(record.Key, 1))
	if err != nil {
		t.Fatalf("categorize failed: %v", err)
	}
	if got != model.TrafficIoTSCADA {
		t.Errorf("category not revised: got %s", got)
	}
}
