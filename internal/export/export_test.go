package export

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/elaichix/satwatch/internal/model"
	"github.com/elaichix/satwatch/internal/testutil"
)

func seedRecord(t *testing.T, db *testutil.TestDB, key model.TransponderKey, verdict model.Verdict, pii bool) {
	t.Helper()
	ctx := context.Background()
	if err := db.Storage.TouchTransponder(ctx, key, time.Now().UTC()); err != nil {
		t.Fatalf("touch failed: %v", err)
	}
	record := &model.ClassificationRecord{
		Key:           key,
		Verdict:       verdict,
		Confidence:    0.7,
		Traffic:       model.TrafficUnknown,
		Depth:         model.DepthBroadbandScan,
		EvidenceCount: 3,
		PassCount:     2,
		ContainsPII:   pii,
		FirstSeen:     time.Now().UTC(),
		LastUpdated:   time.Now().UTC(),
	}
	if err := db.Storage.SaveRecord(ctx, record); err != nil {
		t.Fatalf("save failed: %v", err)
	}
}

func TestStatistics_PerSatelliteRollup(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	seedRecord(t, db, testutil.TestKey("SAT-A", 11000), model.VerdictSecure, false)
	seedRecord(t, db, testutil.TestKey("SAT-A", 11100), model.VerdictSecure, false)
	seedRecord(t, db, testutil.TestKey("SAT-A", 11200), model.VerdictUnencrypted, true)
	seedRecord(t, db, testutil.TestKey("SAT-A", 11300), model.VerdictObfuscated, false)
	seedRecord(t, db, testutil.TestKey("SAT-B", 12000), model.VerdictFurtherAnalysis, false)

	unencKey := testutil.TestKey("SAT-A", 11200)
	if err := db.Storage.OpenCase(ctx, &model.DisclosureCase{
		ID: "case-1", Key: unencKey, Status: model.CasePending, CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("open case failed: %v", err)
	}

	exporter, err := New(db.Storage)
	if err != nil {
		t.Fatalf("failed to create exporter: %v", err)
	}

	report, err := exporter.Statistics(ctx)
	if err != nil {
		t.Fatalf("statistics failed: %v", err)
	}
	if len(report.Satellites) != 2 {
		t.Fatalf("satellites: got %d, want 2", len(report.Satellites))
	}

	var satA *SatelliteStats
	for i := range report.Satellites {
		if report.Satellites[i].Satellite == "SAT-A" {
			satA = &report.Satellites[i]
		}
	}
	if satA == nil {
		t.Fatal("SAT-A missing from report")
	}
	if satA.Transponders != 4 {
		t.Errorf("transponders: got %d, want 4", satA.Transponders)
	}
	if satA.Secure != 2 || satA.Unencrypted != 1 || satA.Obfuscated != 1 {
		t.Errorf("verdict counts wrong: %+v", satA)
	}
	if satA.EncryptionRate != 0.5 {
		t.Errorf("encryption rate: got %f, want 0.5", satA.EncryptionRate)
	}
	if satA.PlaintextRate != 0.25 {
		t.Errorf("plaintext rate: got %f, want 0.25", satA.PlaintextRate)
	}
	if satA.PIIExposureCount != 1 {
		t.Errorf("pii exposure: got %d, want 1", satA.PIIExposureCount)
	}
	if satA.OpenCases != 1 || satA.ClosedCases != 0 {
		t.Errorf("case counts wrong: open=%d closed=%d", satA.OpenCases, satA.ClosedCases)
	}
}

func TestSnapshot_IncludesHistoryAndCases(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	key := testutil.TestKey("SAT-A", 11000)

	seedRecord(t, db, key, model.VerdictUnencrypted, false)
	if err := db.Storage.AppendTransition(ctx, &model.VerdictTransition{
		Key:        key,
		From:       model.VerdictUnknown,
		To:         model.VerdictUnencrypted,
		SegmentID:  "seg-1",
		Confidence: 0.5,
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := db.Storage.OpenCase(ctx, &model.DisclosureCase{
		ID: "case-1", Key: key, Status: model.CasePending, CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("open case failed: %v", err)
	}

	exporter, err := New(db.Storage)
	if err != nil {
		t.Fatalf("failed to create exporter: %v", err)
	}

	var buf bytes.Buffer
	if err := exporter.WriteSnapshot(ctx, &buf); err != nil {
		t.Fatalf("write snapshot failed: %v", err)
	}

	var snapshot AuditSnapshot
	if err := json.Unmarshal(buf.Bytes(), &snapshot); err != nil {
		t.Fatalf("snapshot is not valid JSON: %v", err)
	}
	if len(snapshot.Records) != 1 {
		t.Fatalf("records: got %d, want 1", len(snapshot.Records))
	}
	if len(snapshot.Records[0].History) != 1 {
		t.Errorf("history: got %d entries, want 1", len(snapshot.Records[0].History))
	}
	if snapshot.Records[0].History[0].SegmentID != "seg-1" {
		t.Errorf("history segment: got %s", snapshot.Records[0].History[0].SegmentID)
	}
	if len(snapshot.Cases) != 1 {
		t.Errorf("cases: got %d, want 1", len(snapshot.Cases))
	}
	if snapshot.GeneratedAt.IsZero() {
		t.Error("generated_at not set")
	}
}
