package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/elaichix/satwatch/internal/common"
	"github.com/elaichix/satwatch/internal/model"
	"github.com/elaichix/satwatch/internal/service"
)

func setupTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testKey() model.TransponderKey {
	return model.TransponderKey{Satellite: "EXPRESS-AM6", FrequencyMHz: 11045.0, BandwidthMHz: 36.0}
}

func TestTouchTransponder(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()
	key := testKey()

	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if err := store.TouchTransponder(ctx, key, first); err != nil {
		t.Fatalf("first touch failed: %v", err)
	}

	got, err := store.GetTransponder(ctx, key)
	if err != nil {
		t.Fatalf("get after touch failed: %v", err)
	}
	if !got.FirstObserved.Equal(first) || !got.LastObserved.Equal(first) {
		t.Errorf("expected both timestamps %v, got first=%v last=%v", first, got.FirstObserved, got.LastObserved)
	}

	later := first.Add(2 * time.Hour)
	if err := store.TouchTransponder(ctx, key, later); err != nil {
		t.Fatalf("second touch failed: %v", err)
	}

	got, err = store.GetTransponder(ctx, key)
	if err != nil {
		t.Fatalf("get after second touch failed: %v", err)
	}
	if !got.FirstObserved.Equal(first) {
		t.Errorf("first observed moved: got %v, want %v", got.FirstObserved, first)
	}
	if !got.LastObserved.Equal(later) {
		t.Errorf("last observed not updated: got %v, want %v", got.LastObserved, later)
	}

	// An earlier observation must not roll last_observed back.
	earlier := first.Add(-time.Hour)
	if err := store.TouchTransponder(ctx, key, earlier); err != nil {
		t.Fatalf("out-of-order touch failed: %v", err)
	}
	got, err = store.GetTransponder(ctx, key)
	if err != nil {
		t.Fatalf("get after out-of-order touch failed: %v", err)
	}
	if !got.LastObserved.Equal(later) {
		t.Errorf("last observed regressed: got %v, want %v", got.LastObserved, later)
	}
}

func TestGetTransponder_NotFound(t *testing.T) {
	store := setupTestStorage(t)

	_, err := store.GetTransponder(context.Background(), testKey())
	if !errors.Is(err, common.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveAndGetRecord(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()
	key := testKey()

	if err := store.TouchTransponder(ctx, key, time.Now().UTC()); err != nil {
		t.Fatalf("touch failed: %v", err)
	}

	record := &model.ClassificationRecord{
		Key:           key,
		Verdict:       model.VerdictSecure,
		Confidence:    0.72,
		Traffic:       model.TrafficUnknown,
		Depth:         model.DepthDeepDive,
		EvidenceCount: 4,
		PassCount:     2,
		SecureWeight:  2.8,
		FirstSeen:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		LastUpdated:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := store.SaveRecord(ctx, record); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := store.GetRecord(ctx, key)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Verdict != model.VerdictSecure {
		t.Errorf("verdict: got %s, want %s", got.Verdict, model.VerdictSecure)
	}
	if got.Confidence != 0.72 {
		t.Errorf("confidence: got %f, want 0.72", got.Confidence)
	}
	if got.Depth != model.DepthDeepDive {
		t.Errorf("depth: got %s, want %s", got.Depth, model.DepthDeepDive)
	}
	if got.SecureWeight != 2.8 {
		t.Errorf("secure weight: got %f, want 2.8", got.SecureWeight)
	}

	// Upsert replaces the row.
	record.Verdict = model.VerdictFurtherAnalysis
	record.EvidenceCount = 5
	if err := store.SaveRecord(ctx, record); err != nil {
		t.Fatalf("second save failed: %v", err)
	}
	got, err = store.GetRecord(ctx, key)
	if err != nil {
		t.Fatalf("get after upsert failed: %v", err)
	}
	if got.Verdict != model.VerdictFurtherAnalysis || got.EvidenceCount != 5 {
		t.Errorf("upsert not applied: got %s/%d", got.Verdict, got.EvidenceCount)
	}
}

func TestConsumeSegment_Idempotent(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()
	key := testKey()

	if err := store.TouchTransponder(ctx, key, time.Now().UTC()); err != nil {
		t.Fatalf("touch failed: %v", err)
	}

	fresh, err := store.ConsumeSegment(ctx, key, "fp-001", "pass-01")
	if err != nil {
		t.Fatalf("first consume failed: %v", err)
	}
	if !fresh {
		t.Error("first consume should be fresh")
	}

	// Redelivery of the same fingerprint is absorbed.
	fresh, err = store.ConsumeSegment(ctx, key, "fp-001", "pass-01")
	if err != nil {
		t.Fatalf("second consume failed: %v", err)
	}
	if fresh {
		t.Error("second consume of same fingerprint should not be fresh")
	}

	fresh, err = store.ConsumeSegment(ctx, key, "fp-002", "pass-02")
	if err != nil {
		t.Fatalf("third consume failed: %v", err)
	}
	if !fresh {
		t.Error("distinct fingerprint should be fresh")
	}
}

func TestCountDistinctPasses(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()
	key := testKey()

	if err := store.TouchTransponder(ctx, key, time.Now().UTC()); err != nil {
		t.Fatalf("touch failed: %v", err)
	}

	consumed := []struct {
		fingerprint string
		passID      string
	}{
		{"fp-1", "pass-a"},
		{"fp-2", "pass-a"},
		{"fp-3", "pass-b"},
		{"fp-4", ""},
	}
	for _, c := range consumed {
		if _, err := store.ConsumeSegment(ctx, key, c.fingerprint, c.passID); err != nil {
			t.Fatalf("consume %s failed: %v", c.fingerprint, err)
		}
	}

	count, err := store.CountDistinctPasses(ctx, key)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("distinct passes: got %d, want 2", count)
	}
}

func TestHistory_AppendOnlyOrder(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()
	key := testKey()

	if err := store.TouchTransponder(ctx, key, time.Now().UTC()); err != nil {
		t.Fatalf("touch failed: %v", err)
	}

	transitions := []model.VerdictTransition{
		{Key: key, From: model.VerdictUnknown, To: model.VerdictFurtherAnalysis, SegmentID: "seg-1", Confidence: 0.2, EvidenceCount: 1, OccurredAt: time.Now().UTC()},
		{Key: key, From: model.VerdictFurtherAnalysis, To: model.VerdictUnencrypted, Traffic: model.TrafficUnknown, SegmentID: "seg-2", Confidence: 0.5, EvidenceCount: 2, OccurredAt: time.Now().UTC()},
		{Key: key, From: model.VerdictUnencrypted, To: model.VerdictUnencrypted, Traffic: model.TrafficTelecomBackhaul, SegmentID: "seg-3", Confidence: 0.6, EvidenceCount: 3, OccurredAt: time.Now().UTC()},
	}
	for i := range transitions {
		if err := store.AppendTransition(ctx, &transitions[i]); err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
	}

	history, err := store.History(ctx, key)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("history length: got %d, want 3", len(history))
	}
	for i, want := range []string{"seg-1", "seg-2", "seg-3"} {
		if history[i].SegmentID != want {
			t.Errorf("history[%d].SegmentID: got %s, want %s", i, history[i].SegmentID, want)
		}
	}
	if history[2].Traffic != model.TrafficTelecomBackhaul {
		t.Errorf("traffic category not recorded: got %s", history[2].Traffic)
	}
}

func TestRejectCounts(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()
	key := testKey()

	if err := store.TouchTransponder(ctx, key, time.Now().UTC()); err != nil {
		t.Fatalf("touch failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := store.IncrementRejectCount(ctx, key, "LOW_QUALITY"); err != nil {
			t.Fatalf("increment failed: %v", err)
		}
	}
	if err := store.IncrementRejectCount(ctx, key, "NO_RESULT"); err != nil {
		t.Fatalf("increment failed: %v", err)
	}

	count, err := store.RejectCount(ctx, key)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 4 {
		t.Errorf("reject count: got %d, want 4", count)
	}
}

func TestOpenCase_OnePerTransponder(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()
	key := testKey()

	if err := store.TouchTransponder(ctx, key, time.Now().UTC()); err != nil {
		t.Fatalf("touch failed: %v", err)
	}

	first := &model.DisclosureCase{
		ID:        "case-1",
		Key:       key,
		Status:    model.CasePending,
		CreatedAt: time.Now().UTC(),
	}
	if err := store.OpenCase(ctx, first); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	second := &model.DisclosureCase{
		ID:        "case-2",
		Key:       key,
		Status:    model.CasePending,
		CreatedAt: time.Now().UTC(),
	}
	err := store.OpenCase(ctx, second)
	if !errors.Is(err, common.ErrCaseAlreadyOpen) {
		t.Fatalf("expected ErrCaseAlreadyOpen, got %v", err)
	}

	// Closing the first case allows a new one.
	first.Status = model.CaseClosedNoResponse
	first.ClosedAt = time.Now().UTC()
	if err := store.UpdateCase(ctx, first); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if err := store.OpenCase(ctx, second); err != nil {
		t.Fatalf("reopen after close failed: %v", err)
	}

	open, err := store.GetOpenCase(ctx, key)
	if err != nil {
		t.Fatalf("get open failed: %v", err)
	}
	if open.ID != "case-2" {
		t.Errorf("open case: got %s, want case-2", open.ID)
	}
}

func TestListCases_Filter(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	keys := []model.TransponderKey{
		{Satellite: "SAT-A", FrequencyMHz: 11000, BandwidthMHz: 36},
		{Satellite: "SAT-B", FrequencyMHz: 12000, BandwidthMHz: 36},
	}
	statuses := []model.CaseStatus{model.CasePending, model.CaseNotified}
	for i, key := range keys {
		if err := store.TouchTransponder(ctx, key, time.Now().UTC()); err != nil {
			t.Fatalf("touch failed: %v", err)
		}
		disclosureCase := &model.DisclosureCase{
			ID:        "case-" + key.Satellite,
			Key:       key,
			Status:    statuses[i],
			CreatedAt: time.Now().UTC(),
		}
		if err := store.OpenCase(ctx, disclosureCase); err != nil {
			t.Fatalf("open failed: %v", err)
		}
	}

	all, err := store.ListCases(ctx, service.CaseFilter{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("unfiltered list: got %d, want 2", len(all))
	}

	pending, err := store.ListCases(ctx, service.CaseFilter{Status: model.CasePending})
	if err != nil {
		t.Fatalf("filtered list failed: %v", err)
	}
	if len(pending) != 1 || pending[0].Key.Satellite != "SAT-A" {
		t.Errorf("filtered list wrong: %+v", pending)
	}
}

func TestTransactionRollback(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()
	key := testKey()

	tx, err := store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if err := tx.TouchTransponder(ctx, key, time.Now().UTC()); err != nil {
		t.Fatalf("touch in tx failed: %v", err)
	}
	if _, err := tx.ConsumeSegment(ctx, key, "fp-tx", "pass-01"); err != nil {
		t.Fatalf("consume in tx failed: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback failed: %v", err)
	}

	// Nothing committed: the fingerprint is fresh again.
	if err := store.TouchTransponder(ctx, key, time.Now().UTC()); err != nil {
		t.Fatalf("touch failed: %v", err)
	}
	fresh, err := store.ConsumeSegment(ctx, key, "fp-tx", "pass-01")
	if err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	if !fresh {
		t.Error("fingerprint consumed in rolled-back transaction should be fresh")
	}
}
