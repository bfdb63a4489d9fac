package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/elaichix/satwatch/internal/common"
	"github.com/elaichix/satwatch/internal/model"
	"github.com/elaichix/satwatch/internal/observability"
	"github.com/elaichix/satwatch/internal/testutil"
)

func newIngestor(t *testing.T) (*Ingestor, *testutil.TestDB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ingestor, err := New(db.Storage, observability.NopCollector(), DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create ingestor: %v", err)
	}
	return ingestor, db
}

func TestSubmit_ValidSegmentQueued(t *testing.T) {
	ingestor, _ := newIngestor(t)
	ctx := context.Background()

	segment := testutil.TestSegment(testutil.TestKey("EXPRESS-AM6", 11045), 1)
	if err := ingestor.Submit(ctx, segment); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	ingestor.Close()

	var count int
	for range ingestor.Segments() {
		count++
	}
	if count != 1 {
		t.Errorf("queued segments: got %d, want 1", count)
	}
}

func TestSubmit_GateRejections(t *testing.T) {
	tests := []struct {
		name    string
		opts    []testutil.SegmentOption
		wantErr bool
	}{
		{
			name: "below quality floor",
			opts: []testutil.SegmentOption{testutil.WithQuality(0.1)},

			wantErr: true,
		},
		{
			name:    "too short",
			opts:    []testutil.SegmentOption{testutil.WithDuration(200 * time.Millisecond)},
			wantErr: true,
		},
		{
			name:    "acceptable",
			opts:    nil,
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ingestor, _ := newIngestor(t)
			ctx := context.Background()

			segment := testutil.TestSegment(testutil.TestKey("EXPRESS-AM6", 11045), 1, tt.opts...)
			err := ingestor.Submit(ctx, segment)
			if tt.wantErr {
				if !common.IsRejection(err) {
					t.Errorf("expected rejection, got %v", err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestSubmit_RejectedSegmentStillUpdatesPresence(t *testing.T) {
	ingestor, db := newIngestor(t)
	ctx := context.Background()
	key := testutil.TestKey("YAMAL-402", 10985)

	segment := testutil.TestSegment(key, 1, testutil.WithQuality(0.05))
	if err := ingestor.Submit(ctx, segment); !common.IsRejection(err) {
		t.Fatalf("expected rejection, got %v", err)
	}

	// Presence tracking is independent of classification.
	transponder, err := db.Storage.GetTransponder(ctx, key)
	if err != nil {
		t.Fatalf("transponder not created for rejected segment: %v", err)
	}
	if transponder.LastObserved.IsZero() {
		t.Error("last observed not set")
	}

	count, err := db.Storage.RejectCount(ctx, key)
	if err != nil {
		t.Fatalf("reject count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("reject count: got %d, want 1", count)
	}
}

func TestDrain(t *testing.T) {
	ingestor, _ := newIngestor(t)
	ctx := context.Background()
	key := testutil.TestKey("EXPRESS-AM6", 11045)

	source := &testutil.SliceSource{
		Segments: []*model.CaptureSegment{
			testutil.TestSegment(key, 1),
			testutil.TestSegment(key, 2, testutil.WithQuality(0.1)),
			testutil.TestSegment(key, 3),
		},
	}

	done := make(chan error, 1)
	go func() {
		done <- ingestor.Drain(ctx, source)
	}()

	var queued int
	for range ingestor.Segments() {
		queued++
	}
	if err := <-done; err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if queued != 2 {
		t.Errorf("queued segments: got %d, want 2 (one rejected)", queued)
	}
}

func TestSubmit_AfterContextCancel(t *testing.T) {
	db := testutil.SetupTestDB(t)
	config := DefaultConfig()
	config.QueueCapacity = 1
	ingestor, err := New(db.Storage, observability.NopCollector(), config)
	if err != nil {
		t.Fatalf("failed to create ingestor: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	key := testutil.TestKey("EXPRESS-AM6", 11045)

	// Fill the queue, then cancel: the blocked submit must return.
	if err := ingestor.Submit(ctx, testutil.TestSegment(key, 1)); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	cancel()
	err = ingestor.Submit(ctx, testutil.TestSegment(key, 2))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
