// Package disclosure implements the responsible-disclosure case tracker for
// confirmed unencrypted transponders.
package disclosure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/elaichix/satwatch/internal/common"
	"github.com/elaichix/satwatch/internal/model"
	"github.com/elaichix/satwatch/internal/service"
)

// Config holds tracker configuration.
type Config struct {
	// NoResponseTimeout closes an unacknowledged case after this long.
	NoResponseTimeout time.Duration
}

// DefaultConfig returns the default tracker configuration.
func DefaultConfig() Config {
	return Config{NoResponseTimeout: 90 * 24 * time.Hour}
}

// validTransitions lists the externally driven status changes. The sweep's
// automatic transition to CLOSED_NO_RESPONSE is handled separately.
var validTransitions = map[model.CaseStatus][]model.CaseStatus{
	model.CasePending:      {model.CaseNotified},
	model.CaseNotified:     {model.CaseAcknowledged, model.CaseRemediated},
	model.CaseAcknowledged: {model.CaseRemediated},
}

func transitionAllowed(from, to model.CaseStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Tracker manages the lifecycle of disclosure cases. One open case per
// transponder at a time; closing a case never suppresses a later reopening.
type Tracker struct {
	storage  service.Storage
	notifier service.Notifier
	config   Config
}

// New creates a tracker. The notifier may be nil when no collaborator is
// wired; state changes are then only persisted.
func New(storage service.Storage, notifier service.Notifier, config Config) (*Tracker, error) {
	if storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if config.NoResponseTimeout <= 0 {
		config.NoResponseTimeout = DefaultConfig().NoResponseTimeout
	}
	return &Tracker{
		storage:  storage,
		notifier: notifier,
		config:   config,
	}, nil
}

// MaybeOpen opens a PENDING case for a disclosure-eligible record unless an
// open case already exists. Returns the case and whether it was newly
// opened.
func (t *Tracker) MaybeOpen(ctx context.Context, record *model.ClassificationRecord, minEvidence, minPasses int) (*model.DisclosureCase, bool, error) {
	if !record.DisclosureEligible(minEvidence, minPasses) {
		return nil, false, fmt.Errorf("record %s: %w", record.Key, common.ErrInsufficientEvidence)
	}

	existing, err := t.storage.GetOpenCase(ctx, record.Key)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, false, err
	}

	disclosureCase := &model.DisclosureCase{
		ID:        uuid.NewString(),
		Key:       record.Key,
		Status:    model.CasePending,
		CreatedAt: time.Now().UTC(),
	}

	if err := t.storage.OpenCase(ctx, disclosureCase); err != nil {
		if errors.Is(err, common.ErrCaseAlreadyOpen) {
			// Lost a race with a concurrent fold for the same key.
			existing, getErr := t.storage.GetOpenCase(ctx, record.Key)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	slog.Info("Disclosure case opened",
		"case_id", disclosureCase.ID,
		"transponder", record.Key.String(),
		"evidence_count", record.EvidenceCount)

	t.emit(ctx, *disclosureCase, "")
	return disclosureCase, true, nil
}

// Transition applies an externally driven status change to the open case
// for a key.
func (t *Tracker) Transition(ctx context.Context, key model.TransponderKey, to model.CaseStatus) (*model.DisclosureCase, error) {
	disclosureCase, err := t.storage.GetOpenCase(ctx, key)
	if err != nil {
		return nil, err
	}

	from := disclosureCase.Status
	if !transitionAllowed(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", common.ErrInvalidTransition, from, to)
	}

	now := time.Now().UTC()
	disclosureCase.Status = to
	switch to {
	case model.CaseNotified:
		disclosureCase.NotifiedAt = now
	case model.CaseAcknowledged:
		disclosureCase.AcknowledgedAt = now
	case model.CaseRemediated:
		disclosureCase.ClosedAt = now
	}

	if err := t.storage.UpdateCase(ctx, disclosureCase); err != nil {
		return nil, err
	}

	slog.Info("Disclosure case transitioned",
		"case_id", disclosureCase.ID,
		"from", from,
		"to", to)

	t.emit(ctx, *disclosureCase, from)
	return disclosureCase, nil
}

// Sweep closes cases that have gone unacknowledged past the configured
// timeout. Each qualifying case transitions to CLOSED_NO_RESPONSE exactly
// once. Returns the number of cases closed.
func (t *Tracker) Sweep(ctx context.Context, now time.Time) (int, error) {
	closed := 0
	for _, status := range []model.CaseStatus{model.CasePending, model.CaseNotified} {
		cases, err := t.storage.ListCases(ctx, service.CaseFilter{Status: status})
		if err != nil {
			return closed, err
		}

		for i := range cases {
			disclosureCase := cases[i]
			if now.Sub(disclosureCase.CreatedAt) < t.config.NoResponseTimeout {
				continue
			}

			from := disclosureCase.Status
			disclosureCase.Status = model.CaseClosedNoResponse
			disclosureCase.ClosedAt = now

			if err := t.storage.UpdateCase(ctx, &disclosureCase); err != nil {
				return closed, err
			}
			closed++

			slog.Info("Disclosure case closed with no response",
				"case_id", disclosureCase.ID,
				"transponder", disclosureCase.Key.String(),
				"open_for", now.Sub(disclosureCase.CreatedAt))

			t.emit(ctx, disclosureCase, from)
		}
	}
	return closed, nil
}

// emit forwards a case state change to the notification collaborator. The
// persisted case is the source of truth; a notifier failure is logged, not
// propagated.
func (t *Tracker) emit(ctx context.Context, disclosureCase model.DisclosureCase, previous model.CaseStatus) {
	if t.notifier == nil {
		return
	}
	if err := t.notifier.CaseChanged(ctx, disclosureCase, previous); err != nil {
		slog.Warn("Failed to notify case change",
			"case_id", disclosureCase.ID,
			"status", disclosureCase.Status,
			"error", err)
	}
}
