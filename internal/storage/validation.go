// Package storage provides the data persistence layer for the audit ledger.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/elaichix/satwatch/internal/model"
)

// Validation errors.
var (
	ErrNilContext        = errors.New("context cannot be nil")
	ErrEmptyString       = errors.New("string parameter cannot be empty")
	ErrNilParameter      = errors.New("parameter cannot be nil")
	ErrInvalidKey        = errors.New("invalid transponder key")
	ErrInvalidVerdict    = errors.New("invalid verdict")
	ErrInvalidRecord     = errors.New("invalid classification record")
	ErrInvalidTransition = errors.New("invalid verdict transition")
	ErrInvalidCase       = errors.New("invalid disclosure case")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateKey validates a transponder key.
func validateKey(key model.TransponderKey) error {
	if strings.TrimSpace(key.Satellite) == "" {
		return fmt.Errorf("%w: missing satellite", ErrInvalidKey)
	}
	if key.FrequencyMHz <= 0 {
		return fmt.Errorf("%w: frequency must be positive", ErrInvalidKey)
	}
	if key.BandwidthMHz <= 0 {
		return fmt.Errorf("%w: bandwidth must be positive", ErrInvalidKey)
	}
	return nil
}

// validateTransponder validates a transponder.
func validateTransponder(transponder *model.Transponder) error {
	if transponder == nil {
		return fmt.Errorf("%w: transponder", ErrNilParameter)
	}
	if err := validateKey(transponder.Key); err != nil {
		return err
	}
	return nil
}

// validateRecord validates a classification record.
func validateRecord(record *model.ClassificationRecord) error {
	if record == nil {
		return fmt.Errorf("%w: record", ErrNilParameter)
	}
	if err := validateKey(record.Key); err != nil {
		return err
	}
	if !record.Verdict.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidVerdict, record.Verdict)
	}
	if record.Confidence < 0 || record.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidRecord)
	}
	if record.EvidenceCount < 0 {
		return fmt.Errorf("%w: evidence count cannot be negative", ErrInvalidRecord)
	}
	return nil
}

// validateTransition validates a verdict history entry.
func validateTransition(transition *model.VerdictTransition) error {
	if transition == nil {
		return fmt.Errorf("%w: transition", ErrNilParameter)
	}
	if err := validateKey(transition.Key); err != nil {
		return err
	}
	if !transition.From.Valid() {
		return fmt.Errorf("%w: from verdict %s", ErrInvalidTransition, transition.From)
	}
	if !transition.To.Valid() {
		return fmt.Errorf("%w: to verdict %s", ErrInvalidTransition, transition.To)
	}
	if transition.OccurredAt.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidTransition)
	}
	return nil
}

// validateCase validates a disclosure case.
func validateCase(disclosureCase *model.DisclosureCase) error {
	if disclosureCase == nil {
		return fmt.Errorf("%w: disclosure case", ErrNilParameter)
	}
	if disclosureCase.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidCase)
	}
	if err := validateKey(disclosureCase.Key); err != nil {
		return err
	}
	if !disclosureCase.Status.Valid() {
		return fmt.Errorf("%w: status %s", ErrInvalidCase, disclosureCase.Status)
	}
	return nil
}
