package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/elaichix/satwatch/internal/common"
	"github.com/elaichix/satwatch/internal/model"
	"github.com/elaichix/satwatch/internal/service"
)

// openStatuses are the non-terminal case statuses. The partial unique index
// on disclosure_cases guarantees at most one row per key in these states.
var openStatuses = []string{
	string(model.CasePending),
	string(model.CaseNotified),
	string(model.CaseAcknowledged),
}

// OpenCase creates a new disclosure case. Fails with
// common.ErrCaseAlreadyOpen when a non-terminal case exists for the key.
func (s *SQLiteStorage) OpenCase(ctx context.Context, disclosureCase *model.DisclosureCase) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateCase(disclosureCase); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.openCaseTx(ctx, tx, disclosureCase); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStorage) openCaseTx(ctx context.Context, tx *sql.Tx, disclosureCase *model.DisclosureCase) error {
	if disclosureCase.CreatedAt.IsZero() {
		disclosureCase.CreatedAt = time.Now().UTC()
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO disclosure_cases (id, transponder_key, status, created_at)
		VALUES (?, ?, ?, ?)
	`,
		disclosureCase.ID,
		disclosureCase.Key.String(),
		disclosureCase.Status,
		disclosureCase.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("case for %s: %w", disclosureCase.Key, common.ErrCaseAlreadyOpen)
		}
		return fmt.Errorf("failed to open case for %s: %w", disclosureCase.Key, err)
	}
	return nil
}

// GetOpenCase returns the current non-terminal case for a key, or
// common.ErrNotFound when every case is closed.
func (s *SQLiteStorage) GetOpenCase(ctx context.Context, key model.TransponderKey) (*model.DisclosureCase, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	disclosureCase, err := s.getOpenCaseTx(ctx, tx, key)
	if err != nil {
		return nil, err
	}

	return disclosureCase, tx.Commit()
}

func (s *SQLiteStorage) getOpenCaseTx(ctx context.Context, tx *sql.Tx, key model.TransponderKey) (*model.DisclosureCase, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT c.id, c.status, c.created_at, c.notified_at, c.acknowledged_at, c.closed_at,
			t.satellite, t.frequency_mhz, t.bandwidth_mhz
		FROM disclosure_cases c
		JOIN transponders t ON t.key = c.transponder_key
		WHERE c.transponder_key = ? AND c.status IN (?, ?, ?)
	`, key.String(), openStatuses[0], openStatuses[1], openStatuses[2])

	disclosureCase, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("open case for %s: %w", key, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open case for %s: %w", key, err)
	}
	return disclosureCase, nil
}

func scanCase(row interface{ Scan(...any) error }) (*model.DisclosureCase, error) {
	var c model.DisclosureCase
	var notified, acknowledged, closed sql.NullTime
	err := row.Scan(
		&c.ID,
		&c.Status,
		&c.CreatedAt,
		&notified,
		&acknowledged,
		&closed,
		&c.Key.Satellite,
		&c.Key.FrequencyMHz,
		&c.Key.BandwidthMHz,
	)
	if err != nil {
		return nil, err
	}
	if notified.Valid {
		c.NotifiedAt = notified.Time
	}
	if acknowledged.Valid {
		c.AcknowledgedAt = acknowledged.Time
	}
	if closed.Valid {
		c.ClosedAt = closed.Time
	}
	return &c, nil
}

// UpdateCase persists a status change to an existing case.
func (s *SQLiteStorage) UpdateCase(ctx context.Context, disclosureCase *model.DisclosureCase) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateCase(disclosureCase); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.updateCaseTx(ctx, tx, disclosureCase); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStorage) updateCaseTx(ctx context.Context, tx *sql.Tx, disclosureCase *model.DisclosureCase) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE disclosure_cases
		SET status = ?, notified_at = ?, acknowledged_at = ?, closed_at = ?
		WHERE id = ?
	`,
		disclosureCase.Status,
		nullableTime(disclosureCase.NotifiedAt),
		nullableTime(disclosureCase.AcknowledgedAt),
		nullableTime(disclosureCase.ClosedAt),
		disclosureCase.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update case %s: %w", disclosureCase.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check updated rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("case %s: %w", disclosureCase.ID, common.ErrNotFound)
	}
	return nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// ListCases returns disclosure cases, optionally filtered by status.
func (s *SQLiteStorage) ListCases(ctx context.Context, filter service.CaseFilter) ([]model.DisclosureCase, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cases, err := s.listCasesTx(ctx, tx, filter)
	if err != nil {
		return nil, err
	}

	return cases, tx.Commit()
}

func (s *SQLiteStorage) listCasesTx(ctx context.Context, tx *sql.Tx, filter service.CaseFilter) ([]model.DisclosureCase, error) {
	query := `
		SELECT c.id, c.status, c.created_at, c.notified_at, c.acknowledged_at, c.closed_at,
			t.satellite, t.frequency_mhz, t.bandwidth_mhz
		FROM disclosure_cases c
		JOIN transponders t ON t.key = c.transponder_key`
	args := []any{}

	if filter.Status != "" {
		query += ` WHERE c.status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY c.created_at`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cases []model.DisclosureCase
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan case: %w", err)
		}
		cases = append(cases, *c)
	}

	return cases, rows.Err()
}
