package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/elaichix/satwatch/internal/common"
	"github.com/elaichix/satwatch/internal/model"
)

// SaveTransponder inserts or updates a transponder's metadata. Transponders
// are never deleted.
func (s *SQLiteStorage) SaveTransponder(ctx context.Context, transponder *model.Transponder) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransponder(transponder); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.saveTransponderTx(ctx, tx, transponder); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStorage) saveTransponderTx(ctx context.Context, tx *sql.Tx, transponder *model.Transponder) error {
	now := time.Now().UTC()
	firstObserved := transponder.FirstObserved
	if firstObserved.IsZero() {
		firstObserved = now
	}
	lastObserved := transponder.LastObserved
	if lastObserved.IsZero() {
		lastObserved = now
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO transponders (
			key, satellite, frequency_mhz, bandwidth_mhz, longitude_east,
			polarization, operator_name, operator_country, first_observed, last_observed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			longitude_east = excluded.longitude_east,
			polarization = excluded.polarization,
			operator_name = excluded.operator_name,
			operator_country = excluded.operator_country,
			last_observed = MAX(transponders.last_observed, excluded.last_observed)
	`,
		transponder.Key.String(),
		transponder.Key.Satellite,
		transponder.Key.FrequencyMHz,
		transponder.Key.BandwidthMHz,
		transponder.LongitudeEast,
		transponder.Polarization,
		transponder.OperatorName,
		transponder.OperatorCountry,
		firstObserved,
		lastObserved,
	)
	if err != nil {
		return fmt.Errorf("failed to save transponder %s: %w", transponder.Key, err)
	}
	return nil
}

// TouchTransponder records presence for a key, creating the transponder on
// first observation. Presence tracking is independent of classification, so
// this runs even for rejected segments.
func (s *SQLiteStorage) TouchTransponder(ctx context.Context, key model.TransponderKey, observedAt time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.touchTransponderTx(ctx, tx, key, observedAt); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStorage) touchTransponderTx(ctx context.Context, tx *sql.Tx, key model.TransponderKey, observedAt time.Time) error {
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO transponders (
			key, satellite, frequency_mhz, bandwidth_mhz, first_observed, last_observed
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			last_observed = MAX(transponders.last_observed, excluded.last_observed)
	`,
		key.String(),
		key.Satellite,
		key.FrequencyMHz,
		key.BandwidthMHz,
		observedAt,
		observedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to touch transponder %s: %w", key, err)
	}
	return nil
}

// GetTransponder retrieves a transponder by key.
func (s *SQLiteStorage) GetTransponder(ctx context.Context, key model.TransponderKey) (*model.Transponder, error) {
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

	transponder, err := s.getTransponderTx(ctx, tx, key)
	if err != nil {
		return nil, err
	}

	return transponder, tx.Commit()
}

func (s *SQLiteStorage) getTransponderTx(ctx context.Context, tx *sql.Tx, key model.TransponderKey) (*model.Transponder, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT satellite, frequency_mhz, bandwidth_mhz, longitude_east,
			polarization, operator_name, operator_country, first_observed, last_observed
		FROM transponders WHERE key = ?
	`, key.String())

	var t model.Transponder
	err := row.Scan(
		&t.Key.Satellite,
		&t.Key.FrequencyMHz,
		&t.Key.BandwidthMHz,
		&t.LongitudeEast,
		&t.Polarization,
		&t.OperatorName,
		&t.OperatorCountry,
		&t.FirstObserved,
		&t.LastObserved,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transponder %s: %w", key, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transponder %s: %w", key, err)
	}
	return &t, nil
}

// ListTransponders returns all known transponders ordered by satellite and
// frequency.
func (s *SQLiteStorage) ListTransponders(ctx context.Context) ([]model.Transponder, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	transponders, err := s.listTranspondersTx(ctx, tx)
	if err != nil {
		return nil, err
	}

	return transponders, tx.Commit()
}

func (s *SQLiteStorage) listTranspondersTx(ctx context.Context, tx *sql.Tx) ([]model.Transponder, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT satellite, frequency_mhz, bandwidth_mhz, longitude_east,
			polarization, operator_name, operator_country, first_observed, last_observed
		FROM transponders
		ORDER BY satellite, frequency_mhz
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list transponders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transponders []model.Transponder
	for rows.Next() {
		var t model.Transponder
		if err := rows.Scan(
			&t.Key.Satellite,
			&t.Key.FrequencyMHz,
			&t.Key.BandwidthMHz,
			&t.LongitudeEast,
			&t.Polarization,
			&t.OperatorName,
			&t.OperatorCountry,
			&t.FirstObserved,
			&t.LastObserved,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transponder: %w", err)
		}
		transponders = append(transponders, t)
	}

	return transponders, rows.Err()
}
