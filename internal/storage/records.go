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

// GetRecord returns the live classification record for a transponder.
// Returns common.ErrNotFound when no evidence has ever been folded.
func (s *SQLiteStorage) GetRecord(ctx context.Context, key model.TransponderKey) (*model.ClassificationRecord, error) {
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

	record, err := s.getRecordTx(ctx, tx, key)
	if err != nil {
		return nil, err
	}

	return record, tx.Commit()
}

const recordColumns = `
	transponder_key, verdict, confidence, evidence_count, pass_count,
	secure_weight, unencrypted_weight, obfuscated_weight, inconclusive_weight,
	traffic_category, analysis_depth, contains_pii, first_seen, last_updated`

func scanRecord(row interface{ Scan(...any) error }) (*model.ClassificationRecord, error) {
	var r model.ClassificationRecord
	var keyStr string
	err := row.Scan(
		&keyStr,
		&r.Verdict,
		&r.Confidence,
		&r.EvidenceCount,
		&r.PassCount,
		&r.SecureWeight,
		&r.UnencryptedWeight,
		&r.ObfuscatedWeight,
		&r.InconclusiveWeight,
		&r.Traffic,
		&r.Depth,
		&r.ContainsPII,
		&r.FirstSeen,
		&r.LastUpdated,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLiteStorage) getRecordTx(ctx context.Context, tx *sql.Tx, key model.TransponderKey) (*model.ClassificationRecord, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM classification_records WHERE transponder_key = ?`,
		key.String())

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %s: %w", key, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %s: %w", key, err)
	}
	record.Key = key
	return record, nil
}

// SaveRecord inserts or updates the live classification record for a key.
// History entries are written separately via AppendTransition; the live
// record is the only row mutated in place.
func (s *SQLiteStorage) SaveRecord(ctx context.Context, record *model.ClassificationRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRecord(record); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.saveRecordTx(ctx, tx, record); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStorage) saveRecordTx(ctx context.Context, tx *sql.Tx, record *model.ClassificationRecord) error {
	if record.LastUpdated.IsZero() {
		record.LastUpdated = time.Now().UTC()
	}
	if record.FirstSeen.IsZero() {
		record.FirstSeen = record.LastUpdated
	}
	if record.Depth == "" {
		record.Depth = model.DepthBroadbandScan
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO classification_records (
			transponder_key, verdict, confidence, evidence_count, pass_count,
			secure_weight, unencrypted_weight, obfuscated_weight, inconclusive_weight,
			traffic_category, analysis_depth, contains_pii, first_seen, last_updated
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(transponder_key) DO UPDATE SET
			verdict = excluded.verdict,
			confidence = excluded.confidence,
			evidence_count = excluded.evidence_count,
			pass_count = excluded.pass_count,
			secure_weight = excluded.secure_weight,
			unencrypted_weight = excluded.unencrypted_weight,
			obfuscated_weight = excluded.obfuscated_weight,
			inconclusive_weight = excluded.inconclusive_weight,
			traffic_category = excluded.traffic_category,
			analysis_depth = excluded.analysis_depth,
			contains_pii = excluded.contains_pii,
			last_updated = excluded.last_updated
	`,
		record.Key.String(),
		record.Verdict,
		record.Confidence,
		record.EvidenceCount,
		record.PassCount,
		record.SecureWeight,
		record.UnencryptedWeight,
		record.ObfuscatedWeight,
		record.InconclusiveWeight,
		record.Traffic,
		record.Depth,
		record.ContainsPII,
		record.FirstSeen,
		record.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to save record %s: %w", record.Key, err)
	}
	return nil
}

// ListRecords returns all live classification records.
func (s *SQLiteStorage) ListRecords(ctx context.Context) ([]model.ClassificationRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	records, err := s.listRecordsTx(ctx, tx)
	if err != nil {
		return nil, err
	}

	return records, tx.Commit()
}

func (s *SQLiteStorage) listRecordsTx(ctx context.Context, tx *sql.Tx) ([]model.ClassificationRecord, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT r.satellite, r.frequency_mhz, r.bandwidth_mhz, `+recordColumns+`
		FROM classification_records
		JOIN (
			SELECT key, satellite, frequency_mhz, bandwidth_mhz FROM transponders
		) r ON r.key = classification_records.transponder_key
		ORDER BY r.satellite, r.frequency_mhz
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.ClassificationRecord
	for rows.Next() {
		var r model.ClassificationRecord
		var keyStr string
		if err := rows.Scan(
			&r.Key.Satellite,
			&r.Key.FrequencyMHz,
			&r.Key.BandwidthMHz,
			&keyStr,
			&r.Verdict,
			&r.Confidence,
			&r.EvidenceCount,
			&r.PassCount,
			&r.SecureWeight,
			&r.UnencryptedWeight,
			&r.ObfuscatedWeight,
			&r.InconclusiveWeight,
			&r.Traffic,
			&r.Depth,
			&r.ContainsPII,
			&r.FirstSeen,
			&r.LastUpdated,
		); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

// ConsumeSegment marks a segment fingerprint as folded into evidence for a
// key. Returns false when the fingerprint was already consumed so callers
// can skip double counting. Safe under redelivery.
func (s *SQLiteStorage) ConsumeSegment(ctx context.Context, key model.TransponderKey, fingerprint, passID string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateKey(key); err != nil {
		return false, err
	}
	if err := validateString(fingerprint, "fingerprint"); err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	consumed, err := s.consumeSegmentTx(ctx, tx, key, fingerprint, passID)
	if err != nil {
		return false, err
	}

	return consumed, tx.Commit()
}

func (s *SQLiteStorage) consumeSegmentTx(ctx context.Context, tx *sql.Tx, key model.TransponderKey, fingerprint, passID string) (bool, error) {
	result, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO consumed_segments (transponder_key, fingerprint, pass_id)
		VALUES (?, ?, ?)
	`, key.String(), fingerprint, passID)
	if err != nil {
		return false, fmt.Errorf("failed to consume segment for %s: %w", key, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check consumed rows: %w", err)
	}
	return affected > 0, nil
}

// CountDistinctPasses returns how many distinct observation passes have
// contributed consumed segments for a key.
func (s *SQLiteStorage) CountDistinctPasses(ctx context.Context, key model.TransponderKey) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateKey(key); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	count, err := s.countDistinctPassesTx(ctx, tx, key)
	if err != nil {
		return 0, err
	}

	return count, tx.Commit()
}

func (s *SQLiteStorage) countDistinctPassesTx(ctx context.Context, tx *sql.Tx, key model.TransponderKey) (int, error) {
	var count int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT pass_id) FROM consumed_segments
		WHERE transponder_key = ? AND pass_id != ''
	`, key.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count passes for %s: %w", key, err)
	}
	return count, nil
}

// AppendTransition writes one verdict history entry. History is append-only;
// entries are never updated or deleted.
func (s *SQLiteStorage) AppendTransition(ctx context.Context, transition *model.VerdictTransition) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransition(transition); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.appendTransitionTx(ctx, tx, transition); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStorage) appendTransitionTx(ctx context.Context, tx *sql.Tx, transition *model.VerdictTransition) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO verdict_history (
			transponder_key, from_verdict, to_verdict, traffic_category,
			segment_id, confidence, evidence_count, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		transition.Key.String(),
		transition.From,
		transition.To,
		transition.Traffic,
		transition.SegmentID,
		transition.Confidence,
		transition.EvidenceCount,
		transition.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append transition for %s: %w", transition.Key, err)
	}
	return nil
}

// History returns the ordered sequence of past verdict transitions for a key.
func (s *SQLiteStorage) History(ctx context.Context, key model.TransponderKey) ([]model.VerdictTransition, error) {
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

	history, err := s.historyTx(ctx, tx, key)
	if err != nil {
		return nil, err
	}

	return history, tx.Commit()
}

func (s *SQLiteStorage) historyTx(ctx context.Context, tx *sql.Tx, key model.TransponderKey) ([]model.VerdictTransition, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT from_verdict, to_verdict, traffic_category, segment_id,
			confidence, evidence_count, occurred_at
		FROM verdict_history
		WHERE transponder_key = ?
		ORDER BY id
	`, key.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get history for %s: %w", key, err)
	}
	defer func() { _ = rows.Close() }()

	var history []model.VerdictTransition
	for rows.Next() {
		entry := model.VerdictTransition{Key: key}
		if err := rows.Scan(
			&entry.From,
			&entry.To,
			&entry.Traffic,
			&entry.SegmentID,
			&entry.Confidence,
			&entry.EvidenceCount,
			&entry.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		history = append(history, entry)
	}

	return history, rows.Err()
}

// IncrementRejectCount bumps the reject statistic for a key and reason.
// Rejected segments contribute no evidence but are retained for statistics.
func (s *SQLiteStorage) IncrementRejectCount(ctx context.Context, key model.TransponderKey, reason string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}
	if err := validateString(reason, "reason"); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.incrementRejectCountTx(ctx, tx, key, reason); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStorage) incrementRejectCountTx(ctx context.Context, tx *sql.Tx, key model.TransponderKey, reason string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO reject_stats (transponder_key, reason, count)
		VALUES (?, ?, 1)
		ON CONFLICT(transponder_key, reason) DO UPDATE SET count = count + 1
	`, key.String(), reason)
	if err != nil {
		return fmt.Errorf("failed to increment reject count for %s: %w", key, err)
	}
	return nil
}

// RejectCount returns the total rejected segments recorded for a key.
func (s *SQLiteStorage) RejectCount(ctx context.Context, key model.TransponderKey) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateKey(key); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	count, err := s.rejectCountTx(ctx, tx, key)
	if err != nil {
		return 0, err
	}

	return count, tx.Commit()
}

func (s *SQLiteStorage) rejectCountTx(ctx context.Context, tx *sql.Tx, key model.TransponderKey) (int, error) {
	var count int
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(count), 0) FROM reject_stats WHERE transponder_key = ?
	`, key.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get reject count for %s: %w", key, err)
	}
	return count, nil
}
