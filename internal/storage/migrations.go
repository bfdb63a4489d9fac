package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 5

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS transponders (
					key TEXT PRIMARY KEY,
					satellite TEXT NOT NULL,
					frequency_mhz REAL NOT NULL,
					bandwidth_mhz REAL NOT NULL,
					longitude_east REAL DEFAULT 0,
					polarization TEXT DEFAULT '',
					operator_name TEXT DEFAULT '',
					operator_country TEXT DEFAULT '',
					first_observed DATETIME NOT NULL,
					last_observed DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_transponders_satellite ON transponders(satellite)`,

				`CREATE TABLE IF NOT EXISTS classification_records (
					transponder_key TEXT PRIMARY KEY,
					verdict TEXT NOT NULL,
					confidence REAL DEFAULT 0,
					evidence_count INTEGER DEFAULT 0,
					pass_count INTEGER DEFAULT 0,
					secure_weight REAL DEFAULT 0,
					unencrypted_weight REAL DEFAULT 0,
					obfuscated_weight REAL DEFAULT 0,
					inconclusive_weight REAL DEFAULT 0,
					traffic_category TEXT DEFAULT '',
					analysis_depth TEXT NOT NULL,
					first_seen DATETIME NOT NULL,
					last_updated DATETIME NOT NULL,
					FOREIGN KEY (transponder_key) REFERENCES transponders(key)
				)`,
				`CREATE INDEX idx_records_verdict ON classification_records(verdict)`,

				`CREATE TABLE IF NOT EXISTS consumed_segments (
					transponder_key TEXT NOT NULL,
					fingerprint TEXT NOT NULL,
					pass_id TEXT DEFAULT '',
					consumed_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (transponder_key, fingerprint)
				)`,

				`CREATE TABLE IF NOT EXISTS disclosure_cases (
					id TEXT PRIMARY KEY,
					transponder_key TEXT NOT NULL,
					status TEXT NOT NULL,
					created_at DATETIME NOT NULL,
					notified_at DATETIME,
					acknowledged_at DATETIME,
					closed_at DATETIME,
					FOREIGN KEY (transponder_key) REFERENCES transponders(key)
				)`,
				`CREATE INDEX idx_disclosure_cases_key ON disclosure_cases(transponder_key)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Add verdict history for auditing",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS verdict_history (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					transponder_key TEXT NOT NULL,
					from_verdict TEXT NOT NULL,
					to_verdict TEXT NOT NULL,
					traffic_category TEXT DEFAULT '',
					segment_id TEXT DEFAULT '',
					confidence REAL DEFAULT 0,
					evidence_count INTEGER DEFAULT 0,
					occurred_at DATETIME NOT NULL,
					FOREIGN KEY (transponder_key) REFERENCES transponders(key)
				)`,
				`CREATE INDEX idx_verdict_history_key ON verdict_history(transponder_key)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Add reject statistics table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS reject_stats (
					transponder_key TEXT NOT NULL,
					reason TEXT NOT NULL,
					count INTEGER DEFAULT 0,
					PRIMARY KEY (transponder_key, reason)
				)
			`)
			return err
		},
	},
	{
		Version:     4,
		Description: "Track PII exposure flag on classification records",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				ALTER TABLE classification_records
				ADD COLUMN contains_pii BOOLEAN DEFAULT 0
			`)
			if err != nil {
				return fmt.Errorf("failed to add contains_pii column: %w", err)
			}
			return nil
		},
	},
	{
		Version:     5,
		Description: "Enforce a single open disclosure case per transponder",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_disclosure_cases_open
					ON disclosure_cases(transponder_key)
					WHERE status IN ('PENDING', 'NOTIFIED', 'ACKNOWLEDGED')`,
				`CREATE INDEX IF NOT EXISTS idx_disclosure_cases_status ON disclosure_cases(status)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	// Get current version
	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	// Apply migrations
	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		// Update version
		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	// Verify we're at the expected schema version
	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
