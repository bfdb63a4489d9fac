package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/elaichix/satwatch/internal/model"
	"github.com/elaichix/satwatch/internal/service"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStorage implements the Storage interface using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	// Ensure directory exists for file-backed databases
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStorage{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new database transaction.
func (s *SQLiteStorage) BeginTx(ctx context.Context) (service.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &sqliteTransaction{
		tx:      tx,
		storage: s,
	}, nil
}

// sqliteTransaction wraps sql.Tx to implement service.Transaction.
type sqliteTransaction struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTransaction) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTransaction) Rollback() error {
	return t.tx.Rollback()
}

// Transaction methods delegate to the main storage with the transaction.
func (t *sqliteTransaction) SaveTransponder(ctx context.Context, transponder *model.Transponder) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransponder(transponder); err != nil {
		return err
	}
	return t.storage.saveTransponderTx(ctx, t.tx, transponder)
}

func (t *sqliteTransaction) GetTransponder(ctx context.Context, key model.TransponderKey) (*model.Transponder, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}
	return t.storage.getTransponderTx(ctx, t.tx, key)
}

func (t *sqliteTransaction) ListTransponders(ctx context.Context) ([]model.Transponder, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.listTranspondersTx(ctx, t.tx)
}

func (t *sqliteTransaction) TouchTransponder(ctx context.Context, key model.TransponderKey, observedAt time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}
	return t.storage.touchTransponderTx(ctx, t.tx, key, observedAt)
}

func (t *sqliteTransaction) GetRecord(ctx context.Context, key model.TransponderKey) (*model.ClassificationRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}
	return t.storage.getRecordTx(ctx, t.tx, key)
}

func (t *sqliteTransaction) SaveRecord(ctx context.Context, record *model.ClassificationRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRecord(record); err != nil {
		return err
	}
	return t.storage.saveRecordTx(ctx, t.tx, record)
}

func (t *sqliteTransaction) ListRecords(ctx context.Context) ([]model.ClassificationRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.listRecordsTx(ctx, t.tx)
}

func (t *sqliteTransaction) ConsumeSegment(ctx context.Context, key model.TransponderKey, fingerprint, passID string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateKey(key); err != nil {
		return false, err
	}
	if err := validateString(fingerprint, "fingerprint"); err != nil {
		return false, err
	}
	return t.storage.consumeSegmentTx(ctx, t.tx, key, fingerprint, passID)
}

func (t *sqliteTransaction) CountDistinctPasses(ctx context.Context, key model.TransponderKey) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	return t.storage.countDistinctPassesTx(ctx, t.tx, key)
}

func (t *sqliteTransaction) AppendTransition(ctx context.Context, transition *model.VerdictTransition) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransition(transition); err != nil {
		return err
	}
	return t.storage.appendTransitionTx(ctx, t.tx, transition)
}

func (t *sqliteTransaction) History(ctx context.Context, key model.TransponderKey) ([]model.VerdictTransition, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}
	return t.storage.historyTx(ctx, t.tx, key)
}

func (t *sqliteTransaction) IncrementRejectCount(ctx context.Context, key model.TransponderKey, reason string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.incrementRejectCountTx(ctx, t.tx, key, reason)
}

func (t *sqliteTransaction) RejectCount(ctx context.Context, key model.TransponderKey) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	return t.storage.rejectCountTx(ctx, t.tx, key)
}

func (t *sqliteTransaction) OpenCase(ctx context.Context, disclosureCase *model.DisclosureCase) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateCase(disclosureCase); err != nil {
		return err
	}
	return t.storage.openCaseTx(ctx, t.tx, disclosureCase)
}

func (t *sqliteTransaction) GetOpenCase(ctx context.Context, key model.TransponderKey) (*model.DisclosureCase, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getOpenCaseTx(ctx, t.tx, key)
}

func (t *sqliteTransaction) UpdateCase(ctx context.Context, disclosureCase *model.DisclosureCase) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateCase(disclosureCase); err != nil {
		return err
	}
	return t.storage.updateCaseTx(ctx, t.tx, disclosureCase)
}

func (t *sqliteTransaction) ListCases(ctx context.Context, filter service.CaseFilter) ([]model.DisclosureCase, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.listCasesTx(ctx, t.tx, filter)
}

func (t *sqliteTransaction) Migrate(_ context.Context) error {
	// Migrations should not be run within a transaction
	return fmt.Errorf("migrations cannot be run within a transaction")
}

func (t *sqliteTransaction) BeginTx(_ context.Context) (service.Transaction, error) {
	// Nested transactions not supported
	return nil, fmt.Errorf("nested transactions not supported")
}

func (t *sqliteTransaction) Close() error {
	// Transactions should be committed or rolled back, not closed
	return fmt.Errorf("transactions must be committed or rolled back, not closed")
}
