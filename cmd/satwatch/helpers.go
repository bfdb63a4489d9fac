package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/viper"

	"github.com/elaichix/satwatch/internal/common"
	"github.com/elaichix/satwatch/internal/config"
	"github.com/elaichix/satwatch/internal/model"
	"github.com/elaichix/satwatch/internal/service"
	"github.com/elaichix/satwatch/internal/storage"
)

// openStorage opens the ledger database at the configured path and ensures
// the schema is current.
func openStorage(ctx context.Context) (service.Storage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = config.DefaultDatabasePath()
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, common.NewUserError(fmt.Sprintf("failed to open ledger database at %s", dbPath), err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, common.NewUserError("failed to migrate ledger database", err)
	}

	return store, nil
}

// logNotifier reports disclosure case changes through the structured log.
// The operator contact workflow itself lives outside this tool.
type logNotifier struct{}

func (logNotifier) CaseChanged(_ context.Context, disclosureCase model.DisclosureCase, previous model.CaseStatus) error {
	slog.Info("Disclosure case update",
		"case_id", disclosureCase.ID,
		"transponder", disclosureCase.Key.String(),
		"previous", previous,
		"status", disclosureCase.Status)
	return nil
}
