package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/thiago-r-goveia/recordkit/internal/database"
)

// openStore connects to Postgres when DATABASE_URL is set and to the local
// SQLite file otherwise. Tables are created if missing.
func openStore(ctx context.Context) (database.DBManager, error) {
	var dbManager database.DBManager
	if cfg.UsePostgres() {
		dbpool, err := database.ConnectDB(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("unable to connect to database: %w", err)
		}
		dbManager = database.NewPostgresDBManager(ctx, dbpool)
		logger.Debug("Using Postgres store")
	} else {
		sqlite, err := database.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		dbManager = sqlite
		logger.Debug("Using SQLite store", zap.String("path", cfg.SQLitePath))
	}

	if err := dbManager.CreateTables(); err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return dbManager, nil
}
