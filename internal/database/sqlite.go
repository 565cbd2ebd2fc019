package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/showoff-life/showoff-backend/internal/coin"
	"github.com/showoff-life/showoff-backend/internal/competition"
	"github.com/showoff-life/showoff-backend/internal/entry"
	"github.com/showoff-life/showoff-backend/internal/jobs"
	"github.com/showoff-life/showoff-backend/internal/selfie"
	"github.com/showoff-life/showoff-backend/internal/users"
	"github.com/showoff-life/showoff-backend/internal/vote"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&users.User{},
		&coin.Transaction{},
		&competition.Competition{},
		&competition.Prize{},
		&entry.Entry{},
		&vote.Vote{},
		&selfie.Selfie{},
		&jobs.Job{},
		&migrationRecord{},
	); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}
