package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillVoteDays   = "2026-07-14_backfill_vote_days"
	migrationRepairVoteCounters = "2026-07-14_repair_vote_counters"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillVoteDays, apply: backfillVoteDays},
		{name: migrationRepairVoteCounters, apply: repairVoteCounters},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Ballots written before the vote_day column existed derive the day from
// their creation timestamp.
func backfillVoteDays(db *gorm.DB) error {
	return db.Exec("UPDATE votes SET vote_day = substr(created_at, 1, 10) WHERE vote_day = '';").Error
}

// The denormalized per-entry counter must always equal the ballot count;
// recompute it from the ballots of record.
func repairVoteCounters(db *gorm.DB) error {
	return db.Exec(`UPDATE showcase_entries SET votes_count = (
		SELECT COUNT(*) FROM votes
		WHERE votes.kind = 'entry' AND votes.target_id = showcase_entries.entry_id
	);`).Error
}
