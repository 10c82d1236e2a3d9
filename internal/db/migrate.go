package db

import "strategyavs/internal/models"

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil {
		return nil
	}
	return db.Gorm.AutoMigrate(
		&models.ValidationRecord{},
		&models.OperatorVote{},
		&models.AttestationRecord{},
		&models.PipelineRun{},
	)
}
