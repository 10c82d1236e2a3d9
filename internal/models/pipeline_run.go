package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"

	StageSimulate = "simulate"
	StageAttest   = "attest"
	StageSubmit   = "submit"
)

// PipelineRun is the operator's journal row for one strategy verification:
// what was simulated, what the assessment said, and where submission ended up.
type PipelineRun struct {
	ID           uint64  `gorm:"primaryKey;autoIncrement"`
	RunID        string  `gorm:"type:varchar(36);not null;uniqueIndex"`
	StrategyHash string  `gorm:"type:varchar(66);not null;index"`
	Status       string  `gorm:"type:varchar(20);not null;index"`
	FailedStage  *string `gorm:"type:varchar(20)"`
	FailureMsg   *string `gorm:"type:text"`

	GasCost   uint64         `gorm:"not null"`
	Output    string         `gorm:"type:numeric(78,0)"`
	Safe      bool           `gorm:"not null"`
	RiskScore int            `gorm:"not null"`
	Risks     datatypes.JSON `gorm:"type:jsonb"`
	TxID      *string        `gorm:"type:varchar(100)"`

	StartedAt  time.Time `gorm:"type:timestamptz;not null"`
	FinishedAt time.Time `gorm:"type:timestamptz;not null"`
	CreatedAt  time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (PipelineRun) TableName() string {
	return "pipeline_runs"
}
