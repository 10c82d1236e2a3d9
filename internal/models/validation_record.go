package models

import "time"

const (
	StatusPending   = "pending"
	StatusValidated = "validated"
	StatusRejected  = "rejected"
)

// ValidationRecord tracks one verification task from first vote to its
// terminal decision. Approvals only ever increase while the task is pending,
// and a terminal status is never left again.
type ValidationRecord struct {
	ID             uint64  `gorm:"primaryKey;autoIncrement"`
	TaskID         string  `gorm:"type:varchar(100);not null;uniqueIndex"`
	StrategyHash   string  `gorm:"type:varchar(66);not null;index"`
	OperatorCount  int     `gorm:"not null"`
	RequiredQuorum int     `gorm:"not null"`
	Approvals      int     `gorm:"not null"`
	Rejections     int     `gorm:"not null"`
	Abstentions    int     `gorm:"not null"`
	ConsensusPct   float64 `gorm:"not null"`
	AggConfidence  float64 `gorm:"not null"`
	AggRiskScore   int     `gorm:"not null"`
	Status         string  `gorm:"type:varchar(20);not null;index;default:'pending'"`

	StartedAt time.Time  `gorm:"type:timestamptz;not null"`
	DecidedAt *time.Time `gorm:"type:timestamptz"`
	CreatedAt time.Time  `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"type:timestamptz;autoUpdateTime"`
}

func (ValidationRecord) TableName() string {
	return "validation_records"
}

// Terminal reports whether the record has left the pending state.
func (r ValidationRecord) Terminal() bool {
	return r.Status != StatusPending
}
