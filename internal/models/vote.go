package models

import "time"

const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
	DecisionAbstain = "abstain"
)

// OperatorVote is one operator's verdict on one verification task.
// Confidence is an opaque 0-100 score produced by the operator's own
// analysis; the aggregator never synthesizes it.
type OperatorVote struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	TaskID     string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_votes_task_operator"`
	OperatorID string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_votes_task_operator"`
	Decision   string    `gorm:"type:varchar(10);not null"`
	Confidence float64   `gorm:"not null"`
	CreatedAt  time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (OperatorVote) TableName() string {
	return "operator_votes"
}
