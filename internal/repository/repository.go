package repository

import (
	"context"
	"time"

	"strategyavs/internal/models"
)

// Repository is the persistence surface shared by the aggregator and the
// operator journal.
type Repository interface {
	// Validation records (consensus state).
	UpsertValidationRecord(ctx context.Context, item *models.ValidationRecord) error
	GetValidationRecordByTaskID(ctx context.Context, taskID string) (*models.ValidationRecord, error)
	GetValidationRecordByStrategyHash(ctx context.Context, hash string) (*models.ValidationRecord, error)
	ListValidationRecords(ctx context.Context, params ListValidationRecordsParams) ([]models.ValidationRecord, error)
	CountValidationRecords(ctx context.Context, status *string) (int64, error)
	ListPendingTaskIDsStartedBefore(ctx context.Context, before time.Time) ([]string, error)

	// Votes. Upsert replaces a prior vote by the same (task, operator) pair.
	UpsertVote(ctx context.Context, item *models.OperatorVote) error
	ListVotesByTaskID(ctx context.Context, taskID string) ([]models.OperatorVote, error)

	// Attestations.
	UpsertAttestation(ctx context.Context, item *models.AttestationRecord) error
	GetAttestationByHashAndOperator(ctx context.Context, hash, operator string) (*models.AttestationRecord, error)
	ListAttestationsByStrategyHash(ctx context.Context, hash string) ([]models.AttestationRecord, error)

	// Operator pipeline journal.
	InsertPipelineRun(ctx context.Context, item *models.PipelineRun) error
	ListPipelineRuns(ctx context.Context, params ListPipelineRunsParams) ([]models.PipelineRun, error)
}

type ListValidationRecordsParams struct {
	Limit   int
	Offset  int
	Status  *string
	Since   *time.Time
	OrderBy string
	Asc     *bool
}

type ListPipelineRunsParams struct {
	Limit        int
	Offset       int
	Status       *string
	StrategyHash *string
	Since        *time.Time
}
