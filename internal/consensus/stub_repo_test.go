package consensus

import (
	"context"
	"sort"
	"sync"
	"time"

	"strategyavs/internal/models"
	"strategyavs/internal/repository"
)

// stubRepo is an in-memory Repository for aggregator tests.
type stubRepo struct {
	mu      sync.Mutex
	records map[string]models.ValidationRecord
	votes   map[string]map[string]models.OperatorVote // task -> operator -> vote
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		records: map[string]models.ValidationRecord{},
		votes:   map[string]map[string]models.OperatorVote{},
	}
}

func (r *stubRepo) UpsertValidationRecord(ctx context.Context, item *models.ValidationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[item.TaskID] = *item
	return nil
}

func (r *stubRepo) GetValidationRecordByTaskID(ctx context.Context, taskID string) (*models.ValidationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[taskID]
	if !ok {
		return nil, nil
	}
	out := record
	return &out, nil
}

func (r *stubRepo) GetValidationRecordByStrategyHash(ctx context.Context, hash string) (*models.ValidationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, record := range r.records {
		if record.StrategyHash == hash {
			out := record
			return &out, nil
		}
	}
	return nil, nil
}

func (r *stubRepo) ListValidationRecords(ctx context.Context, params repository.ListValidationRecordsParams) ([]models.ValidationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ValidationRecord
	for _, record := range r.records {
		if params.Status != nil && record.Status != *params.Status {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

func (r *stubRepo) CountValidationRecords(ctx context.Context, status *string) (int64, error) {
	items, _ := r.ListValidationRecords(ctx, repository.ListValidationRecordsParams{Status: status})
	return int64(len(items)), nil
}

func (r *stubRepo) ListPendingTaskIDsStartedBefore(ctx context.Context, before time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for id, record := range r.records {
		if record.Status == models.StatusPending && record.StartedAt.Before(before) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *stubRepo) UpsertVote(ctx context.Context, item *models.OperatorVote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	byOperator, ok := r.votes[item.TaskID]
	if !ok {
		byOperator = map[string]models.OperatorVote{}
		r.votes[item.TaskID] = byOperator
	}
	byOperator[item.OperatorID] = *item
	return nil
}

func (r *stubRepo) ListVotesByTaskID(ctx context.Context, taskID string) ([]models.OperatorVote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byOperator := r.votes[taskID]
	operatorIDs := make([]string, 0, len(byOperator))
	for id := range byOperator {
		operatorIDs = append(operatorIDs, id)
	}
	sort.Strings(operatorIDs)
	out := make([]models.OperatorVote, 0, len(byOperator))
	for _, id := range operatorIDs {
		out = append(out, byOperator[id])
	}
	return out, nil
}

func (r *stubRepo) UpsertAttestation(ctx context.Context, item *models.AttestationRecord) error {
	return nil
}

func (r *stubRepo) GetAttestationByHashAndOperator(ctx context.Context, hash, operator string) (*models.AttestationRecord, error) {
	return nil, nil
}

func (r *stubRepo) ListAttestationsByStrategyHash(ctx context.Context, hash string) ([]models.AttestationRecord, error) {
	return nil, nil
}

func (r *stubRepo) InsertPipelineRun(ctx context.Context, item *models.PipelineRun) error {
	return nil
}

func (r *stubRepo) ListPipelineRuns(ctx context.Context, params repository.ListPipelineRunsParams) ([]models.PipelineRun, error) {
	return nil, nil
}
