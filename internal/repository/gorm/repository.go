package gormrepository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"strategyavs/internal/models"
	"strategyavs/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// --- Validation records ------------------------------------------------------

func (s *Store) UpsertValidationRecord(ctx context.Context, item *models.ValidationRecord) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.TaskID) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "task_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"operator_count",
			"required_quorum",
			"approvals",
			"rejections",
			"abstentions",
			"consensus_pct",
			"agg_confidence",
			"agg_risk_score",
			"status",
			"decided_at",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetValidationRecordByTaskID(ctx context.Context, taskID string) (*models.ValidationRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, nil
	}
	var item models.ValidationRecord
	err := s.db.WithContext(ctx).Model(&models.ValidationRecord{}).Where("task_id = ?", taskID).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetValidationRecordByStrategyHash(ctx context.Context, hash string) (*models.ValidationRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	hash = strings.ToLower(strings.TrimSpace(hash))
	if hash == "" {
		return nil, nil
	}
	var item models.ValidationRecord
	err := s.db.WithContext(ctx).
		Model(&models.ValidationRecord{}).
		Where("strategy_hash = ?", hash).
		Order("created_at desc").
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListValidationRecords(ctx context.Context, params repository.ListValidationRecordsParams) ([]models.ValidationRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.ValidationRecord{})
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.ValidationRecord
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountValidationRecords(ctx context.Context, status *string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	query := s.db.WithContext(ctx).Model(&models.ValidationRecord{})
	if status != nil && strings.TrimSpace(*status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*status))
	}
	var count int64
	err := query.Count(&count).Error
	return count, err
}

func (s *Store) ListPendingTaskIDsStartedBefore(ctx context.Context, before time.Time) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&models.ValidationRecord{}).
		Where("status = ?", models.StatusPending).
		Where("started_at < ?", before).
		Pluck("task_id", &ids).Error
	return ids, err
}

// --- Votes -------------------------------------------------------------------

func (s *Store) UpsertVote(ctx context.Context, item *models.OperatorVote) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.TaskID) == "" || strings.TrimSpace(item.OperatorID) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "task_id"}, {Name: "operator_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"decision",
			"confidence",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) ListVotesByTaskID(ctx context.Context, taskID string) ([]models.OperatorVote, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, nil
	}
	var items []models.OperatorVote
	err := s.db.WithContext(ctx).
		Model(&models.OperatorVote{}).
		Where("task_id = ?", taskID).
		Order("created_at asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- Attestations ------------------------------------------------------------

func (s *Store) UpsertAttestation(ctx context.Context, item *models.AttestationRecord) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.StrategyHash) == "" || strings.TrimSpace(item.Operator) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "strategy_hash"}, {Name: "operator"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"gas_cost",
			"output",
			"safe",
			"signature",
			"tx_id",
		}),
	}).Create(item).Error
}

func (s *Store) GetAttestationByHashAndOperator(ctx context.Context, hash, operator string) (*models.AttestationRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	hash = strings.ToLower(strings.TrimSpace(hash))
	operator = strings.ToLower(strings.TrimSpace(operator))
	if hash == "" || operator == "" {
		return nil, nil
	}
	var item models.AttestationRecord
	err := s.db.WithContext(ctx).
		Model(&models.AttestationRecord{}).
		Where("strategy_hash = ? AND operator = ?", hash, operator).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListAttestationsByStrategyHash(ctx context.Context, hash string) ([]models.AttestationRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	hash = strings.ToLower(strings.TrimSpace(hash))
	if hash == "" {
		return nil, nil
	}
	var items []models.AttestationRecord
	err := s.db.WithContext(ctx).
		Model(&models.AttestationRecord{}).
		Where("strategy_hash = ?", hash).
		Order("created_at asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- Pipeline runs -----------------------------------------------------------

func (s *Store) InsertPipelineRun(ctx context.Context, item *models.PipelineRun) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListPipelineRuns(ctx context.Context, params repository.ListPipelineRunsParams) ([]models.PipelineRun, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.PipelineRun{})
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.StrategyHash != nil && strings.TrimSpace(*params.StrategyHash) != "" {
		query = query.Where("strategy_hash = ?", strings.ToLower(strings.TrimSpace(*params.StrategyHash)))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.PipelineRun
	if err := query.Order("created_at desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Helpers -----------------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	switch column {
	case "created_at", "updated_at", "started_at", "status":
	default:
		column = fallback
	}
	dir := "desc"
	if asc != nil && *asc {
		dir = "asc"
	}
	return query.Order(column + " " + dir)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
