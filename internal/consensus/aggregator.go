package consensus

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"strategyavs/internal/models"
	"strategyavs/internal/repository"
	"strategyavs/internal/scoring"
)

// ErrUnknownDecision rejects votes outside approve/reject/abstain.
var ErrUnknownDecision = errors.New("consensus: unknown vote decision")

// RequiredQuorum computes the approvals needed for a task with the given
// operator count: ceil(count * fraction).
func RequiredQuorum(operatorCount int, fraction float64) int {
	if operatorCount <= 0 {
		return 0
	}
	if fraction <= 0 || fraction > 1 {
		fraction = 0.67
	}
	return int(math.Ceil(float64(operatorCount) * fraction))
}

// Aggregator tallies operator votes into per-task validation records.
// Every mutation of a task's record happens under that task's own lock, so
// approvals only ever increase while pending and a terminal status is never
// left again.
type Aggregator struct {
	Repo           repository.Repository
	Scoring        *scoring.Engine
	QuorumFraction float64
	PollTimeout    time.Duration
	Logger         *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	now   func() time.Time
}

// SubmitVote registers one operator's verdict on a task and returns the
// updated record. A repeat vote by the same operator replaces the earlier
// one while the task is pending; any vote after a terminal decision is a
// no-op.
func (a *Aggregator) SubmitVote(ctx context.Context, taskID, strategyHash string, operatorCount int, vote models.OperatorVote) (*models.ValidationRecord, error) {
	if a == nil || a.Repo == nil {
		return nil, errors.New("aggregator not configured")
	}
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, errors.New("task id is required")
	}
	if operatorCount <= 0 {
		return nil, fmt.Errorf("operator count must be positive, got %d", operatorCount)
	}
	switch vote.Decision {
	case models.DecisionApprove, models.DecisionReject, models.DecisionAbstain:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDecision, vote.Decision)
	}

	lock := a.taskLock(taskID)
	lock.Lock()
	defer lock.Unlock()

	record, err := a.Repo.GetValidationRecordByTaskID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		record = &models.ValidationRecord{
			TaskID:         taskID,
			StrategyHash:   strings.ToLower(strings.TrimSpace(strategyHash)),
			OperatorCount:  operatorCount,
			RequiredQuorum: RequiredQuorum(operatorCount, a.QuorumFraction),
			Status:         models.StatusPending,
			StartedAt:      a.clock(),
		}
	}
	if record.Terminal() {
		if a.Logger != nil {
			a.Logger.Debug("consensus: late vote ignored",
				zap.String("task_id", taskID),
				zap.String("operator_id", vote.OperatorID),
				zap.String("status", record.Status),
			)
		}
		return record, nil
	}

	vote.TaskID = taskID
	if err := a.Repo.UpsertVote(ctx, &vote); err != nil {
		return nil, err
	}
	votes, err := a.Repo.ListVotesByTaskID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	t := tallyVotes(votes)
	record.Approvals = t.Approvals
	record.Rejections = t.Rejections
	record.Abstentions = t.Abstentions
	record.ConsensusPct = 100 * float64(t.Approvals) / float64(record.OperatorCount)
	record.AggConfidence = t.Confidence
	record.AggRiskScore = a.score(t)

	a.decide(record, len(votes))

	if err := a.Repo.UpsertValidationRecord(ctx, record); err != nil {
		return nil, err
	}
	if record.Terminal() && a.Logger != nil {
		a.Logger.Info("consensus: task decided",
			zap.String("task_id", taskID),
			zap.String("status", record.Status),
			zap.Int("approvals", record.Approvals),
			zap.Int("quorum", record.RequiredQuorum),
			zap.Float64("consensus_pct", record.ConsensusPct),
		)
	}
	return record, nil
}

// decide applies the state machine: validated at quorum, rejected once
// quorum is mathematically unreachable.
func (a *Aggregator) decide(record *models.ValidationRecord, votesReceived int) {
	if record.Approvals >= record.RequiredQuorum {
		a.finish(record, models.StatusValidated)
		return
	}
	remaining := record.OperatorCount - votesReceived
	if remaining < 0 {
		remaining = 0
	}
	if record.Approvals+remaining < record.RequiredQuorum {
		a.finish(record, models.StatusRejected)
	}
}

func (a *Aggregator) finish(record *models.ValidationRecord, status string) {
	record.Status = status
	decided := a.clock()
	record.DecidedAt = &decided
}

// SweepTimeouts rejects every pending task whose deadline has passed. Wired
// to a cron tick so no task is left pending forever.
func (a *Aggregator) SweepTimeouts(ctx context.Context) {
	if a == nil || a.Repo == nil {
		return
	}
	timeout := a.PollTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	cutoff := a.clock().Add(-timeout)
	taskIDs, err := a.Repo.ListPendingTaskIDsStartedBefore(ctx, cutoff)
	if err != nil {
		if a.Logger != nil {
			a.Logger.Warn("consensus: timeout sweep failed", zap.Error(err))
		}
		return
	}
	for _, taskID := range taskIDs {
		if err := a.expire(ctx, taskID); err != nil && a.Logger != nil {
			a.Logger.Warn("consensus: failed to expire task",
				zap.String("task_id", taskID),
				zap.Error(err),
			)
		}
	}
}

func (a *Aggregator) expire(ctx context.Context, taskID string) error {
	lock := a.taskLock(taskID)
	lock.Lock()
	defer lock.Unlock()

	record, err := a.Repo.GetValidationRecordByTaskID(ctx, taskID)
	if err != nil {
		return err
	}
	if record == nil || record.Terminal() {
		return nil
	}
	a.finish(record, models.StatusRejected)
	if err := a.Repo.UpsertValidationRecord(ctx, record); err != nil {
		return err
	}
	if a.Logger != nil {
		a.Logger.Info("consensus: task timed out",
			zap.String("task_id", taskID),
			zap.Int("approvals", record.Approvals),
			zap.Int("quorum", record.RequiredQuorum),
		)
	}
	return nil
}

func (a *Aggregator) score(t tally) int {
	factors := distillFactors(t)
	if a.Scoring != nil {
		score, err := a.Scoring.ScoreInContext(factors, scoring.Context{RiskTolerance: 0.5, MarketVolatility: 0.5})
		if err == nil {
			return score
		}
	}
	score, err := scoring.Score(factors)
	if err != nil {
		return 0
	}
	return score
}

func (a *Aggregator) taskLock(taskID string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.locks == nil {
		a.locks = make(map[string]*sync.Mutex)
	}
	lock, ok := a.locks[taskID]
	if !ok {
		lock = &sync.Mutex{}
		a.locks[taskID] = lock
	}
	return lock
}

func (a *Aggregator) clock() time.Time {
	if a.now != nil {
		return a.now()
	}
	return time.Now().UTC()
}
