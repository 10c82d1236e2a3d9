package operator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"strategyavs/internal/analysis"
	"strategyavs/internal/attestation"
	"strategyavs/internal/models"
	"strategyavs/internal/repository"
	"strategyavs/internal/scoring"
	"strategyavs/internal/submitter"
)

type StrategySimulator interface {
	Run(ctx context.Context, strategy models.Strategy) models.SimulationResult
}

type Analyzer interface {
	Assess(ctx context.Context, strategy models.Strategy, sim models.SimulationResult) (models.RiskAssessment, error)
}

type AttestationSigner interface {
	Sign(att models.Attestation) (models.SignedAttestation, error)
}

type AttestationSubmitter interface {
	Submit(ctx context.Context, strategy models.Strategy, signed models.SignedAttestation) (string, error)
}

// Pipeline runs one full verification per strategy: simulate, analyze and
// score, attest, submit. A simulation failure aborts before any attestation
// exists; an unsafe verdict still attests with safety=false, since the
// refusal to execute lives behind the gateway's safety gate.
type Pipeline struct {
	Simulator StrategySimulator
	Analysis  Analyzer
	Scoring   *scoring.Engine
	Signer    AttestationSigner
	Submitter AttestationSubmitter
	Repo      repository.Repository
	Logger    *zap.Logger

	// Submission retry policy: transient failures only, capped exponential
	// backoff. Permanent rejections surface immediately.
	MaxSubmitAttempts int
	SubmitBackoffBase time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

func (p *Pipeline) Handle(ctx context.Context, strategy models.Strategy) error {
	if p == nil {
		return errors.New("pipeline not configured")
	}
	hash := strategy.Hash()
	runID := uuid.NewString()
	started := time.Now().UTC()
	if p.Logger != nil {
		p.Logger.Info("pipeline: start",
			zap.String("run_id", runID),
			zap.String("strategy_hash", hash.Hex()),
		)
	}

	sim := p.Simulator.Run(ctx, strategy)
	if !sim.Success {
		err := fmt.Errorf("simulation failed: %s", sim.Reason)
		if p.Logger != nil {
			p.Logger.Warn("pipeline: aborted at simulation",
				zap.String("run_id", runID),
				zap.String("strategy_hash", hash.Hex()),
				zap.String("reason", sim.Reason),
			)
		}
		p.journal(ctx, runID, hash.Hex(), started, sim, models.RiskAssessment{}, nil, models.StageSimulate, err)
		return err
	}

	assessment := p.assess(ctx, strategy, sim)
	if !sim.MeetsMinOutput(strategy) {
		assessment.Safe = false
		assessment.Risks = append(assessment.Risks, "simulated output below minimum acceptable output")
	}
	assessment.RiskScore = p.mergeScore(assessment, sim, strategy)

	att := attestation.Build(strategy, sim, assessment)
	signed, err := p.Signer.Sign(att)
	if err != nil {
		p.journal(ctx, runID, hash.Hex(), started, sim, assessment, nil, models.StageAttest, err)
		return fmt.Errorf("attestation signing failed: %w", err)
	}

	txID, err := p.submitWithRetry(ctx, strategy, signed)
	p.recordAttestation(ctx, signed, txID)
	if err != nil {
		p.journal(ctx, runID, hash.Hex(), started, sim, assessment, strPtr(txID), models.StageSubmit, err)
		return err
	}

	p.journal(ctx, runID, hash.Hex(), started, sim, assessment, strPtr(txID), "", nil)
	if p.Logger != nil {
		p.Logger.Info("pipeline: done",
			zap.String("run_id", runID),
			zap.String("strategy_hash", hash.Hex()),
			zap.Bool("safe", assessment.Safe),
			zap.Int("risk_score", assessment.RiskScore),
			zap.String("tx_id", txID),
		)
	}
	return nil
}

// assess never fails the pipeline. A degraded or rate-limited advisory
// service yields the conservative unsafe verdict instead.
func (p *Pipeline) assess(ctx context.Context, strategy models.Strategy, sim models.SimulationResult) models.RiskAssessment {
	if p.Analysis == nil {
		return conservative("analysis service not configured")
	}
	assessment, err := p.Analysis.Assess(ctx, strategy, sim)
	if err == nil {
		return assessment
	}
	if p.Logger != nil {
		if errors.Is(err, analysis.ErrRateLimited) {
			p.Logger.Warn("pipeline: analysis rate limited",
				zap.String("strategy_hash", strategy.Hash().Hex()),
				zap.Error(err),
			)
		} else {
			p.Logger.Warn("pipeline: analysis failed",
				zap.String("strategy_hash", strategy.Hash().Hex()),
				zap.Error(err),
			)
		}
	}
	return conservative("advisory service unavailable: " + err.Error())
}

// mergeScore folds the advisory verdict and the simulation outcome into one
// deterministic risk score.
func (p *Pipeline) mergeScore(assessment models.RiskAssessment, sim models.SimulationResult, strategy models.Strategy) int {
	executionScore := 0.0
	if !sim.MeetsMinOutput(strategy) {
		executionScore = 100
	}
	factors := []models.RiskFactor{
		{Name: scoring.FactorRisk, Score: float64(assessment.RiskScore), Weight: 0.7, Description: "advisory risk verdict"},
		{Name: "execution", Score: executionScore, Weight: 0.3, Description: "simulated output vs minimum"},
	}
	var score int
	var err error
	if p.Scoring != nil {
		score, err = p.Scoring.ScoreInContext(factors, scoring.Context{MarketVolatility: 0.5, RiskTolerance: 0.5})
	} else {
		score, err = scoring.Score(factors)
	}
	if err != nil {
		return assessment.RiskScore
	}
	return score
}

func (p *Pipeline) submitWithRetry(ctx context.Context, strategy models.Strategy, signed models.SignedAttestation) (string, error) {
	attempts := p.MaxSubmitAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := p.SubmitBackoffBase
	if backoff <= 0 {
		backoff = time.Second
	}
	var lastErr error
	var lastTxID string
	for attempt := 1; attempt <= attempts; attempt++ {
		txID, err := p.Submitter.Submit(ctx, strategy, signed)
		if err == nil {
			return txID, nil
		}
		lastErr = err
		if txID != "" {
			lastTxID = txID
		}
		var subErr *submitter.SubmissionError
		if !errors.As(err, &subErr) || !subErr.Transient {
			return lastTxID, err
		}
		if attempt == attempts {
			break
		}
		if p.Logger != nil {
			p.Logger.Warn("pipeline: transient submission failure, retrying",
				zap.String("strategy_hash", strategy.Hash().Hex()),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
		}
		if err := p.pause(ctx, backoff); err != nil {
			return lastTxID, err
		}
		backoff *= 2
	}
	return lastTxID, lastErr
}

func (p *Pipeline) pause(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// recordAttestation persists the signed attestation so it can be served by
// strategy hash, whether or not submission succeeded. Best-effort, like the
// journal.
func (p *Pipeline) recordAttestation(ctx context.Context, signed models.SignedAttestation, txID string) {
	if p.Repo == nil {
		return
	}
	rec := &models.AttestationRecord{
		StrategyHash: signed.Attestation.StrategyHash.Hex(),
		Operator:     strings.ToLower(signed.Operator.Hex()),
		GasCost:      signed.Attestation.GasCost,
		Output:       decString(signed.Attestation.Output),
		Safe:         signed.Attestation.Safe,
		Signature:    signed.Signature.String(),
		TxID:         strPtr(txID),
	}
	if err := p.Repo.UpsertAttestation(ctx, rec); err != nil && p.Logger != nil {
		p.Logger.Warn("pipeline: attestation record write failed",
			zap.String("strategy_hash", rec.StrategyHash),
			zap.Error(err),
		)
	}
}

// journal records the run outcome. Persistence is best-effort: a journal
// write failure never changes the pipeline result.
func (p *Pipeline) journal(ctx context.Context, runID, hash string, started time.Time, sim models.SimulationResult, assessment models.RiskAssessment, txID *string, failedStage string, runErr error) {
	if p.Repo == nil {
		return
	}
	run := &models.PipelineRun{
		RunID:        runID,
		StrategyHash: hash,
		Status:       models.RunStatusCompleted,
		GasCost:      sim.GasCost,
		Output:       outputString(sim),
		Safe:         assessment.Safe,
		RiskScore:    assessment.RiskScore,
		Risks:        risksJSON(assessment.Risks),
		TxID:         txID,
		StartedAt:    started,
		FinishedAt:   time.Now().UTC(),
	}
	if runErr != nil {
		run.Status = models.RunStatusFailed
		run.FailedStage = strPtr(failedStage)
		run.FailureMsg = strPtr(runErr.Error())
	}
	if err := p.Repo.InsertPipelineRun(ctx, run); err != nil && p.Logger != nil {
		p.Logger.Warn("pipeline: journal write failed",
			zap.String("run_id", runID),
			zap.Error(err),
		)
	}
}

func conservative(reason string) models.RiskAssessment {
	return models.RiskAssessment{
		Safe:           false,
		Reasoning:      reason,
		Recommendation: "manual review required",
		RiskScore:      100,
	}
}

func risksJSON(risks []string) datatypes.JSON {
	if len(risks) == 0 {
		return nil
	}
	raw, err := json.Marshal(risks)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

func outputString(sim models.SimulationResult) string {
	return decString(sim.Output)
}

func decString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
