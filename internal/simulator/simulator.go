package simulator

import (
	"context"
	"errors"
	"math/big"
	"time"

	"go.uber.org/zap"

	"strategyavs/internal/chain"
	"strategyavs/internal/models"
)

// ChainSimulator is the slice of the gateway client the simulator needs.
type ChainSimulator interface {
	Simulate(ctx context.Context, strategy models.Strategy) (chain.SimulateResponse, error)
}

// Simulator dry-runs a strategy's target call against a read-only snapshot
// of current state. It never returns an error: any failure mode (revert,
// timeout, unreachable node) folds into Success=false with a reason so the
// pipeline can abort gracefully.
type Simulator struct {
	Client  ChainSimulator
	Timeout time.Duration
	Logger  *zap.Logger
}

func (s *Simulator) Run(ctx context.Context, strategy models.Strategy) models.SimulationResult {
	if s == nil || s.Client == nil {
		return models.SimulationResult{Success: false, Reason: "simulator not configured"}
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := s.Client.Simulate(ctx, strategy)
	if err != nil {
		reason := "simulation request failed: " + err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "simulation timed out"
		}
		if s.Logger != nil {
			s.Logger.Warn("simulator: request failed",
				zap.String("strategy_hash", strategy.Hash().Hex()),
				zap.Error(err),
			)
		}
		return models.SimulationResult{Success: false, Reason: reason}
	}

	output := resp.Output
	if output == nil {
		output = new(big.Int)
	}
	result := models.SimulationResult{
		Success: resp.Success,
		GasCost: resp.GasUsed,
		Output:  output,
		Reason:  resp.Reason,
	}
	if !result.Success && result.Reason == "" {
		result.Reason = "execution reverted"
	}
	if s.Logger != nil {
		s.Logger.Debug("simulator: done",
			zap.String("strategy_hash", strategy.Hash().Hex()),
			zap.Bool("success", result.Success),
			zap.Uint64("gas_cost", result.GasCost),
			zap.String("output", output.String()),
		)
	}
	return result
}
