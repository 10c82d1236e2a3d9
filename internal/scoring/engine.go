package scoring

import (
	"errors"
	"fmt"
	"math"

	"strategyavs/internal/config"
	"strategyavs/internal/models"
)

// Factor names the context adjustment table keys on. Factors with other
// names pass through adjustments untouched.
const (
	FactorRisk      = "risk"
	FactorYield     = "yield"
	FactorLiquidity = "liquidity"
)

// ErrInvalidWeights is returned when a factor set's weights do not sum to 1.
// The engine rejects rather than silently renormalizing: a bad weight set is
// a caller bug, not an input condition.
var ErrInvalidWeights = errors.New("scoring: factor weights must sum to 1")

const weightEpsilon = 0.001

// Context carries the market and user signals that shift factor weights.
// Both are on a 0-1 scale.
type Context struct {
	MarketVolatility float64
	RiskTolerance    float64
}

type Engine struct {
	highVolatility float64
	lowTolerance   float64
}

func New(cfg config.ScoringConfig) *Engine {
	high := cfg.HighVolatilityThreshold
	if high <= 0 {
		high = 0.6
	}
	low := cfg.LowToleranceThreshold
	if low <= 0 {
		low = 0.3
	}
	return &Engine{highVolatility: high, lowTolerance: low}
}

// Score computes the weighted average of the factor scores, rounded to an
// integer and clamped to [0,100].
func Score(factors []models.RiskFactor) (int, error) {
	if err := validateWeights(factors); err != nil {
		return 0, err
	}
	return weightedScore(factors), nil
}

// ScoreInContext applies the documented weight adjustments before scoring:
//
//	market volatility above threshold: risk +0.10, yield -0.10
//	risk tolerance below threshold:    risk +0.15, liquidity +0.05, yield -0.20
//
// Adjusted weights are floored at zero and renormalized to sum to 1, so the
// result for a given (factors, context) pair is fully deterministic.
func (e *Engine) ScoreInContext(factors []models.RiskFactor, sctx Context) (int, error) {
	if e == nil {
		return Score(factors)
	}
	if err := validateWeights(factors); err != nil {
		return 0, err
	}

	adjusted := make([]models.RiskFactor, len(factors))
	copy(adjusted, factors)

	if sctx.MarketVolatility > e.highVolatility {
		shiftWeight(adjusted, FactorRisk, 0.10)
		shiftWeight(adjusted, FactorYield, -0.10)
	}
	if sctx.RiskTolerance < e.lowTolerance {
		shiftWeight(adjusted, FactorRisk, 0.15)
		shiftWeight(adjusted, FactorLiquidity, 0.05)
		shiftWeight(adjusted, FactorYield, -0.20)
	}

	total := 0.0
	for i := range adjusted {
		if adjusted[i].Weight < 0 {
			adjusted[i].Weight = 0
		}
		total += adjusted[i].Weight
	}
	if total <= 0 {
		return 0, fmt.Errorf("%w: adjusted weights sum to %.4f", ErrInvalidWeights, total)
	}
	for i := range adjusted {
		adjusted[i].Weight /= total
	}
	return weightedScore(adjusted), nil
}

func validateWeights(factors []models.RiskFactor) error {
	sum := 0.0
	for _, f := range factors {
		sum += f.Weight
	}
	if math.Abs(sum-1) > weightEpsilon {
		return fmt.Errorf("%w: got %.4f", ErrInvalidWeights, sum)
	}
	return nil
}

func weightedScore(factors []models.RiskFactor) int {
	total := 0.0
	for _, f := range factors {
		total += f.Score * f.Weight
	}
	rounded := int(math.Round(total))
	if rounded < 0 {
		return 0
	}
	if rounded > 100 {
		return 100
	}
	return rounded
}

func shiftWeight(factors []models.RiskFactor, name string, delta float64) {
	for i := range factors {
		if factors[i].Name == name {
			factors[i].Weight += delta
			return
		}
	}
}
