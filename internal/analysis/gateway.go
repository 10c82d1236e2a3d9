package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"go.uber.org/zap"

	"strategyavs/internal/config"
	"strategyavs/internal/models"
)

// Advisor produces a raw risk verdict for a prompt. Implementations wrap an
// external model; tests substitute a canned one.
type Advisor interface {
	Assess(ctx context.Context, prompt string) (string, error)
}

// Service fronts the advisory model with a prompt cache and a sliding-window
// rate limiter. Cache hits bypass the limiter entirely.
type Service struct {
	Advisor Advisor
	Cache   *Cache
	Limiter *RateLimiter
	Logger  *zap.Logger
}

func NewService(cfg config.AnalysisConfig, advisor Advisor, logger *zap.Logger) *Service {
	return &Service{
		Advisor: advisor,
		Cache:   NewCache(cfg.CacheTTL, cfg.CacheCapacity),
		Limiter: NewRateLimiter(cfg.RateLimit, cfg.RateWindow),
		Logger:  logger,
	}
}

// Assess returns the advisory verdict for a simulated strategy. Malformed
// model output degrades to an unsafe verdict requiring manual review rather
// than an error; a strategy is never approved on garbage.
func (s *Service) Assess(ctx context.Context, strategy models.Strategy, sim models.SimulationResult) (models.RiskAssessment, error) {
	if s == nil || s.Advisor == nil {
		return models.RiskAssessment{}, fmt.Errorf("analysis service not configured")
	}
	prompt := BuildPrompt(strategy, sim)
	if cached, ok := s.Cache.Get(prompt); ok {
		cached.FromCache = true
		if s.Logger != nil {
			s.Logger.Debug("analysis: cache hit", zap.String("strategy_hash", strategy.Hash().Hex()))
		}
		return cached, nil
	}
	if err := s.Limiter.Acquire(); err != nil {
		return models.RiskAssessment{}, err
	}
	raw, err := s.Advisor.Assess(ctx, prompt)
	if err != nil {
		return models.RiskAssessment{}, err
	}
	assessment, ok := ParseAssessment(raw)
	if !ok {
		if s.Logger != nil {
			s.Logger.Warn("analysis: unparseable advisory output",
				zap.String("strategy_hash", strategy.Hash().Hex()),
				zap.Int("raw_len", len(raw)),
			)
		}
		return conservativeAssessment(), nil
	}
	s.Cache.Put(prompt, assessment)
	return assessment, nil
}

// BuildPrompt renders the strategy and its simulation outcome into the exact
// text used as the cache key. Field order is fixed so identical inputs always
// produce identical bytes.
func BuildPrompt(strategy models.Strategy, sim models.SimulationResult) string {
	var b strings.Builder
	b.WriteString("Assess the risk of this DeFi strategy.\n")
	fmt.Fprintf(&b, "strategy_hash: %s\n", strategy.Hash().Hex())
	fmt.Fprintf(&b, "user: %s\n", strategy.User.Hex())
	fmt.Fprintf(&b, "source_contract: %s\n", strategy.SourceContract.Hex())
	fmt.Fprintf(&b, "source_asset: %s\n", strategy.SourceAsset.Hex())
	fmt.Fprintf(&b, "amount: %s\n", bigString(strategy.Amount))
	fmt.Fprintf(&b, "target_contract: %s\n", strategy.TargetContract.Hex())
	fmt.Fprintf(&b, "min_output: %s\n", bigString(strategy.MinOutput))
	fmt.Fprintf(&b, "deadline: %d\n", strategy.Deadline)
	fmt.Fprintf(&b, "simulated_success: %t\n", sim.Success)
	fmt.Fprintf(&b, "simulated_gas: %d\n", sim.GasCost)
	fmt.Fprintf(&b, "simulated_output: %s\n", bigString(sim.Output))
	return b.String()
}

type rawAssessment struct {
	Safe           bool     `json:"safe"`
	Reasoning      string   `json:"reasoning"`
	Risks          []string `json:"risks"`
	Recommendation string   `json:"recommendation"`
	RiskScore      int      `json:"risk_score"`
}

// ParseAssessment decodes the model's JSON verdict, tolerating prose around
// the object. Returns ok=false when no usable object is found.
func ParseAssessment(raw string) (models.RiskAssessment, bool) {
	text := strings.TrimSpace(raw)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return models.RiskAssessment{}, false
	}
	var parsed rawAssessment
	if err := json.Unmarshal([]byte(text[start:end+1]), &parsed); err != nil {
		return models.RiskAssessment{}, false
	}
	if strings.TrimSpace(parsed.Reasoning) == "" {
		return models.RiskAssessment{}, false
	}
	score := parsed.RiskScore
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return models.RiskAssessment{
		Safe:           parsed.Safe,
		Reasoning:      parsed.Reasoning,
		Risks:          parsed.Risks,
		Recommendation: parsed.Recommendation,
		RiskScore:      score,
	}, true
}

func conservativeAssessment() models.RiskAssessment {
	return models.RiskAssessment{
		Safe:           false,
		Reasoning:      "advisory output could not be parsed",
		Recommendation: "manual review required",
		RiskScore:      100,
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
