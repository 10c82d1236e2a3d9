package models

// RiskFactor is one named input to the weighted risk score. Scores are on a
// 0-100 scale; weights across a factor set must sum to 1 for the weighted
// average to be meaningful.
type RiskFactor struct {
	Name        string  `json:"name"`
	Score       float64 `json:"score"`
	Weight      float64 `json:"weight"`
	Description string  `json:"description,omitempty"`
}

// RiskAssessment is the verdict on one strategy: the advisory service's
// judgement merged with the deterministic risk score.
type RiskAssessment struct {
	Safe           bool     `json:"safe"`
	Reasoning      string   `json:"reasoning"`
	Risks          []string `json:"risks,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"`
	RiskScore      int      `json:"risk_score"`
	FromCache      bool     `json:"from_cache,omitempty"`
}
