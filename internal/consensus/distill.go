package consensus

import (
	"strategyavs/internal/models"
)

// tally is the per-task vote breakdown.
type tally struct {
	Approvals   int
	Rejections  int
	Abstentions int
	Confidence  float64 // mean over all received votes
}

func tallyVotes(votes []models.OperatorVote) tally {
	var t tally
	if len(votes) == 0 {
		return t
	}
	sum := 0.0
	for _, v := range votes {
		switch v.Decision {
		case models.DecisionApprove:
			t.Approvals++
		case models.DecisionReject:
			t.Rejections++
		default:
			t.Abstentions++
		}
		sum += v.Confidence
	}
	t.Confidence = sum / float64(len(votes))
	return t
}

// distillFactors turns a vote set into the factor inputs for the scoring
// engine: how much the operators disagree, how sure they are, and how many
// punted to manual review. Weights sum to 1 by construction.
func distillFactors(t tally) []models.RiskFactor {
	decided := t.Approvals + t.Rejections
	disagreement := 0.0
	if decided > 0 {
		disagreement = 100 * float64(t.Rejections) / float64(decided)
	}
	total := decided + t.Abstentions
	abstention := 0.0
	if total > 0 {
		abstention = 100 * float64(t.Abstentions) / float64(total)
	}
	return []models.RiskFactor{
		{Name: "disagreement", Score: disagreement, Weight: 0.4, Description: "share of reject votes among decided votes"},
		{Name: "confidence", Score: 100 - t.Confidence, Weight: 0.4, Description: "inverse of mean vote confidence"},
		{Name: "abstention", Score: abstention, Weight: 0.2, Description: "share of abstaining operators"},
	}
}
