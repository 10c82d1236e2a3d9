package models

import "math/big"

// SimulationResult is one operator's dry-run of a strategy's target call.
// Output is denominated in the same unit as Strategy.MinOutput so the two
// are directly comparable downstream.
type SimulationResult struct {
	Success bool     `json:"success"`
	GasCost uint64   `json:"gas_cost"`
	Output  *big.Int `json:"output"`
	Reason  string   `json:"reason,omitempty"`
}

// MeetsMinOutput reports whether the simulated output satisfies the
// strategy's minimum acceptable output.
func (r SimulationResult) MeetsMinOutput(s Strategy) bool {
	if !r.Success || r.Output == nil {
		return false
	}
	return r.Output.Cmp(bigOrZero(s.MinOutput)) >= 0
}
