package models

import "github.com/shopspring/decimal"

// OperatorInfo is roster data supplied by an external source (registry
// contract or generator). Stake and reputation are consumed as opaque
// inputs; the core neither derives nor adjusts them.
type OperatorInfo struct {
	ID         string          `json:"id"`
	Address    string          `json:"address"`
	Stake      decimal.Decimal `json:"stake"`
	Reputation float64         `json:"reputation"`
}
