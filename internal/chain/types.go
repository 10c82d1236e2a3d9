package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"strategyavs/internal/models"
)

// StrategyEvent is the gateway's "strategy submitted" notification.
type StrategyEvent struct {
	StrategyHash common.Hash     `json:"strategy_hash"`
	Proposer     common.Address  `json:"proposer"`
	Strategy     models.Strategy `json:"strategy"`
}

// SimulateRequest asks the gateway to execute the strategy's target call
// against a read-only snapshot of current state.
type SimulateRequest struct {
	Strategy models.Strategy `json:"strategy"`
}

type SimulateResponse struct {
	Success bool     `json:"success"`
	GasUsed uint64   `json:"gas_used"`
	Output  *big.Int `json:"output"`
	Reason  string   `json:"reason,omitempty"`
}

// AttestRequest delivers a signed attestation to the verification entry point.
type AttestRequest struct {
	Strategy    models.Strategy          `json:"strategy"`
	Attestation models.SignedAttestation `json:"attestation"`
}

type AttestResponse struct {
	TxID string `json:"tx_id"`
}

// TxStatus reports a submitted transaction's inclusion state.
type TxStatus struct {
	TxID          string `json:"tx_id"`
	Status        string `json:"status"` // pending | included | reverted | dropped
	Confirmations int    `json:"confirmations"`
	Reason        string `json:"reason,omitempty"`
}

const (
	TxStatusPending  = "pending"
	TxStatusIncluded = "included"
	TxStatusReverted = "reverted"
	TxStatusDropped  = "dropped"
)

// ConsensusStatus is the gateway's read-only view of a task.
type ConsensusStatus struct {
	StrategyHash string  `json:"strategy_hash"`
	Status       string  `json:"status"`
	Approvals    int     `json:"approvals"`
	Quorum       int     `json:"quorum"`
	ConsensusPct float64 `json:"consensus_pct"`
}
