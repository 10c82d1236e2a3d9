package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Attestation is one operator's signed statement about a strategy's simulated
// cost, output and safety. Immutable once signed: the signature binds every
// field, so any change invalidates it.
type Attestation struct {
	StrategyHash common.Hash `json:"strategy_hash"`
	GasCost      uint64      `json:"gas_cost"`
	Output       *big.Int    `json:"output"`
	Safe         bool        `json:"safe"`
}

// SignedAttestation carries the attestation together with the operator
// identity and the signature over the prefixed attestation digest.
type SignedAttestation struct {
	Attestation Attestation    `json:"attestation"`
	Operator    common.Address `json:"operator"`
	Signature   hexutil.Bytes  `json:"signature"`
}

// AttestationRecord is the persisted form, kept for the aggregator's
// read-only queries and the operator's own journal.
type AttestationRecord struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement"`
	StrategyHash string    `gorm:"type:varchar(66);not null;uniqueIndex:idx_attestations_hash_operator"`
	Operator     string    `gorm:"type:varchar(42);not null;uniqueIndex:idx_attestations_hash_operator"`
	GasCost      uint64    `gorm:"not null"`
	Output       string    `gorm:"type:numeric(78,0);not null"`
	Safe         bool      `gorm:"not null"`
	Signature    string    `gorm:"type:text;not null"`
	TxID         *string   `gorm:"type:varchar(100)"`
	CreatedAt    time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (AttestationRecord) TableName() string {
	return "attestations"
}
