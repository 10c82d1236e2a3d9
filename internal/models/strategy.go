package models

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Strategy is a user-proposed multi-step financial action. It is immutable
// once created; identity is the keccak hash of its canonical encoding.
type Strategy struct {
	User           common.Address `json:"user"`
	SourceContract common.Address `json:"source_contract"`
	SourceAsset    common.Address `json:"source_asset"`
	Amount         *big.Int       `json:"amount"`
	TargetContract common.Address `json:"target_contract"`
	CallData       hexutil.Bytes  `json:"call_data"`
	MinOutput      *big.Int       `json:"min_output"`
	Deadline       int64          `json:"deadline"`
}

// Hash derives the strategy's identity from a fixed, order-sensitive field
// encoding. Every operator must produce the same bytes for the same strategy,
// so variable-length call data is folded to its own keccak first.
//
// Layout: user(20) | source_contract(20) | source_asset(20) | amount(32 BE) |
// target_contract(20) | keccak(call_data)(32) | min_output(32 BE) | deadline(8 BE).
func (s Strategy) Hash() common.Hash {
	buf := make([]byte, 0, 184)
	buf = append(buf, s.User.Bytes()...)
	buf = append(buf, s.SourceContract.Bytes()...)
	buf = append(buf, s.SourceAsset.Bytes()...)
	buf = append(buf, common.LeftPadBytes(bigOrZero(s.Amount).Bytes(), 32)...)
	buf = append(buf, s.TargetContract.Bytes()...)
	buf = append(buf, crypto.Keccak256(s.CallData)...)
	buf = append(buf, common.LeftPadBytes(bigOrZero(s.MinOutput).Bytes(), 32)...)

	var deadline [8]byte
	binary.BigEndian.PutUint64(deadline[:], uint64(s.Deadline))
	buf = append(buf, deadline[:]...)

	return common.BytesToHash(crypto.Keccak256(buf))
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
