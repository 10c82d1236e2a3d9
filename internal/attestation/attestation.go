package attestation

import (
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"strategyavs/internal/models"
)

// Build derives the attestation for one verified strategy. The safety flag
// comes from the assessment; cost and output come from the operator's own
// simulation, never from the proposer.
func Build(strategy models.Strategy, sim models.SimulationResult, assessment models.RiskAssessment) models.Attestation {
	output := sim.Output
	if output == nil {
		output = new(big.Int)
	}
	return models.Attestation{
		StrategyHash: strategy.Hash(),
		GasCost:      sim.GasCost,
		Output:       new(big.Int).Set(output),
		Safe:         assessment.Safe && sim.Success,
	}
}

// Encode produces the canonical 73-byte encoding:
// strategy_hash(32) | gas_cost(8 BE) | output(32 BE) | safety(1).
// Identical attestations always encode to identical bytes.
func Encode(att models.Attestation) []byte {
	buf := make([]byte, 0, 73)
	buf = append(buf, att.StrategyHash.Bytes()...)

	var gas [8]byte
	binary.BigEndian.PutUint64(gas[:], att.GasCost)
	buf = append(buf, gas[:]...)

	output := att.Output
	if output == nil {
		output = new(big.Int)
	}
	buf = append(buf, common.LeftPadBytes(output.Bytes(), 32)...)

	if att.Safe {
		buf = append(buf, 0x01)
	} else {
		buf = append(buf, 0x00)
	}
	return buf
}

// Digest is the keccak hash of the canonical encoding.
func Digest(att models.Attestation) common.Hash {
	return common.BytesToHash(crypto.Keccak256(Encode(att)))
}

// prefixedHash applies the signed-message convention before signing, so the
// signature can never double as a raw transaction signature.
func prefixedHash(digest common.Hash) common.Hash {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(digest))
	return common.BytesToHash(crypto.Keccak256([]byte(prefix), digest.Bytes()))
}

// Signer holds the operator's signing credential.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewSigner(hexKey string) (*Signer, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid operator key: %w", err)
	}
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

func (s *Signer) Address() common.Address {
	if s == nil {
		return common.Address{}
	}
	return s.address
}

// Sign produces the operator's signed attestation over the prefixed digest.
func (s *Signer) Sign(att models.Attestation) (models.SignedAttestation, error) {
	if s == nil || s.key == nil {
		return models.SignedAttestation{}, fmt.Errorf("signer not configured")
	}
	sig, err := crypto.Sign(prefixedHash(Digest(att)).Bytes(), s.key)
	if err != nil {
		return models.SignedAttestation{}, fmt.Errorf("failed to sign attestation: %w", err)
	}
	return models.SignedAttestation{
		Attestation: att,
		Operator:    s.address,
		Signature:   sig,
	}, nil
}

// RecoverSigner returns the address that signed the attestation.
func RecoverSigner(att models.Attestation, signature []byte) (common.Address, error) {
	pub, err := crypto.SigToPub(prefixedHash(Digest(att)).Bytes(), signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify reports whether the signed attestation was produced by the operator
// it names.
func Verify(signed models.SignedAttestation) bool {
	recovered, err := RecoverSigner(signed.Attestation, signed.Signature)
	if err != nil {
		return false
	}
	return recovered == signed.Operator
}
