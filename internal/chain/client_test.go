package chain

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"strategyavs/internal/models"
)

func TestExecuteRefusedWhenAttestationUnsafe(t *testing.T) {
	hash := common.HexToHash("0x01")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/consensus/"):
			_ = json.NewEncoder(w).Encode(ConsensusStatus{
				StrategyHash: hash.Hex(),
				Status:       "validated",
				Approvals:    9,
				Quorum:       9,
				ConsensusPct: 75,
			})
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/attestations/"):
			_ = json.NewEncoder(w).Encode([]models.SignedAttestation{{
				Attestation: models.Attestation{
					StrategyHash: hash,
					GasCost:      21_000,
					Output:       big.NewInt(995_000),
					Safe:         false,
				},
			}})
		case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/v1/execute/"):
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"attestation safety flag is false"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.Client(), srv.URL)
	ctx := context.Background()

	status, err := client.ConsensusStatus(ctx, hash)
	if err != nil {
		t.Fatalf("consensus status: %v", err)
	}
	if status.Status != "validated" {
		t.Fatalf("status got=%s want=validated", status.Status)
	}

	atts, err := client.Attestations(ctx, hash)
	if err != nil {
		t.Fatalf("attestations: %v", err)
	}
	if len(atts) != 1 || atts[0].Attestation.Safe {
		t.Fatalf("stored attestation must be unsafe, got=%+v", atts)
	}

	// Quorum alone does not authorize execution: the safety flag is a
	// separate gate.
	_, err = client.Execute(ctx, hash)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("got=%v want APIError", err)
	}
	if apiErr.Status != http.StatusForbidden {
		t.Fatalf("status got=%d want=%d", apiErr.Status, http.StatusForbidden)
	}
}

func TestExecuteReturnsTxID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasPrefix(r.URL.Path, "/v1/execute/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(AttestResponse{TxID: "tx-exec-1"})
	}))
	defer srv.Close()

	txID, err := NewClient(srv.Client(), srv.URL).Execute(context.Background(), common.HexToHash("0x02"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if txID != "tx-exec-1" {
		t.Fatalf("tx id got=%s want=tx-exec-1", txID)
	}
}
