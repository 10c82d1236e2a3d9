package simulator

import (
	"context"
	"math/big"
	"testing"
	"time"

	"strategyavs/internal/chain"
	"strategyavs/internal/models"
)

type stubChain struct {
	resp chain.SimulateResponse
	err  error
	wait time.Duration
}

func (c *stubChain) Simulate(ctx context.Context, strategy models.Strategy) (chain.SimulateResponse, error) {
	if c.wait > 0 {
		select {
		case <-ctx.Done():
			return chain.SimulateResponse{}, ctx.Err()
		case <-time.After(c.wait):
		}
	}
	return c.resp, c.err
}

func TestRunSuccess(t *testing.T) {
	s := &Simulator{Client: &stubChain{resp: chain.SimulateResponse{
		Success: true,
		GasUsed: 21_000,
		Output:  big.NewInt(995_000),
	}}}
	got := s.Run(context.Background(), models.Strategy{})
	if !got.Success {
		t.Fatalf("got success=false want true")
	}
	if got.GasCost != 21_000 || got.Output.Cmp(big.NewInt(995_000)) != 0 {
		t.Fatalf("got gas=%d output=%s", got.GasCost, got.Output)
	}
}

func TestRunRevertKeepsReason(t *testing.T) {
	s := &Simulator{Client: &stubChain{resp: chain.SimulateResponse{
		Success: false,
		Reason:  "insufficient liquidity",
	}}}
	got := s.Run(context.Background(), models.Strategy{})
	if got.Success {
		t.Fatalf("got success=true want false")
	}
	if got.Reason != "insufficient liquidity" {
		t.Fatalf("reason got=%q", got.Reason)
	}
}

func TestRunTransportErrorDoesNotPanic(t *testing.T) {
	s := &Simulator{Client: &stubChain{err: context.DeadlineExceeded}}
	got := s.Run(context.Background(), models.Strategy{})
	if got.Success {
		t.Fatalf("transport error must not succeed")
	}
	if got.Reason != "simulation timed out" {
		t.Fatalf("reason got=%q", got.Reason)
	}
}

func TestRunTimeout(t *testing.T) {
	s := &Simulator{
		Client:  &stubChain{wait: time.Second, resp: chain.SimulateResponse{Success: true}},
		Timeout: 10 * time.Millisecond,
	}
	got := s.Run(context.Background(), models.Strategy{})
	if got.Success {
		t.Fatalf("timed-out simulation must not succeed")
	}
	if got.Reason != "simulation timed out" {
		t.Fatalf("reason got=%q", got.Reason)
	}
}
