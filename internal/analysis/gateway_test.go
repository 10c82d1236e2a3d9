package analysis

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"strategyavs/internal/config"
	"strategyavs/internal/models"
)

type stubAdvisor struct {
	output string
	err    error
	calls  int
}

func (a *stubAdvisor) Assess(ctx context.Context, prompt string) (string, error) {
	a.calls++
	return a.output, a.err
}

func testStrategy() models.Strategy {
	return models.Strategy{
		Amount:    big.NewInt(1_000_000),
		MinOutput: big.NewInt(990_000),
		Deadline:  1_700_000_000,
	}
}

func testService(advisor Advisor) *Service {
	return NewService(config.AnalysisConfig{
		CacheTTL:      5 * time.Minute,
		CacheCapacity: 100,
		RateLimit:     50,
		RateWindow:    time.Minute,
	}, advisor, nil)
}

func TestAssessCachesByPrompt(t *testing.T) {
	advisor := &stubAdvisor{output: `{"safe":true,"reasoning":"fine","risk_score":10}`}
	svc := testService(advisor)
	sim := models.SimulationResult{Success: true, GasCost: 21000, Output: big.NewInt(995_000)}

	first, err := svc.Assess(context.Background(), testStrategy(), sim)
	if err != nil {
		t.Fatalf("first assess: %v", err)
	}
	if first.FromCache {
		t.Fatalf("first call must not come from cache")
	}
	second, err := svc.Assess(context.Background(), testStrategy(), sim)
	if err != nil {
		t.Fatalf("second assess: %v", err)
	}
	if !second.FromCache {
		t.Fatalf("identical inputs must hit the cache")
	}
	if advisor.calls != 1 {
		t.Fatalf("advisor calls got=%d want=1", advisor.calls)
	}

	// Any input change misses: the key is the exact prompt bytes.
	sim.GasCost = 21001
	third, err := svc.Assess(context.Background(), testStrategy(), sim)
	if err != nil {
		t.Fatalf("third assess: %v", err)
	}
	if third.FromCache {
		t.Fatalf("changed input must miss the cache")
	}
	if advisor.calls != 2 {
		t.Fatalf("advisor calls got=%d want=2", advisor.calls)
	}
}

func TestAssessMalformedOutputIsConservative(t *testing.T) {
	for _, raw := range []string{"", "not json", `{"safe":`} {
		advisor := &stubAdvisor{output: raw}
		svc := testService(advisor)
		got, err := svc.Assess(context.Background(), testStrategy(), models.SimulationResult{Success: true})
		if err != nil {
			t.Fatalf("assess(%q): %v", raw, err)
		}
		if got.Safe {
			t.Fatalf("assess(%q): malformed output must not be safe", raw)
		}
		if got.Recommendation != "manual review required" {
			t.Fatalf("assess(%q): recommendation got=%q", raw, got.Recommendation)
		}
		if got.RiskScore != 100 {
			t.Fatalf("assess(%q): risk score got=%d want=100", raw, got.RiskScore)
		}
	}
}

func TestAssessRateLimitedFailsFast(t *testing.T) {
	advisor := &stubAdvisor{output: `{"safe":true,"reasoning":"ok"}`}
	svc := NewService(config.AnalysisConfig{
		CacheTTL:      time.Minute,
		CacheCapacity: 10,
		RateLimit:     1,
		RateWindow:    time.Minute,
	}, advisor, nil)

	sim := models.SimulationResult{Success: true, Output: big.NewInt(1)}
	if _, err := svc.Assess(context.Background(), testStrategy(), sim); err != nil {
		t.Fatalf("first assess: %v", err)
	}
	sim.Output = big.NewInt(2)
	_, err := svc.Assess(context.Background(), testStrategy(), sim)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("got=%v want ErrRateLimited", err)
	}

	// A cache hit must not burn a limiter slot.
	sim.Output = big.NewInt(1)
	got, err := svc.Assess(context.Background(), testStrategy(), sim)
	if err != nil {
		t.Fatalf("cached assess: %v", err)
	}
	if !got.FromCache {
		t.Fatalf("expected cache hit while rate limited")
	}
}

func TestParseAssessment(t *testing.T) {
	cases := []struct {
		name   string
		raw    string
		wantOK bool
		safe   bool
		score  int
	}{
		{"plain", `{"safe":true,"reasoning":"ok","risk_score":25}`, true, true, 25},
		{"wrapped_in_prose", "Here is my verdict:\n{\"safe\":false,\"reasoning\":\"bad\",\"risk_score\":90}\nThanks.", true, false, 90},
		{"score_clamped", `{"safe":false,"reasoning":"bad","risk_score":250}`, true, false, 100},
		{"missing_reasoning", `{"safe":true,"risk_score":10}`, false, false, 0},
		{"empty", "", false, false, 0},
		{"no_object", "all good", false, false, 0},
	}
	for _, tc := range cases {
		got, ok := ParseAssessment(tc.raw)
		if ok != tc.wantOK {
			t.Fatalf("%s: ok got=%v want=%v", tc.name, ok, tc.wantOK)
		}
		if !ok {
			continue
		}
		if got.Safe != tc.safe || got.RiskScore != tc.score {
			t.Fatalf("%s: got safe=%v score=%d want safe=%v score=%d", tc.name, got.Safe, got.RiskScore, tc.safe, tc.score)
		}
	}
}
