package consensus

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"strategyavs/internal/config"
	"strategyavs/internal/models"
	"strategyavs/internal/scoring"
)

func testAggregator(repo *stubRepo) *Aggregator {
	return &Aggregator{
		Repo:           repo,
		Scoring:        scoring.New(config.ScoringConfig{}),
		QuorumFraction: 0.67,
		PollTimeout:    5 * time.Minute,
	}
}

func TestRequiredQuorum(t *testing.T) {
	cases := []struct {
		operators int
		want      int
	}{
		{12, 9},
		{3, 3},
		{1, 1},
		{4, 3},
		{10, 7},
		{100, 67},
		{0, 0},
	}
	for _, tc := range cases {
		if got := RequiredQuorum(tc.operators, 0.67); got != tc.want {
			t.Fatalf("operators=%d got=%d want=%d", tc.operators, got, tc.want)
		}
	}
}

func TestSubmitVoteValidatesAtQuorum(t *testing.T) {
	repo := newStubRepo()
	a := testAggregator(repo)
	ctx := context.Background()

	var record *models.ValidationRecord
	var err error
	for i := 0; i < 3; i++ {
		record, err = a.SubmitVote(ctx, "task-1", "0xabc", 3, models.OperatorVote{
			OperatorID: fmt.Sprintf("op-%d", i),
			Decision:   models.DecisionApprove,
			Confidence: 90,
		})
		if err != nil {
			t.Fatalf("vote %d: %v", i, err)
		}
	}
	if record.Status != models.StatusValidated {
		t.Fatalf("status got=%s want=%s", record.Status, models.StatusValidated)
	}
	if record.Approvals != 3 || record.RequiredQuorum != 3 {
		t.Fatalf("approvals=%d quorum=%d", record.Approvals, record.RequiredQuorum)
	}
	if record.DecidedAt == nil {
		t.Fatalf("terminal record must carry a decision time")
	}
}

func TestSubmitVoteStaysPendingBelowQuorum(t *testing.T) {
	repo := newStubRepo()
	a := testAggregator(repo)

	record, err := a.SubmitVote(context.Background(), "task-1", "0xabc", 3, models.OperatorVote{
		OperatorID: "op-0",
		Decision:   models.DecisionApprove,
		Confidence: 90,
	})
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if record.Status != models.StatusPending {
		t.Fatalf("status got=%s want=%s", record.Status, models.StatusPending)
	}
}

func TestSubmitVoteReplacesSameOperator(t *testing.T) {
	repo := newStubRepo()
	a := testAggregator(repo)
	ctx := context.Background()

	if _, err := a.SubmitVote(ctx, "task-1", "0xabc", 12, models.OperatorVote{
		OperatorID: "op-0", Decision: models.DecisionApprove, Confidence: 80,
	}); err != nil {
		t.Fatalf("vote: %v", err)
	}
	record, err := a.SubmitVote(ctx, "task-1", "0xabc", 12, models.OperatorVote{
		OperatorID: "op-0", Decision: models.DecisionReject, Confidence: 60,
	})
	if err != nil {
		t.Fatalf("revote: %v", err)
	}
	if record.Approvals != 0 || record.Rejections != 1 {
		t.Fatalf("revote must replace: approvals=%d rejections=%d", record.Approvals, record.Rejections)
	}
	if record.AggConfidence != 60 {
		t.Fatalf("confidence got=%v want=60", record.AggConfidence)
	}
}

func TestSubmitVoteRejectsWhenQuorumImpossible(t *testing.T) {
	repo := newStubRepo()
	a := testAggregator(repo)
	ctx := context.Background()

	// 3 operators, quorum 3: a single reject makes 3 approvals unreachable.
	record, err := a.SubmitVote(ctx, "task-1", "0xabc", 3, models.OperatorVote{
		OperatorID: "op-0", Decision: models.DecisionReject, Confidence: 70,
	})
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if record.Status != models.StatusRejected {
		t.Fatalf("status got=%s want=%s", record.Status, models.StatusRejected)
	}
}

func TestTerminalStateNeverRegresses(t *testing.T) {
	repo := newStubRepo()
	a := testAggregator(repo)
	ctx := context.Background()

	if _, err := a.SubmitVote(ctx, "task-1", "0xabc", 1, models.OperatorVote{
		OperatorID: "op-0", Decision: models.DecisionApprove, Confidence: 95,
	}); err != nil {
		t.Fatalf("vote: %v", err)
	}

	// Late votes after the terminal decision are no-ops.
	record, err := a.SubmitVote(ctx, "task-1", "0xabc", 1, models.OperatorVote{
		OperatorID: "op-1", Decision: models.DecisionReject, Confidence: 10,
	})
	if err != nil {
		t.Fatalf("late vote: %v", err)
	}
	if record.Status != models.StatusValidated {
		t.Fatalf("status got=%s want=%s", record.Status, models.StatusValidated)
	}
	if record.Approvals != 1 || record.Rejections != 0 {
		t.Fatalf("late vote must not change tallies: approvals=%d rejections=%d", record.Approvals, record.Rejections)
	}
}

func TestSubmitVoteRejectsUnknownDecision(t *testing.T) {
	a := testAggregator(newStubRepo())
	_, err := a.SubmitVote(context.Background(), "task-1", "0xabc", 3, models.OperatorVote{
		OperatorID: "op-0", Decision: "maybe", Confidence: 50,
	})
	if !errors.Is(err, ErrUnknownDecision) {
		t.Fatalf("got=%v want ErrUnknownDecision", err)
	}
}

func TestTwelveOperatorScenario(t *testing.T) {
	repo := newStubRepo()
	a := testAggregator(repo)
	ctx := context.Background()

	approveConfidences := []float64{80, 82, 85, 88, 90, 91, 93, 95, 97}
	var record *models.ValidationRecord
	var err error
	for i, conf := range approveConfidences {
		record, err = a.SubmitVote(ctx, "task-12", "0xabc", 12, models.OperatorVote{
			OperatorID: fmt.Sprintf("approver-%d", i),
			Decision:   models.DecisionApprove,
			Confidence: conf,
		})
		if err != nil {
			t.Fatalf("approve %d: %v", i, err)
		}
	}
	if record.Status != models.StatusValidated {
		t.Fatalf("9 of 12 approvals must validate, status=%s", record.Status)
	}
	if record.RequiredQuorum != 9 {
		t.Fatalf("quorum got=%d want=9", record.RequiredQuorum)
	}
	if record.ConsensusPct != 75 {
		t.Fatalf("consensus pct got=%v want=75", record.ConsensusPct)
	}
	sum := 0.0
	for _, c := range approveConfidences {
		sum += c
	}
	wantConfidence := sum / float64(len(approveConfidences))
	if math.Abs(record.AggConfidence-wantConfidence) > 1e-9 {
		t.Fatalf("confidence got=%v want=%v", record.AggConfidence, wantConfidence)
	}

	// The 3 rejects arrive after the terminal decision and change nothing.
	for i := 0; i < 3; i++ {
		record, err = a.SubmitVote(ctx, "task-12", "0xabc", 12, models.OperatorVote{
			OperatorID: fmt.Sprintf("rejector-%d", i),
			Decision:   models.DecisionReject,
			Confidence: 40,
		})
		if err != nil {
			t.Fatalf("reject %d: %v", i, err)
		}
	}
	if record.Status != models.StatusValidated || record.Approvals != 9 {
		t.Fatalf("late rejects must not change the outcome: status=%s approvals=%d", record.Status, record.Approvals)
	}
}

func TestSweepTimeoutsRejectsStaleTasks(t *testing.T) {
	repo := newStubRepo()
	a := testAggregator(repo)
	now := time.Unix(1_700_000_000, 0).UTC()
	a.now = func() time.Time { return now }
	ctx := context.Background()

	if _, err := a.SubmitVote(ctx, "task-stale", "0xaaa", 12, models.OperatorVote{
		OperatorID: "op-0", Decision: models.DecisionApprove, Confidence: 90,
	}); err != nil {
		t.Fatalf("vote: %v", err)
	}

	// Inside the window: nothing happens.
	now = now.Add(4 * time.Minute)
	a.SweepTimeouts(ctx)
	record, _ := repo.GetValidationRecordByTaskID(ctx, "task-stale")
	if record.Status != models.StatusPending {
		t.Fatalf("status got=%s want pending before timeout", record.Status)
	}

	now = now.Add(2 * time.Minute)
	a.SweepTimeouts(ctx)
	record, _ = repo.GetValidationRecordByTaskID(ctx, "task-stale")
	if record.Status != models.StatusRejected {
		t.Fatalf("status got=%s want rejected after timeout", record.Status)
	}

	// Late vote after the timeout decision is a no-op.
	late, err := a.SubmitVote(ctx, "task-stale", "0xaaa", 12, models.OperatorVote{
		OperatorID: "op-1", Decision: models.DecisionApprove, Confidence: 99,
	})
	if err != nil {
		t.Fatalf("late vote: %v", err)
	}
	if late.Status != models.StatusRejected {
		t.Fatalf("late vote must not revive the task, status=%s", late.Status)
	}
}

func TestDistillFactorsWeightsSumToOne(t *testing.T) {
	votes := []models.OperatorVote{
		{OperatorID: "a", Decision: models.DecisionApprove, Confidence: 90},
		{OperatorID: "b", Decision: models.DecisionReject, Confidence: 50},
		{OperatorID: "c", Decision: models.DecisionAbstain, Confidence: 0},
	}
	factors := distillFactors(tallyVotes(votes))
	sum := 0.0
	for _, f := range factors {
		sum += f.Weight
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("weights sum got=%v want=1", sum)
	}
	if _, err := scoring.Score(factors); err != nil {
		t.Fatalf("distilled factors must be scoreable: %v", err)
	}
}
