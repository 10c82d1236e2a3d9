package watcher

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"strategyavs/internal/chain"
	"strategyavs/internal/models"
)

type stubStream struct {
	events []chain.StrategyEvent
}

func (s *stubStream) Run(ctx context.Context, onEvent func(chain.StrategyEvent)) error {
	for _, event := range s.events {
		onEvent(event)
	}
	return nil
}

type recordingHandler struct {
	mu      sync.Mutex
	handled []string
}

func (h *recordingHandler) Handle(ctx context.Context, strategy models.Strategy) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, strategy.Hash().Hex())
	return nil
}

func strategyWithDeadline(deadline int64) models.Strategy {
	return models.Strategy{Amount: big.NewInt(1), Deadline: deadline}
}

func TestRunHandlesEachEventOnce(t *testing.T) {
	events := []chain.StrategyEvent{
		{Strategy: strategyWithDeadline(1)},
		{Strategy: strategyWithDeadline(2)},
		{Strategy: strategyWithDeadline(3)},
	}
	handler := &recordingHandler{}
	w := &Watcher{Stream: &stubStream{events: events}, Pipeline: handler}
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(handler.handled) != 3 {
		t.Fatalf("handled got=%d want=3", len(handler.handled))
	}
	for i, event := range events {
		if handler.handled[i] != event.Strategy.Hash().Hex() {
			t.Fatalf("event %d handled out of order", i)
		}
	}
}

type blockingHandler struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (h *blockingHandler) Handle(ctx context.Context, strategy models.Strategy) error {
	h.calls.Add(1)
	close(h.started)
	<-h.release
	return nil
}

func TestInflightGuardDropsConcurrentDuplicate(t *testing.T) {
	handler := &blockingHandler{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	w := &Watcher{Pipeline: handler, Stream: &stubStream{}}
	event := chain.StrategyEvent{Strategy: strategyWithDeadline(7)}

	go w.handle(context.Background(), event)
	<-handler.started

	// Same hash while the first run is still in flight: dropped.
	w.handle(context.Background(), event)
	if got := handler.calls.Load(); got != 1 {
		t.Fatalf("calls got=%d want=1", got)
	}
	close(handler.release)

	// After the first run finishes the hash is processable again.
	deadline := time.After(time.Second)
	for w.begin(event.Strategy.Hash()) == false {
		select {
		case <-deadline:
			t.Fatalf("hash still marked in flight after completion")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}
