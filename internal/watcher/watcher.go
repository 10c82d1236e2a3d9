package watcher

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"strategyavs/internal/chain"
	"strategyavs/internal/models"
)

// EventStream delivers strategy-submitted notifications. The chain stream
// implementation reconnects on its own; the watcher only consumes.
type EventStream interface {
	Run(ctx context.Context, onEvent func(chain.StrategyEvent)) error
}

type StrategyHandler interface {
	Handle(ctx context.Context, strategy models.Strategy) error
}

// Watcher drives one pipeline run per incoming strategy. Events are handled
// sequentially on the stream's read loop, and an in-flight guard keyed by
// strategy hash drops duplicate notifications for a strategy still being
// processed.
type Watcher struct {
	Stream   EventStream
	Pipeline StrategyHandler
	Logger   *zap.Logger

	mu       sync.Mutex
	inflight map[common.Hash]struct{}
}

func (w *Watcher) Run(ctx context.Context) error {
	if w == nil || w.Stream == nil || w.Pipeline == nil {
		return errors.New("watcher not configured")
	}
	return w.Stream.Run(ctx, func(event chain.StrategyEvent) {
		w.handle(ctx, event)
	})
}

func (w *Watcher) handle(ctx context.Context, event chain.StrategyEvent) {
	hash := event.Strategy.Hash()
	if event.StrategyHash != (common.Hash{}) && event.StrategyHash != hash {
		// Identity comes from our own canonical encoding, never from the
		// event payload.
		if w.Logger != nil {
			w.Logger.Warn("watcher: event hash mismatch",
				zap.String("event_hash", event.StrategyHash.Hex()),
				zap.String("computed_hash", hash.Hex()),
			)
		}
	}
	if !w.begin(hash) {
		if w.Logger != nil {
			w.Logger.Debug("watcher: strategy already in flight",
				zap.String("strategy_hash", hash.Hex()),
			)
		}
		return
	}
	defer w.end(hash)

	if w.Logger != nil {
		w.Logger.Info("watcher: strategy received",
			zap.String("strategy_hash", hash.Hex()),
			zap.String("proposer", event.Proposer.Hex()),
		)
	}
	if err := w.Pipeline.Handle(ctx, event.Strategy); err != nil && w.Logger != nil {
		w.Logger.Error("watcher: pipeline failed",
			zap.String("strategy_hash", hash.Hex()),
			zap.Error(err),
		)
	}
}

func (w *Watcher) begin(hash common.Hash) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inflight == nil {
		w.inflight = make(map[common.Hash]struct{})
	}
	if _, busy := w.inflight[hash]; busy {
		return false
	}
	w.inflight[hash] = struct{}{}
	return true
}

func (w *Watcher) end(hash common.Hash) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inflight, hash)
}
