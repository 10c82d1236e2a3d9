package submitter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"strategyavs/internal/chain"
	"strategyavs/internal/models"
)

// SubmissionError carries enough context for manual or orchestrated
// resubmission. Transient marks failures worth retrying (timeouts,
// gateway unavailability) as opposed to permanent rejections.
type SubmissionError struct {
	StrategyHash common.Hash
	TxID         string
	Transient    bool
	Err          error
}

func (e *SubmissionError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.TxID != "" {
		return fmt.Sprintf("submission failed (%s) strategy=%s tx=%s: %v", kind, e.StrategyHash.Hex(), e.TxID, e.Err)
	}
	return fmt.Sprintf("submission failed (%s) strategy=%s: %v", kind, e.StrategyHash.Hex(), e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// ChainSubmitter is the slice of the gateway client the submitter needs.
type ChainSubmitter interface {
	Attest(ctx context.Context, strategy models.Strategy, att models.SignedAttestation) (string, error)
	TxStatus(ctx context.Context, txID string) (chain.TxStatus, error)
}

// Submitter delivers one signed attestation and blocks until the submission
// reaches the configured confirmation depth or fails. It performs no retry
// of its own; retry policy belongs to the orchestrator.
type Submitter struct {
	Client            ChainSubmitter
	ConfirmationDepth int
	PollEvery         time.Duration
	ConfirmTimeout    time.Duration
	Logger            *zap.Logger
}

func (s *Submitter) Submit(ctx context.Context, strategy models.Strategy, signed models.SignedAttestation) (string, error) {
	if s == nil || s.Client == nil {
		return "", &SubmissionError{StrategyHash: strategy.Hash(), Err: errors.New("submitter not configured")}
	}
	hash := strategy.Hash()

	txID, err := s.Client.Attest(ctx, strategy, signed)
	if err != nil {
		return "", &SubmissionError{StrategyHash: hash, Transient: transient(err), Err: err}
	}
	if s.Logger != nil {
		s.Logger.Info("submitter: attestation sent",
			zap.String("strategy_hash", hash.Hex()),
			zap.String("tx_id", txID),
		)
	}
	if err := s.awaitConfirmation(ctx, hash, txID); err != nil {
		return txID, err
	}
	if s.Logger != nil {
		s.Logger.Info("submitter: confirmed",
			zap.String("strategy_hash", hash.Hex()),
			zap.String("tx_id", txID),
		)
	}
	return txID, nil
}

func (s *Submitter) awaitConfirmation(ctx context.Context, hash common.Hash, txID string) error {
	depth := s.ConfirmationDepth
	if depth <= 0 {
		depth = 1
	}
	pollEvery := s.PollEvery
	if pollEvery <= 0 {
		pollEvery = 2 * time.Second
	}
	timeout := s.ConfirmTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()
	for {
		status, err := s.Client.TxStatus(ctx, txID)
		if err != nil {
			if ctx.Err() != nil {
				return &SubmissionError{StrategyHash: hash, TxID: txID, Transient: true, Err: fmt.Errorf("confirmation wait expired: %w", ctx.Err())}
			}
			// Status reads are retried within the window; a blip here is
			// not a verdict on the transaction.
			if s.Logger != nil {
				s.Logger.Warn("submitter: status poll failed",
					zap.String("tx_id", txID),
					zap.Error(err),
				)
			}
		} else {
			switch status.Status {
			case chain.TxStatusIncluded:
				if status.Confirmations >= depth {
					return nil
				}
			case chain.TxStatusReverted:
				return &SubmissionError{StrategyHash: hash, TxID: txID, Err: fmt.Errorf("transaction reverted: %s", status.Reason)}
			case chain.TxStatusDropped:
				return &SubmissionError{StrategyHash: hash, TxID: txID, Transient: true, Err: errors.New("transaction dropped from the pool")}
			}
		}
		select {
		case <-ctx.Done():
			return &SubmissionError{StrategyHash: hash, TxID: txID, Transient: true, Err: fmt.Errorf("confirmation wait expired: %w", ctx.Err())}
		case <-ticker.C:
		}
	}
}

// transient classifies a gateway error: server-side and transport failures
// are retryable, client-side rejections are not.
func transient(err error) bool {
	var apiErr *chain.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError || apiErr.Status == http.StatusTooManyRequests
	}
	return true
}
