package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"strategyavs/internal/models"
)

// Client talks to the verifier gateway: the REST surface in front of the
// verification contract. It is the only way the operator touches the ledger.
type Client struct {
	host       string
	httpClient *http.Client
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway error (%d): %s", e.Status, e.Body)
}

func NewClient(httpClient *http.Client, host string) *Client {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	return &Client{
		host:       host,
		httpClient: httpClient,
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.host+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Simulate runs the strategy's target call against a read-only fork of
// current state. Execution failures come back as Success=false with a
// reason, not as a transport error.
func (c *Client) Simulate(ctx context.Context, strategy models.Strategy) (SimulateResponse, error) {
	var out SimulateResponse
	err := c.doJSON(ctx, http.MethodPost, "/v1/simulate", SimulateRequest{Strategy: strategy}, &out)
	if err != nil {
		return SimulateResponse{}, err
	}
	return out, nil
}

// Attest submits a signed attestation and returns the transaction id to
// poll for confirmation.
func (c *Client) Attest(ctx context.Context, strategy models.Strategy, att models.SignedAttestation) (string, error) {
	var out AttestResponse
	err := c.doJSON(ctx, http.MethodPost, "/v1/attestations", AttestRequest{Strategy: strategy, Attestation: att}, &out)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out.TxID) == "" {
		return "", fmt.Errorf("gateway returned empty tx id")
	}
	return out.TxID, nil
}

// TxStatus fetches the inclusion state of a submitted transaction.
func (c *Client) TxStatus(ctx context.Context, txID string) (TxStatus, error) {
	if strings.TrimSpace(txID) == "" {
		return TxStatus{}, fmt.Errorf("tx_id is required")
	}
	var out TxStatus
	err := c.doJSON(ctx, http.MethodGet, "/v1/tx/"+txID, nil, &out)
	if err != nil {
		return TxStatus{}, err
	}
	return out, nil
}

// ConsensusStatus reads the stored consensus state for a strategy hash.
func (c *Client) ConsensusStatus(ctx context.Context, hash common.Hash) (ConsensusStatus, error) {
	var out ConsensusStatus
	err := c.doJSON(ctx, http.MethodGet, "/v1/consensus/"+hash.Hex(), nil, &out)
	if err != nil {
		return ConsensusStatus{}, err
	}
	return out, nil
}

// Attestations reads stored attestations for a strategy hash.
func (c *Client) Attestations(ctx context.Context, hash common.Hash) ([]models.SignedAttestation, error) {
	var out []models.SignedAttestation
	err := c.doJSON(ctx, http.MethodGet, "/v1/attestations/"+hash.Hex(), nil, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Execute asks the gateway to execute a verified strategy. The gateway
// refuses when the stored attestation safety flag is false, independent of
// quorum; that refusal surfaces here as an APIError.
func (c *Client) Execute(ctx context.Context, hash common.Hash) (string, error) {
	var out AttestResponse
	err := c.doJSON(ctx, http.MethodPost, "/v1/execute/"+hash.Hex(), nil, &out)
	if err != nil {
		return "", err
	}
	return out.TxID, nil
}
