package roster

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"strategyavs/internal/config"
	"strategyavs/internal/models"
)

// Provider supplies the operator set. Stake and reputation are opaque
// inputs from an external registry; nothing here derives or adjusts them.
type Provider interface {
	Operators(ctx context.Context) ([]models.OperatorInfo, error)
}

// New picks the provider from config: a registry endpoint when set,
// otherwise the static list.
func New(cfg config.RosterConfig, httpClient *http.Client, logger *zap.Logger) (Provider, error) {
	if strings.TrimSpace(cfg.Endpoint) != "" {
		if httpClient == nil {
			httpClient = &http.Client{Timeout: 10 * time.Second}
		}
		return &httpProvider{
			endpoint:   strings.TrimSpace(cfg.Endpoint),
			httpClient: httpClient,
			logger:     logger,
		}, nil
	}
	operators, err := parseStatic(cfg.Operators)
	if err != nil {
		return nil, err
	}
	return &staticProvider{operators: operators}, nil
}

type staticProvider struct {
	operators []models.OperatorInfo
}

func (p *staticProvider) Operators(ctx context.Context) ([]models.OperatorInfo, error) {
	out := make([]models.OperatorInfo, len(p.operators))
	copy(out, p.operators)
	return out, nil
}

// parseStatic reads "id:address:stake:reputation" entries; stake and
// reputation are optional.
func parseStatic(entries []string) ([]models.OperatorInfo, error) {
	out := make([]models.OperatorInfo, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 2 {
			return nil, fmt.Errorf("roster entry %q: want id:address[:stake[:reputation]]", entry)
		}
		info := models.OperatorInfo{
			ID:      strings.TrimSpace(parts[0]),
			Address: strings.TrimSpace(parts[1]),
		}
		if info.ID == "" || info.Address == "" {
			return nil, fmt.Errorf("roster entry %q: empty id or address", entry)
		}
		if len(parts) > 2 && strings.TrimSpace(parts[2]) != "" {
			stake, err := decimal.NewFromString(strings.TrimSpace(parts[2]))
			if err != nil {
				return nil, fmt.Errorf("roster entry %q: bad stake: %w", entry, err)
			}
			info.Stake = stake
		}
		if len(parts) > 3 && strings.TrimSpace(parts[3]) != "" {
			reputation, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
			if err != nil {
				return nil, fmt.Errorf("roster entry %q: bad reputation: %w", entry, err)
			}
			info.Reputation = reputation
		}
		out = append(out, info)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("roster has no operators")
	}
	return out, nil
}

// httpProvider reads the roster from a registry endpoint, caching the last
// good answer so a registry blip does not stall vote intake.
type httpProvider struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger

	mu        sync.Mutex
	cached    []models.OperatorInfo
	fetchedAt time.Time
}

const rosterCacheFor = 30 * time.Second

func (p *httpProvider) Operators(ctx context.Context) ([]models.OperatorInfo, error) {
	p.mu.Lock()
	if len(p.cached) > 0 && time.Since(p.fetchedAt) < rosterCacheFor {
		out := make([]models.OperatorInfo, len(p.cached))
		copy(out, p.cached)
		p.mu.Unlock()
		return out, nil
	}
	p.mu.Unlock()

	operators, err := p.fetch(ctx)
	if err != nil {
		p.mu.Lock()
		cached := p.cached
		p.mu.Unlock()
		if len(cached) > 0 {
			if p.logger != nil {
				p.logger.Warn("roster: fetch failed, serving cached set", zap.Error(err))
			}
			out := make([]models.OperatorInfo, len(cached))
			copy(out, cached)
			return out, nil
		}
		return nil, err
	}

	p.mu.Lock()
	p.cached = operators
	p.fetchedAt = time.Now().UTC()
	p.mu.Unlock()
	out := make([]models.OperatorInfo, len(operators))
	copy(out, operators)
	return out, nil
}

func (p *httpProvider) fetch(ctx context.Context) ([]models.OperatorInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create roster request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("roster request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("roster endpoint returned %d: %s", resp.StatusCode, string(raw))
	}
	var operators []models.OperatorInfo
	if err := json.Unmarshal(raw, &operators); err != nil {
		return nil, fmt.Errorf("failed to decode roster: %w", err)
	}
	if len(operators) == 0 {
		return nil, fmt.Errorf("roster endpoint returned no operators")
	}
	return operators, nil
}
