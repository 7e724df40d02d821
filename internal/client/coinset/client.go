package coinset

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"greenfloor/internal/config"
)

const (
	MainnetBaseURL   = "https://api.coinset.org"
	Testnet11BaseURL = "https://testnet11.api.coinset.org"
	NetworkTestnet11 = "testnet11"
)

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("coinset API error (%d): %s", e.Status, e.Body)
}

func (e *APIError) StatusCode() int {
	return e.Status
}

type Client struct {
	base       string
	network    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(cfg config.CoinsetConfig, network string) *Client {
	network = strings.ToLower(strings.TrimSpace(network))
	base := strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/")
	if base == "" {
		base = MainnetBaseURL
		if network == NetworkTestnet11 {
			base = Testnet11BaseURL
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	perSec, burst := cfg.RatePerSec, cfg.Burst
	if perSec <= 0 {
		perSec = 10
	}
	if burst <= 0 {
		burst = 10
	}
	return &Client{
		base:       base,
		network:    network,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(perSec), burst),
	}
}

func (c *Client) BaseURL() string {
	return c.base
}

func (c *Client) post(ctx context.Context, endpoint string, body map[string]any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if body == nil {
		body = map[string]any{}
	}
	if c.network == NetworkTestnet11 {
		if _, ok := body["network"]; !ok {
			body["network"] = NetworkTestnet11
		}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/"+strings.TrimLeft(endpoint, "/"), bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "greenfloor")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		snippet := strings.TrimSpace(string(data))
		if len(snippet) > 160 {
			snippet = snippet[:160]
		}
		return &APIError{Status: resp.StatusCode, Body: snippet}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("coinset invalid response payload: %w", err)
	}
	return nil
}

type baseResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (c *Client) GetAllMempoolTxIDs(ctx context.Context) ([]string, error) {
	var resp struct {
		baseResponse
		TxIDs        []string `json:"tx_ids"`
		MempoolTxIDs []string `json:"mempool_tx_ids"`
	}
	if err := c.post(ctx, "get_all_mempool_tx_ids", nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, nil
	}
	if len(resp.TxIDs) > 0 {
		return resp.TxIDs, nil
	}
	return resp.MempoolTxIDs, nil
}

func (c *Client) GetCoinRecordsByPuzzleHash(ctx context.Context, puzzleHash string, includeSpent bool) ([]CoinRecord, error) {
	var resp struct {
		baseResponse
		CoinRecords []CoinRecord `json:"coin_records"`
	}
	err := c.post(ctx, "get_coin_records_by_puzzle_hash", map[string]any{
		"puzzle_hash":         puzzleHash,
		"include_spent_coins": includeSpent,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, nil
	}
	return resp.CoinRecords, nil
}

func (c *Client) GetCoinRecordByName(ctx context.Context, name string) (*CoinRecord, error) {
	var resp struct {
		baseResponse
		CoinRecord *CoinRecord `json:"coin_record"`
	}
	if err := c.post(ctx, "get_coin_record_by_name", map[string]any{"name": name}, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, nil
	}
	return resp.CoinRecord, nil
}

type PushResult struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Error   string `json:"error"`
}

func (c *Client) PushTx(ctx context.Context, spendBundleHex string) (PushResult, error) {
	var resp PushResult
	err := c.post(ctx, "push_tx", map[string]any{"spend_bundle": spendBundleHex}, &resp)
	return resp, err
}

// ConservativeFeeEstimate returns the largest non-negative estimate over the
// longer target windows. ok is false when the ledger had nothing usable.
func (c *Client) ConservativeFeeEstimate(ctx context.Context, targetSeconds int) (int64, bool, error) {
	targets := []int{300, 600, 1200}
	if targetSeconds > 0 {
		targets = []int{targetSeconds}
	}
	var resp struct {
		baseResponse
		Estimates   []json.Number `json:"estimates"`
		FeeEstimate *json.Number  `json:"fee_estimate"`
	}
	err := c.post(ctx, "get_fee_estimate", map[string]any{"target_times": targets, "cost": 1_000_000}, &resp)
	if err != nil {
		return 0, false, err
	}
	if !resp.Success {
		return 0, false, nil
	}
	best, found := int64(0), false
	for _, v := range resp.Estimates {
		n, err := v.Float64()
		if err != nil || n < 0 {
			continue
		}
		if !found || int64(n) > best {
			best, found = int64(n), true
		}
	}
	if found {
		return best, true, nil
	}
	if resp.FeeEstimate != nil {
		if n, err := resp.FeeEstimate.Float64(); err == nil && n >= 0 {
			return int64(n), true, nil
		}
	}
	return 0, false, nil
}

type BlockchainState struct {
	Peak struct {
		Height int64 `json:"height"`
	} `json:"peak"`
	Sync struct {
		Synced bool `json:"synced"`
	} `json:"sync"`
}

func (c *Client) GetBlockchainState(ctx context.Context) (*BlockchainState, error) {
	var resp struct {
		baseResponse
		BlockchainState *BlockchainState `json:"blockchain_state"`
	}
	if err := c.post(ctx, "get_blockchain_state", nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success || resp.BlockchainState == nil {
		return nil, nil
	}
	return resp.BlockchainState, nil
}

// PeakHeight satisfies the reorg waiter.
func (c *Client) PeakHeight(ctx context.Context) (int64, error) {
	st, err := c.GetBlockchainState(ctx)
	if err != nil || st == nil {
		return 0, err
	}
	return st.Peak.Height, nil
}
