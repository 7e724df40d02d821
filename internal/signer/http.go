package signer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"greenfloor/internal/config"
)

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("signer API error (%d): %s", e.Status, e.Body)
}

func (e *APIError) StatusCode() int {
	return e.Status
}

// HTTPBuilder talks to the local signing sidecar.
type HTTPBuilder struct {
	base string
	http *http.Client
}

func NewHTTPBuilder(cfg config.SignerConfig) *HTTPBuilder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPBuilder{
		base: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		http: &http.Client{Timeout: timeout},
	}
}

type envelope struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (b *HTTPBuilder) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return err
	}

	var env envelope
	_ = json.Unmarshal(data, &env)
	if env.Error != nil && env.Error.Code != "" {
		return &Error{Code: ClassifyReason(env.Error.Code), Message: env.Error.Message}
	}
	if env.Status == "skipped" || env.Status == "failed" {
		return &Error{Code: ClassifyReason(env.Reason), Message: env.Reason}
	}
	if resp.StatusCode >= 300 {
		snippet := strings.TrimSpace(string(data))
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return &APIError{Status: resp.StatusCode, Body: snippet}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("signer invalid response payload: %w", err)
	}
	return nil
}

func (b *HTTPBuilder) BuildOffer(ctx context.Context, req OfferRequest) (Artifact, error) {
	var out Artifact
	err := b.do(ctx, http.MethodPost, "/v1/offers/build", req, &out)
	return out, err
}

func (b *HTTPBuilder) SignatureStatus(ctx context.Context, requestID string) (Artifact, error) {
	var out Artifact
	err := b.do(ctx, http.MethodGet, "/v1/signature-requests/"+url.PathEscape(requestID), nil, &out)
	return out, err
}

func (b *HTTPBuilder) SignCoinOp(ctx context.Context, req CoinOpRequest) (SpendBundle, error) {
	var out SpendBundle
	err := b.do(ctx, http.MethodPost, "/v1/coin-ops/sign", req, &out)
	return out, err
}

func (b *HTTPBuilder) SignCancel(ctx context.Context, req CancelRequest) (SpendBundle, error) {
	var out SpendBundle
	err := b.do(ctx, http.MethodPost, "/v1/offers/cancel/sign", req, &out)
	return out, err
}
