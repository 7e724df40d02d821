package signer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	ReasonMissingExpiry         = "missing_expiry_assertion"
	ReasonInsufficientInventory = "insufficient_inventory"
	ReasonCoinSelectionFailed   = "coin_selection_failed"
	ReasonSigningFailed         = "signing_failed"

	StatusSigned  = "signed"
	StatusPending = "pending"
)

// Error is a refusal from the signing boundary. The code is the machine-readable reason.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) ReasonCode() string {
	return e.Code
}

var ErrMissingExpiry = &Error{Code: ReasonMissingExpiry, Message: "offer artifact carries no expiry assertion"}

type ExpiryAssertion struct {
	Kind  string `json:"kind"`
	Value int64  `json:"value"`
}

type OfferRequest struct {
	MarketID        string          `json:"market_id"`
	KeyID           string          `json:"key_id"`
	Network         string          `json:"network"`
	Side            string          `json:"side"`
	Pair            string          `json:"pair"`
	BaseAsset       string          `json:"base_asset"`
	QuoteAsset      string          `json:"quote_asset"`
	ReceiveAddress  string          `json:"receive_address"`
	SizeBaseUnits   int64           `json:"size_base_units"`
	QuotePerBase    decimal.Decimal `json:"quote_price_quote_per_base"`
	BaseMultiplier  int64           `json:"base_unit_mojo_multiplier"`
	QuoteMultiplier int64           `json:"quote_unit_mojo_multiplier"`
	ExpiresAt       time.Time       `json:"expires_at"`
	Reason          string          `json:"reason"`
}

// Artifact is a signed (or pending) offer.
type Artifact struct {
	Offer              string            `json:"offer"`
	Status             string            `json:"status"`
	SignatureRequestID string            `json:"signature_request_id"`
	ExpiryAssertions   []ExpiryAssertion `json:"expiry_assertions"`
	// CoinIDs lists the coins the offer spends.
	CoinIDs            []string          `json:"coin_ids"`
}

func (a Artifact) Signed() bool {
	return a.Status == "" || a.Status == StatusSigned
}

type CoinOpRequest struct {
	OperationID    string `json:"operation_id"`
	KeyID          string `json:"key_id"`
	Network        string `json:"network"`
	ReceiveAddress string `json:"receive_address"`
	AssetID        string `json:"asset_id"`
	OpType         string `json:"op_type"`
	SizeBaseUnits  int64  `json:"size_base_units"`
	OpCount        int    `json:"op_count"`
	FeeMojos       int64  `json:"fee_mojos"`
}

type CancelRequest struct {
	OfferID  string `json:"offer_id"`
	KeyID    string `json:"key_id"`
	Network  string `json:"network"`
	FeeMojos int64  `json:"fee_mojos"`
}

type SpendBundle struct {
	Hex  string `json:"spend_bundle_hex"`
	TxID string `json:"tx_id"`
}

// Builder is the key-holding side. The daemon never sees private keys.
type Builder interface {
	BuildOffer(ctx context.Context, req OfferRequest) (Artifact, error)
	SignatureStatus(ctx context.Context, requestID string) (Artifact, error)
	SignCoinOp(ctx context.Context, req CoinOpRequest) (SpendBundle, error)
	SignCancel(ctx context.Context, req CancelRequest) (SpendBundle, error)
}

// CheckExpiry gates posting: every artifact must carry an expiry assertion.
func CheckExpiry(a Artifact) error {
	for _, ea := range a.ExpiryAssertions {
		if strings.TrimSpace(ea.Kind) != "" && ea.Value > 0 {
			return nil
		}
	}
	return ErrMissingExpiry
}

// ClassifyReason maps free-form sidecar reasons onto the stable codes.
func ClassifyReason(reason string) string {
	r := strings.ToLower(strings.TrimSpace(reason))
	switch {
	case r == "":
		return ReasonSigningFailed
	case strings.HasPrefix(r, ReasonCoinSelectionFailed):
		return ReasonCoinSelectionFailed
	case strings.Contains(r, "insufficient"), strings.HasPrefix(r, "no_unspent"):
		return ReasonInsufficientInventory
	case strings.HasPrefix(r, ReasonMissingExpiry):
		return ReasonMissingExpiry
	}
	if i := strings.IndexByte(r, ':'); i > 0 {
		return r[:i]
	}
	return r
}
