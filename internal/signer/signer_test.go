package signer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"greenfloor/internal/config"
)

func TestCheckExpiry(t *testing.T) {
	if err := CheckExpiry(Artifact{Offer: "offer1"}); !errors.Is(err, ErrMissingExpiry) {
		t.Fatalf("err=%v want=%v", err, ErrMissingExpiry)
	}
	if err := CheckExpiry(Artifact{ExpiryAssertions: []ExpiryAssertion{{Kind: "seconds_absolute", Value: 0}}}); err == nil {
		t.Fatalf("zero-valued assertion accepted")
	}
	if err := CheckExpiry(Artifact{ExpiryAssertions: []ExpiryAssertion{{Kind: "seconds_absolute", Value: 1700000000}}}); err != nil {
		t.Fatalf("err=%v", err)
	}
}

func TestClassifyReason(t *testing.T) {
	cases := map[string]string{
		"coin_selection_failed:not enough": ReasonCoinSelectionFailed,
		"no_unspent_xch_coins":             ReasonInsufficientInventory,
		"Insufficient funds":               ReasonInsufficientInventory,
		"signing_failed:bad key":           ReasonSigningFailed,
		"":                                 ReasonSigningFailed,
	}
	for in, want := range cases {
		if got := ClassifyReason(in); got != want {
			t.Fatalf("ClassifyReason(%q)=%s want=%s", in, got, want)
		}
	}
}

func TestHTTPBuilder_Responses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/offers/build":
			_, _ = w.Write([]byte(`{"offer":"offer1abc","status":"signed","expiry_assertions":[{"kind":"seconds_absolute","value":1700000600}]}`))
		case "/v1/coin-ops/sign":
			_, _ = w.Write([]byte(`{"status":"skipped","reason":"coin_selection_failed:short"}`))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`upstream`))
		}
	}))
	defer srv.Close()
	b := NewHTTPBuilder(config.SignerConfig{BaseURL: srv.URL + "/"})
	ctx := context.Background()

	a, err := b.BuildOffer(ctx, OfferRequest{MarketID: "m1", SizeBaseUnits: 1})
	if err != nil || !a.Signed() || CheckExpiry(a) != nil {
		t.Fatalf("artifact=%+v err=%v", a, err)
	}

	_, err = b.SignCoinOp(ctx, CoinOpRequest{OpType: "split"})
	var se *Error
	if !errors.As(err, &se) || se.Code != ReasonCoinSelectionFailed {
		t.Fatalf("err=%v want coin_selection_failed", err)
	}

	_, err = b.SignatureStatus(ctx, "req-1")
	var ae *APIError
	if !errors.As(err, &ae) || ae.StatusCode() != http.StatusServiceUnavailable {
		t.Fatalf("err=%v want 503 api error", err)
	}
}
