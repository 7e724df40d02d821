package venue

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"greenfloor/internal/config"
)

func TestDexieGetOffer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/offers/live":
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "offer": map[string]any{"id": "live", "status": 4}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	d := NewDexie(config.VenueEndpointConfig{APIBase: srv.URL, RatePerSec: 100, Burst: 10}, true)
	st, err := d.GetOffer(context.Background(), "live")
	if err != nil || st.Status != 4 {
		t.Fatalf("status=%d err=%v", st.Status, err)
	}
	if _, err := d.GetOffer(context.Background(), "gone"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v want not found", err)
	}
}

func TestDexiePostOffer(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		if got["offer"] == "offer1bad" {
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "invalid offer"})
			return
		}
		if got["offer"] == "offer1down" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "id": "abc"})
	}))
	defer srv.Close()

	d := NewDexie(config.VenueEndpointConfig{APIBase: srv.URL, RatePerSec: 100, Burst: 10}, true)
	res, err := d.PostOffer(context.Background(), "offer1good")
	if err != nil || res.OfferID != "abc" {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	if got["drop_only"] != true {
		t.Fatalf("drop_only=%v", got["drop_only"])
	}

	_, err = d.PostOffer(context.Background(), "offer1bad")
	var rej *RejectedError
	if !errors.As(err, &rej) || rej.Code != "dexie_post_rejected" {
		t.Fatalf("err=%v want rejection", err)
	}

	_, err = d.PostOffer(context.Background(), "offer1down")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode() != http.StatusBadGateway {
		t.Fatalf("err=%v want 502", err)
	}
}

func TestSplashUnsupported(t *testing.T) {
	s := NewSplash(config.VenueEndpointConfig{APIBase: "http://127.0.0.1:1"})
	if _, err := s.GetOffer(context.Background(), "x"); !errors.Is(err, ErrNotSupported) {
		t.Fatalf("err=%v", err)
	}
	if err := s.CancelOffer(context.Background(), "x"); !errors.Is(err, ErrNotSupported) {
		t.Fatalf("err=%v", err)
	}
}
