package venue

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"greenfloor/internal/config"
)

const DefaultDexieBase = "https://api.dexie.space"

type Dexie struct {
	c        *httpClient
	dropOnly bool
}

func NewDexie(cfg config.VenueEndpointConfig, dropOnly bool) *Dexie {
	return &Dexie{c: newHTTPClient(cfg, DefaultDexieBase), dropOnly: dropOnly}
}

func (d *Dexie) Name() string {
	return ProviderDexie
}

// PostOffer succeeds only when the venue reports success and returns an id.
func (d *Dexie) PostOffer(ctx context.Context, offer string) (PostResult, error) {
	if strings.TrimSpace(offer) == "" {
		return PostResult{}, &RejectedError{Code: "empty_offer"}
	}
	payload, err := d.c.doJSON(ctx, http.MethodPost, "/v1/offers", map[string]any{
		"offer":     offer,
		"drop_only": d.dropOnly,
	})
	if err != nil {
		return PostResult{}, err
	}
	id := stringField(payload, "id")
	if !boolField(payload, "success") || id == "" {
		return PostResult{Payload: payload}, &RejectedError{Code: "dexie_post_rejected", Message: stringField(payload, "error", "message")}
	}
	return PostResult{OfferID: id, Payload: payload}, nil
}

func (d *Dexie) GetOffer(ctx context.Context, offerID string) (OfferStatus, error) {
	offerID = strings.TrimSpace(offerID)
	if offerID == "" {
		return OfferStatus{}, &RejectedError{Code: "offer_id_required"}
	}
	payload, err := d.c.doJSON(ctx, http.MethodGet, "/v1/offers/"+url.PathEscape(offerID), nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return OfferStatus{OfferID: offerID}, ErrNotFound
	}
	if err != nil {
		return OfferStatus{}, err
	}
	return parseDexieOffer(offerID, payload)
}

func parseDexieOffer(offerID string, payload map[string]any) (OfferStatus, error) {
	out := OfferStatus{OfferID: offerID, Status: -1, Payload: payload}
	body := payload
	if nested, ok := payload["offer"].(map[string]any); ok {
		body = nested
	} else if success, ok := payload["success"].(bool); ok && !success {
		return out, ErrNotFound
	}
	if status, ok := intField(body, "status"); ok {
		out.Status = status
	}
	return out, nil
}

func (d *Dexie) CancelOffer(ctx context.Context, offerID string) error {
	offerID = strings.TrimSpace(offerID)
	if offerID == "" {
		return &RejectedError{Code: "offer_id_required"}
	}
	payload, err := d.c.doJSON(ctx, http.MethodPost, "/v1/offers/"+url.PathEscape(offerID)+"/cancel", map[string]any{"id": offerID})
	if err != nil {
		return err
	}
	if !boolField(payload, "success") {
		return &RejectedError{Code: "dexie_cancel_rejected", Message: stringField(payload, "error", "message")}
	}
	return nil
}
