package venue

import (
	"context"
	"net/http"
	"strings"

	"greenfloor/internal/config"
)

const DefaultSplashBase = "http://localhost:4000"

// Splash only accepts posts. Status and cancel are reported as not supported.
type Splash struct {
	c *httpClient
}

func NewSplash(cfg config.VenueEndpointConfig) *Splash {
	return &Splash{c: newHTTPClient(cfg, DefaultSplashBase)}
}

func (s *Splash) Name() string {
	return ProviderSplash
}

func (s *Splash) PostOffer(ctx context.Context, offer string) (PostResult, error) {
	if strings.TrimSpace(offer) == "" {
		return PostResult{}, &RejectedError{Code: "empty_offer"}
	}
	payload, err := s.c.doJSON(ctx, http.MethodPost, "", map[string]any{"offer": offer})
	if err != nil {
		return PostResult{}, err
	}
	if success, ok := payload["success"].(bool); ok && !success {
		return PostResult{Payload: payload}, &RejectedError{Code: "splash_post_rejected", Message: stringField(payload, "error", "message")}
	}
	return PostResult{OfferID: stringField(payload, "id", "offer_id"), Payload: payload}, nil
}

func (s *Splash) GetOffer(ctx context.Context, offerID string) (OfferStatus, error) {
	return OfferStatus{OfferID: offerID}, ErrNotSupported
}

func (s *Splash) CancelOffer(ctx context.Context, offerID string) error {
	return ErrNotSupported
}
