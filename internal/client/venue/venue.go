package venue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"greenfloor/internal/config"
)

const (
	ProviderDexie  = "dexie"
	ProviderSplash = "splash"
)

var (
	ErrNotFound     = errors.New("offer not found on venue")
	ErrNotSupported = errors.New("operation not supported by venue")
)

// OfferStatus is a venue's view of one offer. Payload keeps the raw body so
// callers can mine it for ledger tx ids.
type OfferStatus struct {
	OfferID string
	Status  int
	Payload map[string]any
}

type PostResult struct {
	OfferID string
	Payload map[string]any
}

// Venue is one posting provider. Implementations are selected once from config.
type Venue interface {
	Name() string
	PostOffer(ctx context.Context, offer string) (PostResult, error)
	GetOffer(ctx context.Context, offerID string) (OfferStatus, error)
	CancelOffer(ctx context.Context, offerID string) error
}

// RejectedError is a venue-side refusal. It is never retried.
type RejectedError struct {
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RejectedError) ReasonCode() string {
	return e.Code
}

func New(cfg config.OfferPublishConfig, venues config.VenuesConfig) (Venue, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderDexie, "":
		return NewDexie(venues.Dexie, cfg.DropOnly), nil
	case ProviderSplash:
		return NewSplash(venues.Splash), nil
	}
	return nil, fmt.Errorf("unknown offer publish provider %q", cfg.Provider)
}
