// Package media resolves queue items to displayable metadata. Upstream calls
// go through per-operation circuit breakers and fall back to a local cache.
package media

import (
	"context"
	"errors"

	"groupswipe/models"
)

var (
	// ErrItemNotFound means the upstream knows no such item. It is an answer,
	// not an outage, and never trips a breaker.
	ErrItemNotFound = errors.New("media item not found")
	// ErrUpstreamUnavailable marks transient upstream failures.
	ErrUpstreamUnavailable = errors.New("media upstream unavailable")
	// ErrInvalidMetadata is returned when the upstream answers without usable data.
	ErrInvalidMetadata = errors.New("invalid media metadata")
)

// Provider is the upstream media metadata source.
type Provider interface {
	DetailsByItemID(ctx context.Context, itemID string) (*models.MediaItem, error)
	SearchByText(ctx context.Context, query string) ([]models.MediaItem, error)
	DiscoverByFilters(ctx context.Context, filters models.DiscoverFilters) ([]models.MediaItem, error)
}
