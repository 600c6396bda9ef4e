package media

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"groupswipe/config"
	"groupswipe/logging"
	"groupswipe/metrics"
	"groupswipe/models"
)

// Operation names a class of upstream calls sharing one circuit breaker.
type Operation string

const (
	OpFetch   Operation = "fetch"
	OpDetails Operation = "details"
	OpSearch  Operation = "search"
)

// Source tells where a resolved value came from.
type Source string

const (
	SourceUpstream    Source = "upstream"
	SourceCache       Source = "cache"
	SourceUnavailable Source = "unavailable"
)

// Resolution is the outcome of Resolve. Value is the zero value when Source
// is SourceUnavailable. NotFound is set when the upstream reported that the
// item does not exist.
type Resolution[T any] struct {
	Value    T
	Source   Source
	NotFound bool
}

// Resolver runs upstream calls through its breaker registry and answers
// from the cache when the upstream fails or its circuit is open.
type Resolver struct {
	provider Provider
	cache    Cache
	signer   *ArtworkSigner
	breakers map[Operation]*gobreaker.CircuitBreaker[any]

	wg sync.WaitGroup
}

// NewResolver builds a resolver with one breaker per operation. cache and
// signer may be nil.
func NewResolver(provider Provider, cache Cache, signer *ArtworkSigner, cfg config.BreakerConfig) *Resolver {
	r := &Resolver{
		provider: provider,
		cache:    cache,
		signer:   signer,
		breakers: make(map[Operation]*gobreaker.CircuitBreaker[any]),
	}
	for _, op := range []Operation{OpFetch, OpDetails, OpSearch} {
		r.breakers[op] = newBreaker("media-"+string(op), cfg)
	}
	return r
}

func newBreaker(name string, cfg config.BreakerConfig) *gobreaker.CircuitBreaker[any] {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	halfOpen := cfg.HalfOpenRequests
	if halfOpen == 0 {
		halfOpen = 1
	}

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: halfOpen,
		Interval:    cfg.Interval,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrItemNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// State reports the breaker state for op.
func (r *Resolver) State(op Operation) gobreaker.State {
	cb, ok := r.breakers[op]
	if !ok {
		return gobreaker.StateClosed
	}
	return cb.State()
}

// Resolve calls primary through the breaker for op. A failed or rejected
// call is answered by fallback; if fallback has nothing, the resolution is
// SourceUnavailable. Resolve itself never fails.
func Resolve[T any](ctx context.Context, r *Resolver, op Operation, primary func(context.Context) (T, error), fallback func(context.Context) (T, bool)) Resolution[T] {
	cb, ok := r.breakers[op]
	if !ok {
		logging.Ctx(ctx).Error().Str("operation", string(op)).Msg("No circuit breaker registered for operation")
		return fallbackOnly(ctx, op, fallback)
	}
	name := cb.Name()

	result, err := cb.Execute(func() (any, error) {
		return primary(ctx)
	})
	if err == nil {
		value, castErr := castResult[T](result)
		if castErr == nil {
			metrics.CircuitBreakerRequests.WithLabelValues(name, "success").Inc()
			metrics.MediaResolutions.WithLabelValues(string(op), string(SourceUpstream)).Inc()
			return Resolution[T]{Value: value, Source: SourceUpstream}
		}
		err = castErr
	}

	switch {
	case errors.Is(err, ErrItemNotFound):
		metrics.CircuitBreakerRequests.WithLabelValues(name, "success").Inc()
		metrics.MediaResolutions.WithLabelValues(string(op), string(SourceUnavailable)).Inc()
		var zero T
		return Resolution[T]{Value: zero, Source: SourceUnavailable, NotFound: true}
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(name, "rejected").Inc()
		logging.Ctx(ctx).Debug().Str("breaker", name).Msg("Circuit open, using fallback")
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(name, "failure").Inc()
		logging.Ctx(ctx).Warn().Err(err).Str("breaker", name).Msg("Upstream call failed, using fallback")
	}

	return fallbackOnly(ctx, op, fallback)
}

func fallbackOnly[T any](ctx context.Context, op Operation, fallback func(context.Context) (T, bool)) Resolution[T] {
	if fallback != nil {
		if value, ok := fallback(ctx); ok {
			metrics.MediaResolutions.WithLabelValues(string(op), string(SourceCache)).Inc()
			return Resolution[T]{Value: value, Source: SourceCache}
		}
	}
	metrics.MediaResolutions.WithLabelValues(string(op), string(SourceUnavailable)).Inc()
	var zero T
	return Resolution[T]{Value: zero, Source: SourceUnavailable}
}

// castResult recovers the typed value from the breaker's untyped result.
func castResult[T any](result any) (T, error) {
	if result == nil {
		var zero T
		return zero, nil
	}
	typed, ok := result.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

// Details resolves one item's metadata.
func (r *Resolver) Details(ctx context.Context, itemID string) Resolution[*models.MediaItem] {
	res := Resolve(ctx, r, OpDetails,
		func(ctx context.Context) (*models.MediaItem, error) {
			item, err := r.provider.DetailsByItemID(ctx, itemID)
			if err != nil {
				return nil, err
			}
			if item == nil || !item.Valid() {
				return nil, fmt.Errorf("details for %s: %w", itemID, ErrInvalidMetadata)
			}
			return item, nil
		},
		func(ctx context.Context) (*models.MediaItem, bool) {
			var item models.MediaItem
			if !r.fromCache(ctx, detailsKey(itemID), &item) {
				return nil, false
			}
			return &item, true
		},
	)
	switch res.Source {
	case SourceUpstream:
		// presigned URLs expire long before cache entries do
		cached := *res.Value
		cached.PosterURL = ""
		r.store(ctx, detailsKey(itemID), &cached)
		r.sign(ctx, res.Value)
	case SourceCache:
		r.sign(ctx, res.Value)
	}
	return res
}

// Search resolves a free-text query.
func (r *Resolver) Search(ctx context.Context, query string) Resolution[[]models.MediaItem] {
	key := searchKey(query)
	res := Resolve(ctx, r, OpSearch,
		func(ctx context.Context) ([]models.MediaItem, error) {
			return r.provider.SearchByText(ctx, query)
		},
		func(ctx context.Context) ([]models.MediaItem, bool) {
			var items []models.MediaItem
			ok := r.fromCache(ctx, key, &items)
			return items, ok
		},
	)
	if res.Source == SourceUpstream {
		r.store(ctx, key, res.Value)
	}
	return res
}

// Discover resolves a filtered listing.
func (r *Resolver) Discover(ctx context.Context, filters models.DiscoverFilters) Resolution[[]models.MediaItem] {
	key := discoverKey(filters)
	res := Resolve(ctx, r, OpFetch,
		func(ctx context.Context) ([]models.MediaItem, error) {
			return r.provider.DiscoverByFilters(ctx, filters)
		},
		func(ctx context.Context) ([]models.MediaItem, bool) {
			var items []models.MediaItem
			ok := r.fromCache(ctx, key, &items)
			return items, ok
		},
	)
	if res.Source == SourceUpstream {
		r.store(ctx, key, res.Value)
	}
	return res
}

// ResolveItem adapts Details for callers that only need the item and its source.
func (r *Resolver) ResolveItem(ctx context.Context, itemID string) (*models.MediaItem, string, error) {
	res := r.Details(ctx, itemID)
	if res.NotFound {
		return nil, string(res.Source), fmt.Errorf("item %s: %w", itemID, ErrItemNotFound)
	}
	return res.Value, string(res.Source), nil
}

// Wait blocks until pending cache writes have finished.
func (r *Resolver) Wait() {
	r.wg.Wait()
}

func (r *Resolver) fromCache(ctx context.Context, key string, dst any) bool {
	if r.cache == nil {
		return false
	}
	found, err := r.cache.Get(ctx, key, dst)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("Media cache read failed")
		return false
	}
	return found
}

// store writes value to the cache on a tracked goroutine.
func (r *Resolver) store(ctx context.Context, key string, value any) {
	if r.cache == nil {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := r.cache.Set(cctx, key, value); err != nil {
			logging.Warn().Err(err).Str("key", key).Msg("Media cache write failed")
		}
	}()
}

func (r *Resolver) sign(ctx context.Context, item *models.MediaItem) {
	if r.signer == nil || item == nil {
		return
	}
	if err := r.signer.Sign(ctx, item); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("item_id", item.ID).Msg("Failed to sign artwork URL")
	}
}
