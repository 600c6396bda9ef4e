package media

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"groupswipe/config"
	"groupswipe/models"
)

// fakeProvider answers from fixed items and counts upstream calls.
type fakeProvider struct {
	mu      sync.Mutex
	calls   map[string]int
	items   map[string]models.MediaItem
	results []models.MediaItem
	err     error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		calls: make(map[string]int),
		items: map[string]models.MediaItem{
			"603": {ID: "603", Title: "The Matrix", Year: 1999, PosterPath: "/matrix.jpg"},
			"680": {ID: "680", Title: "Pulp Fiction", Year: 1994},
		},
		results: []models.MediaItem{{ID: "603", Title: "The Matrix"}},
	}
}

func (p *fakeProvider) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *fakeProvider) count(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

func (p *fakeProvider) DetailsByItemID(_ context.Context, itemID string) (*models.MediaItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["details"]++
	if p.err != nil {
		return nil, p.err
	}
	item, ok := p.items[itemID]
	if !ok {
		return nil, fmt.Errorf("item %s: %w", itemID, ErrItemNotFound)
	}
	return &item, nil
}

func (p *fakeProvider) SearchByText(context.Context, string) ([]models.MediaItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["search"]++
	if p.err != nil {
		return nil, p.err
	}
	return append([]models.MediaItem(nil), p.results...), nil
}

func (p *fakeProvider) DiscoverByFilters(context.Context, models.DiscoverFilters) ([]models.MediaItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["discover"]++
	if p.err != nil {
		return nil, p.err
	}
	return append([]models.MediaItem(nil), p.results...), nil
}

func newTestCache(t *testing.T) *BadgerCache {
	t.Helper()
	cache, err := OpenBadgerCache("", time.Hour)
	if err != nil {
		t.Fatalf("OpenBadgerCache: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func newTestResolver(t *testing.T, p Provider, cooldown time.Duration) *Resolver {
	t.Helper()
	r := NewResolver(p, newTestCache(t), nil, config.BreakerConfig{
		FailureThreshold: 3,
		Interval:         time.Minute,
		Cooldown:         cooldown,
		HalfOpenRequests: 1,
	})
	t.Cleanup(r.Wait)
	return r
}

func TestDetailsFromUpstreamPopulatesCache(t *testing.T) {
	p := newFakeProvider()
	r := newTestResolver(t, p, time.Hour)
	ctx := context.Background()

	res := r.Details(ctx, "603")
	if res.Source != SourceUpstream || res.Value == nil || res.Value.Title != "The Matrix" {
		t.Fatalf("Details = %+v", res)
	}
	r.Wait()

	var cached models.MediaItem
	found, err := r.cache.Get(ctx, detailsKey("603"), &cached)
	if err != nil || !found {
		t.Fatalf("cache lookup found=%v err=%v", found, err)
	}
	if cached.Title != "The Matrix" {
		t.Errorf("cached title = %q", cached.Title)
	}
}

func TestBreakerOpensAndServesFromCache(t *testing.T) {
	p := newFakeProvider()
	r := newTestResolver(t, p, time.Hour)
	ctx := context.Background()

	if res := r.Details(ctx, "603"); res.Source != SourceUpstream {
		t.Fatalf("warm-up source = %s", res.Source)
	}
	r.Wait()

	p.fail(ErrUpstreamUnavailable)
	for i := range 3 {
		res := r.Details(ctx, "603")
		if res.Source != SourceCache {
			t.Fatalf("failure %d: source = %s, want cache", i, res.Source)
		}
	}
	if got := r.State(OpDetails); got != gobreaker.StateOpen {
		t.Fatalf("state = %s, want open", got)
	}

	before := p.count("details")
	for range 5 {
		res := r.Details(ctx, "603")
		if res.Source != SourceCache || res.Value.Title != "The Matrix" {
			t.Fatalf("open circuit: %+v", res)
		}
	}
	if after := p.count("details"); after != before {
		t.Errorf("upstream called %d times while open", after-before)
	}

	// Other operations have their own breaker.
	if got := r.State(OpSearch); got != gobreaker.StateClosed {
		t.Errorf("search breaker = %s, want closed", got)
	}
}

func TestOpenCircuitWithoutCacheIsUnavailable(t *testing.T) {
	p := newFakeProvider()
	p.fail(errors.New("connection refused"))
	r := newTestResolver(t, p, time.Hour)
	ctx := context.Background()

	for range 4 {
		res := r.Details(ctx, "680")
		if res.Source != SourceUnavailable || res.Value != nil || res.NotFound {
			t.Fatalf("Details = %+v, want unavailable", res)
		}
	}
	if got := p.count("details"); got != 3 {
		t.Errorf("upstream calls = %d, want 3", got)
	}
}

func TestNotFoundDoesNotTrip(t *testing.T) {
	p := newFakeProvider()
	r := newTestResolver(t, p, time.Hour)
	ctx := context.Background()

	for range 5 {
		res := r.Details(ctx, "missing")
		if !res.NotFound || res.Source != SourceUnavailable {
			t.Fatalf("Details = %+v, want not found", res)
		}
	}
	if got := r.State(OpDetails); got != gobreaker.StateClosed {
		t.Errorf("state = %s, want closed", got)
	}
	if got := p.count("details"); got != 5 {
		t.Errorf("upstream calls = %d, want 5", got)
	}

	_, _, err := r.ResolveItem(ctx, "missing")
	if !errors.Is(err, ErrItemNotFound) {
		t.Errorf("ResolveItem err = %v", err)
	}
}

func TestHalfOpenRecovers(t *testing.T) {
	p := newFakeProvider()
	r := newTestResolver(t, p, 20*time.Millisecond)
	ctx := context.Background()

	p.fail(ErrUpstreamUnavailable)
	for range 3 {
		r.Search(ctx, "matrix")
	}
	if got := r.State(OpSearch); got != gobreaker.StateOpen {
		t.Fatalf("state = %s, want open", got)
	}

	time.Sleep(40 * time.Millisecond)
	p.fail(nil)

	res := r.Search(ctx, "matrix")
	if res.Source != SourceUpstream || len(res.Value) != 1 {
		t.Fatalf("Search = %+v", res)
	}
	if got := r.State(OpSearch); got != gobreaker.StateClosed {
		t.Errorf("state = %s, want closed", got)
	}
}

func TestSearchAndDiscoverFallBackToCache(t *testing.T) {
	p := newFakeProvider()
	r := newTestResolver(t, p, time.Hour)
	ctx := context.Background()
	filters := models.DiscoverFilters{Genre: "28", Year: 1999}

	r.Search(ctx, "The  Matrix")
	r.Discover(ctx, filters)
	r.Wait()

	p.fail(ErrUpstreamUnavailable)
	if res := r.Search(ctx, "the matrix"); res.Source != SourceCache || len(res.Value) != 1 {
		t.Errorf("Search = %+v, want cached result", res)
	}
	if res := r.Discover(ctx, filters); res.Source != SourceCache || len(res.Value) != 1 {
		t.Errorf("Discover = %+v, want cached result", res)
	}
	if res := r.Discover(ctx, models.DiscoverFilters{Genre: "35"}); res.Source != SourceUnavailable {
		t.Errorf("uncached Discover source = %s", res.Source)
	}
}

func TestInvalidMetadataIsAFailure(t *testing.T) {
	p := newFakeProvider()
	p.items["blank"] = models.MediaItem{ID: "blank"}
	r := newTestResolver(t, p, time.Hour)

	res := r.Details(context.Background(), "blank")
	if res.Source != SourceUnavailable || res.NotFound {
		t.Errorf("Details = %+v, want unavailable", res)
	}
}

func TestDetailsSignsPosterButCachesUnsigned(t *testing.T) {
	p := newFakeProvider()
	presigner := &fakePresigner{}
	r := NewResolver(p, newTestCache(t), &ArtworkSigner{Presigner: presigner, Bucket: "art", TTL: time.Minute}, config.BreakerConfig{})
	t.Cleanup(r.Wait)
	ctx := context.Background()

	res := r.Details(ctx, "603")
	if res.Value == nil || res.Value.PosterURL != "https://art.example/posters/matrix.jpg?get" {
		t.Fatalf("Details = %+v", res.Value)
	}
	r.Wait()

	var cached models.MediaItem
	if found, err := r.cache.Get(ctx, detailsKey("603"), &cached); err != nil || !found {
		t.Fatalf("cache lookup found=%v err=%v", found, err)
	}
	if cached.PosterURL != "" {
		t.Errorf("cached poster url = %q, want empty", cached.PosterURL)
	}
}
