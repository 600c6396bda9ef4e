package media

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"groupswipe/metrics"
	"groupswipe/models"
)

// DefaultCacheTTL keeps resolved metadata for thirty days.
const DefaultCacheTTL = 30 * 24 * time.Hour

// Cache stores JSON-encodable values by key.
type Cache interface {
	// Get decodes the cached value into dst and reports whether it was found.
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any) error
}

// BadgerCache is a Cache backed by BadgerDB with per-entry TTLs.
type BadgerCache struct {
	db  *badger.DB
	ttl time.Duration
}

// OpenBadgerCache opens a cache in dir, or in memory when dir is empty.
func OpenBadgerCache(dir string, ttl time.Duration) (*BadgerCache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open media cache: %w", err)
	}
	return NewBadgerCache(db, ttl), nil
}

// NewBadgerCache wraps an open database.
func NewBadgerCache(db *badger.DB, ttl time.Duration) *BadgerCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &BadgerCache{db: db, ttl: ttl}
}

func (c *BadgerCache) Get(_ context.Context, key string, dst any) (bool, error) {
	var found bool
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, dst)
		})
	})
	if err != nil {
		return false, fmt.Errorf("failed to read cache key %s: %w", key, err)
	}
	metrics.RecordCacheLookup(found)
	return found, nil
}

func (c *BadgerCache) Set(_ context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), data).WithTTL(c.ttl))
	})
}

// Close releases the underlying database.
func (c *BadgerCache) Close() error {
	return c.db.Close()
}

func detailsKey(itemID string) string {
	return "details:" + itemID
}

// searchKey normalizes case and whitespace so equivalent queries share an entry.
func searchKey(query string) string {
	return "search:" + strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

func discoverKey(f models.DiscoverFilters) string {
	page := f.Page
	if page < 1 {
		page = 1
	}
	return strings.Join([]string{
		"discover",
		strings.ToLower(strings.TrimSpace(f.MediaType)),
		strings.ToLower(strings.TrimSpace(f.Genre)),
		strconv.Itoa(f.Year),
		strconv.Itoa(page),
	}, ":")
}
