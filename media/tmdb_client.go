package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"groupswipe/config"
	"groupswipe/metrics"
	"groupswipe/models"
)

// tvPrefix marks item ids that refer to TV shows; bare numeric ids are movies.
const tvPrefix = "tv-"

var _ Provider = (*TMDBClient)(nil)

// TMDBClient talks to a TMDB-compatible REST API. Calls are throttled with a
// token bucket shared by every operation.
type TMDBClient struct {
	baseURL    string
	apiKey     string
	language   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewTMDBClient builds a client from cfg.
func NewTMDBClient(cfg config.MediaConfig) *TMDBClient {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = max(1, int(cfg.RequestsPerSecond))
	}
	return &TMDBClient{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		language:   cfg.Language,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
	}
}

type tmdbGenre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// tmdbItem covers both the movie and TV shapes of details and list results.
type tmdbItem struct {
	ID           int         `json:"id"`
	MediaType    string      `json:"media_type"`
	Title        string      `json:"title"`
	Name         string      `json:"name"`
	Overview     string      `json:"overview"`
	ReleaseDate  string      `json:"release_date"`
	FirstAirDate string      `json:"first_air_date"`
	PosterPath   string      `json:"poster_path"`
	VoteAverage  float64     `json:"vote_average"`
	Genres       []tmdbGenre `json:"genres"`
}

type tmdbPage struct {
	Page    int        `json:"page"`
	Results []tmdbItem `json:"results"`
}

func (t tmdbItem) toModel(mediaType string) models.MediaItem {
	if t.MediaType != "" {
		mediaType = t.MediaType
	}
	item := models.MediaItem{
		ID:          strconv.Itoa(t.ID),
		Title:       t.Title,
		Overview:    t.Overview,
		ReleaseDate: t.ReleaseDate,
		PosterPath:  t.PosterPath,
		Rating:      t.VoteAverage,
		MediaType:   mediaType,
	}
	if mediaType == "tv" {
		item.ID = tvPrefix + item.ID
		item.Title = t.Name
		item.ReleaseDate = t.FirstAirDate
	}
	if len(item.ReleaseDate) >= 4 {
		item.Year, _ = strconv.Atoi(item.ReleaseDate[:4])
	}
	for _, g := range t.Genres {
		item.Genres = append(item.Genres, g.Name)
	}
	return item
}

// DetailsByItemID fetches one movie or show.
func (c *TMDBClient) DetailsByItemID(ctx context.Context, itemID string) (*models.MediaItem, error) {
	mediaType, id := "movie", itemID
	if rest, ok := strings.CutPrefix(itemID, tvPrefix); ok {
		mediaType, id = "tv", rest
	}
	if _, err := strconv.Atoi(id); err != nil {
		return nil, fmt.Errorf("item %q: %w", itemID, ErrItemNotFound)
	}

	var raw tmdbItem
	if err := c.get(ctx, "details", "/"+mediaType+"/"+id, nil, &raw); err != nil {
		return nil, err
	}
	item := raw.toModel(mediaType)
	return &item, nil
}

// SearchByText searches movies and shows; people are dropped.
func (c *TMDBClient) SearchByText(ctx context.Context, query string) ([]models.MediaItem, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.MediaItem{}, nil
	}
	params := url.Values{}
	params.Set("query", query)

	var page tmdbPage
	if err := c.get(ctx, "search", "/search/multi", params, &page); err != nil {
		return nil, err
	}
	items := make([]models.MediaItem, 0, len(page.Results))
	for _, r := range page.Results {
		if r.MediaType != "movie" && r.MediaType != "tv" {
			continue
		}
		items = append(items, r.toModel(r.MediaType))
	}
	return items, nil
}

// DiscoverByFilters lists movies (or shows, for MediaType "tv") matching filters.
func (c *TMDBClient) DiscoverByFilters(ctx context.Context, filters models.DiscoverFilters) ([]models.MediaItem, error) {
	mediaType := "movie"
	yearParam := "primary_release_year"
	if strings.EqualFold(filters.MediaType, "tv") {
		mediaType = "tv"
		yearParam = "first_air_date_year"
	}

	params := url.Values{}
	params.Set("sort_by", "popularity.desc")
	if filters.Genre != "" {
		params.Set("with_genres", filters.Genre)
	}
	if filters.Year > 0 {
		params.Set(yearParam, strconv.Itoa(filters.Year))
	}
	if filters.Page > 0 {
		params.Set("page", strconv.Itoa(filters.Page))
	}

	var page tmdbPage
	if err := c.get(ctx, "discover", "/discover/"+mediaType, params, &page); err != nil {
		return nil, err
	}
	items := make([]models.MediaItem, 0, len(page.Results))
	for _, r := range page.Results {
		items = append(items, r.toModel(mediaType))
	}
	return items, nil
}

// get performs a throttled GET and decodes the JSON body into dst.
// 404 maps to ErrItemNotFound; 429, 5xx and transport errors to
// ErrUpstreamUnavailable.
func (c *TMDBClient) get(ctx context.Context, endpoint, path string, params url.Values, dst any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s rate limit wait: %w", endpoint, err)
	}

	if params == nil {
		params = url.Values{}
	}
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}
	if c.language != "" {
		params.Set("language", c.language)
	}
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("create %s request failed: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.UpstreamRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("%s request: %w", endpoint, err)
		}
		return fmt.Errorf("%s request: %v: %w", endpoint, err, ErrUpstreamUnavailable)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", endpoint, path, ErrItemNotFound)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%s returned status %d: %w", endpoint, resp.StatusCode, ErrUpstreamUnavailable)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("failed to decode %s response: %v: %w", endpoint, err, ErrInvalidMetadata)
	}
	return nil
}
