// Package deezer resolves track metadata from the public Deezer API.
package deezer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"musicroom/internal/logger"
)

// ErrNotFound is returned when Deezer has no track for the requested id.
var ErrNotFound = errors.New("deezer: track not found")

// Deezer reports missing objects with HTTP 200 and this error code.
const codeDataNotFound = 800

const (
	defaultTimeout = 10 * time.Second
	maxSearchLimit = 50
)

type Track struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Link   string `json:"link"`
	Artist Artist `json:"artist"`
	Album  Album  `json:"album"`
}

type Artist struct {
	Name string `json:"name"`
}

type Album struct {
	Title string `json:"title"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type trackResponse struct {
	Track
	Error *apiError `json:"error,omitempty"`
}

type searchResponse struct {
	Data  []Track   `json:"data"`
	Error *apiError `json:"error,omitempty"`
}

// Cache is the subset of *redis.Client used to memoize lookups.
type Cache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

type Client struct {
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	cache    Cache
	cacheTTL time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit throttles outbound requests to perSecond with the given burst.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

func WithCache(cache Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetTrack fetches one track by its Deezer id.
func (c *Client) GetTrack(ctx context.Context, id int64) (*Track, error) {
	key := "deezer:track:" + strconv.FormatInt(id, 10)

	var cached Track
	if c.fromCache(ctx, key, &cached) {
		return &cached, nil
	}

	var body trackResponse
	status, err := c.get(ctx, "/track/"+strconv.FormatInt(id, 10), nil, &body)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("deezer: track %d: status %d", id, status)
	}
	if body.Error != nil {
		if body.Error.Code == codeDataNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("deezer: track %d: %s (%d)", id, body.Error.Message, body.Error.Code)
	}
	if body.ID == 0 {
		return nil, ErrNotFound
	}

	c.toCache(ctx, key, body.Track)
	return &body.Track, nil
}

// SearchTracks runs a free-text track search.
func (c *Client) SearchTracks(ctx context.Context, query string, limit int) ([]Track, error) {
	if limit <= 0 || limit > maxSearchLimit {
		limit = 25
	}
	key := fmt.Sprintf("deezer:search:%d:%s", limit, strings.ToLower(query))

	var cached []Track
	if c.fromCache(ctx, key, &cached) {
		return cached, nil
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))

	var body searchResponse
	status, err := c.get(ctx, "/search", params, &body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("deezer: search: status %d", status)
	}
	if body.Error != nil {
		return nil, fmt.Errorf("deezer: search: %s (%d)", body.Error.Message, body.Error.Code)
	}
	if body.Data == nil {
		body.Data = []Track{}
	}

	c.toCache(ctx, key, body.Data)
	return body.Data, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("deezer: rate limit: %w", err)
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("deezer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("deezer: decode %s: %w", path, err)
	}
	return resp.StatusCode, nil
}

func (c *Client) fromCache(ctx context.Context, key string, out any) bool {
	if c.cache == nil {
		return false
	}
	raw, err := c.cache.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		logger.Log.Warn().Err(err).Str("key", key).Msg("deezer cache read failed")
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		logger.Log.Warn().Err(err).Str("key", key).Msg("deezer cache entry corrupt")
		return false
	}
	return true
}

func (c *Client) toCache(ctx context.Context, key string, v any) {
	if c.cache == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, data, c.cacheTTL).Err(); err != nil {
		logger.Log.Warn().Err(err).Str("key", key).Msg("deezer cache write failed")
	}
}
