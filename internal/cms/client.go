// Package cms is the adapter around the headless Content Service that
// stores override declarations and news entries. It normalizes the wire
// format at this boundary; nothing past it sees raw CMS shapes.
package cms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"noren/internal/model"
)

const (
	overrideCacheKey = "cms:override:candidates"
	newsCacheKey     = "cms:news:list"

	// Override data goes stale fast; news can linger.
	overrideCacheTTL = 30 * time.Second
	newsCacheTTL     = 5 * time.Minute
)

// Client is a plain HTTP client for the Content Service with an optional
// redis read-through cache on the GET endpoints.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zerolog.Logger

	redis *redis.Client
}

// NewClient constructs a client for the given service base URL and key.
func NewClient(baseURL, apiKey string, logger *zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// UseRedisCache configures optional redis caching for GET endpoints.
func (c *Client) UseRedisCache(redisClient *redis.Client) {
	c.redis = redisClient
}

// overrideEntry is the wire shape of an override record. The status field
// may be a scalar or a single-element array depending on how the CMS field
// was configured.
type overrideEntry struct {
	ID          string          `json:"id"`
	Status      json.RawMessage `json:"status"`
	Reason      string          `json:"reason"`
	Message     string          `json:"message"`
	Priority    *int            `json:"priority"`
	StartTime   *time.Time      `json:"startTime"`
	EndTime     *time.Time      `json:"endTime"`
	CustomHours string          `json:"customHours"`
	PublishedAt *time.Time      `json:"publishedAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type overrideList struct {
	Contents []overrideEntry `json:"contents"`
}

// ListOverrideCandidates fetches all override records currently declared
// in the Content Service, normalized to the internal record type.
func (c *Client) ListOverrideCandidates(ctx context.Context) ([]model.OverrideRecord, error) {
	endpoint := fmt.Sprintf("%s/api/v1/site-status", c.baseURL)

	var list overrideList
	if c.readCache(ctx, overrideCacheKey, &list) {
		return normalizeEntries(list.Contents), nil
	}

	if err := c.doGet(ctx, endpoint, &list); err != nil {
		return nil, err
	}
	if list.Contents == nil {
		return nil, fmt.Errorf("site-status response missing contents")
	}
	c.writeCache(ctx, overrideCacheKey, list, overrideCacheTTL)
	return normalizeEntries(list.Contents), nil
}

func normalizeEntries(entries []overrideEntry) []model.OverrideRecord {
	records := make([]model.OverrideRecord, 0, len(entries))
	for _, e := range entries {
		priority := 1
		if e.Priority != nil {
			priority = *e.Priority
		}
		records = append(records, model.OverrideRecord{
			ID:            e.ID,
			Kind:          model.DecodeKindField(e.Status),
			Reason:        e.Reason,
			CustomMessage: e.Message,
			CustomHours:   e.CustomHours,
			Priority:      priority,
			StartTime:     e.StartTime,
			EndTime:       e.EndTime,
			Published:     e.PublishedAt != nil,
			UpdatedAt:     e.UpdatedAt,
		})
	}
	return records
}

// overrideInput is the wire payload for creating an override record.
// Fields map 1:1 to the record, minus the service-assigned id.
type overrideInput struct {
	Kind        model.OverrideKind `json:"status"`
	Reason      string             `json:"reason,omitempty"`
	Message     string             `json:"message,omitempty"`
	CustomHours string             `json:"customHours,omitempty"`
	Priority    int                `json:"priority"`
	StartTime   *time.Time         `json:"startTime,omitempty"`
	EndTime     *time.Time         `json:"endTime,omitempty"`
}

type createResponse struct {
	ID string `json:"id"`
}

// CreateOverride creates a record in the Content Service and returns its
// assigned id. The id and publication state on rec are ignored.
func (c *Client) CreateOverride(ctx context.Context, rec model.OverrideRecord) (string, error) {
	endpoint := fmt.Sprintf("%s/api/v1/site-status", c.baseURL)
	input := overrideInput{
		Kind:        rec.Kind,
		Reason:      rec.Reason,
		Message:     rec.CustomMessage,
		CustomHours: rec.CustomHours,
		Priority:    rec.Priority,
		StartTime:   rec.StartTime,
		EndTime:     rec.EndTime,
	}
	var resp createResponse
	if err := c.doPost(ctx, endpoint, input, &resp); err != nil {
		return "", err
	}
	c.invalidate(ctx, overrideCacheKey)
	return resp.ID, nil
}

// DeleteOverride deletes a record by id.
func (c *Client) DeleteOverride(ctx context.Context, id string) error {
	endpoint := fmt.Sprintf("%s/api/v1/site-status/%s", c.baseURL, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	c.addHeaders(req)
	if err := c.do(req, nil); err != nil {
		return err
	}
	c.invalidate(ctx, overrideCacheKey)
	return nil
}

// NewsItem is a published announcement.
type NewsItem struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	PublishedAt *time.Time `json:"publishedAt"`
}

type newsList struct {
	Contents []NewsItem `json:"contents"`
}

// ListNews returns current announcements, cached on the slow tier.
func (c *Client) ListNews(ctx context.Context) ([]NewsItem, error) {
	endpoint := fmt.Sprintf("%s/api/v1/news", c.baseURL)

	var list newsList
	if c.readCache(ctx, newsCacheKey, &list) {
		return list.Contents, nil
	}

	if err := c.doGet(ctx, endpoint, &list); err != nil {
		return nil, err
	}
	c.writeCache(ctx, newsCacheKey, list, newsCacheTTL)
	return list.Contents, nil
}

// HealthCheck checks whether the Content Service answers at all.
func (c *Client) HealthCheck(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/healthz", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, val any, ttl time.Duration) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, ttl).Err()
}

func (c *Client) invalidate(ctx context.Context, key string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, key).Err()
}

func (c *Client) doGet(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	c.addHeaders(req)
	return c.do(req, out)
}

func (c *Client) doPost(ctx context.Context, endpoint string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(data)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.addHeaders(req)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	return dec.Decode(out)
}

func (c *Client) addHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-KEY", c.apiKey)
	}
}
