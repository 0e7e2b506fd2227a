// Package geocode turns coordinates into short place labels using a
// Nominatim-compatible reverse endpoint.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
)

var (
	ErrDisabled = errors.New("geocoder disabled")
	ErrNotFound = errors.New("no address for location")
)

type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string)
}

type Client struct {
	baseURL   string
	timeout   time.Duration
	userAgent string
	cache     Cache
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

// NewClient returns a client for baseURL. An empty baseURL yields a client
// whose lookups fail with ErrDisabled.
func NewClient(baseURL string, timeout time.Duration, cache Cache) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{baseURL: baseURL, timeout: timeout, userAgent: "triplog/1.0", cache: cache}
}

func (c *Client) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	if c == nil || c.baseURL == "" {
		return "", ErrDisabled
	}
	key := CacheKey(lat, lon)
	if c.cache != nil {
		if label, ok := c.cache.Get(ctx, key); ok {
			return label, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 6, 64))
	q.Set("zoom", "18")

	agent := fiber.Get(c.baseURL + "/reverse?" + q.Encode())
	agent.Timeout(c.timeout)
	agent.UserAgent(c.userAgent)
	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return "", fmt.Errorf("reverse geocode: %w", errs[0])
	}
	if status != fiber.StatusOK {
		return "", fmt.Errorf("reverse geocode: status %d", status)
	}

	var resp reverseResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("reverse geocode: %w", err)
	}
	if resp.Error != "" || resp.DisplayName == "" {
		return "", ErrNotFound
	}
	if c.cache != nil {
		c.cache.Set(ctx, key, resp.DisplayName)
	}
	return resp.DisplayName, nil
}

// CacheKey rounds to four decimals, roughly eleven meters.
func CacheKey(lat, lon float64) string {
	return fmt.Sprintf("%.4f,%.4f", round4(lat), round4(lon))
}

// Label is the text used when no address is available.
func Label(lat, lon float64) string {
	return fmt.Sprintf("%.5f, %.5f", lat, lon)
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
