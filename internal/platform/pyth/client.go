// Package pyth is a client for the Pyth Hermes price service.
package pyth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/orionbet/orionkeeper/internal/domain"
)

// Client fetches one price feed from Hermes over HTTP.
type Client struct {
	endpoint   string
	feedID     string
	httpClient *http.Client
}

var _ domain.PriceOracle = (*Client)(nil)

// NewClient creates a client for feedID on the Hermes endpoint, e.g.
// "https://hermes.pyth.network".
func NewClient(endpoint, feedID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		feedID:     feedID,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// FeedID returns the configured price feed id.
func (c *Client) FeedID() string { return c.feedID }

// Latest returns the most recent published price.
func (c *Client) Latest(ctx context.Context) (domain.PriceQuote, error) {
	q, err := c.fetch(ctx, "/v2/updates/price/latest")
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("pyth: latest price: %w", err)
	}
	return q, nil
}

// AtTime returns the first price published at or after unixSecs.
func (c *Client) AtTime(ctx context.Context, unixSecs int64) (domain.PriceQuote, error) {
	q, err := c.fetch(ctx, "/v2/updates/price/"+strconv.FormatInt(unixSecs, 10))
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("pyth: price at %d: %w", unixSecs, err)
	}
	return q, nil
}

func (c *Client) fetch(ctx context.Context, path string) (domain.PriceQuote, error) {
	q := url.Values{}
	q.Add("ids[]", c.feedID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path+"?"+q.Encode(), nil)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.PriceQuote{}, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out updatesResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return domain.PriceQuote{}, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Parsed) == 0 {
		return domain.PriceQuote{}, errors.New("no price data")
	}
	return out.Parsed[0].Quote()
}
