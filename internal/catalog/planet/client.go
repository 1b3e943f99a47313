// Package planet provides a client for the Planet Data API quick-search endpoint.
package planet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/robert-malhotra/planet-overlap/internal/catalog"
	"github.com/robert-malhotra/planet-overlap/internal/filter"
	"github.com/robert-malhotra/planet-overlap/internal/scene"
)

const (
	// DefaultBaseURL is the Data API root.
	DefaultBaseURL = "https://api.planet.com/data/v1"

	// DefaultPageSize is the number of items requested per page.
	DefaultPageSize = 100

	// MaxPageSize is the largest page the Data API serves.
	MaxPageSize = 250

	// maxErrorBody caps how much of an error response is kept.
	maxErrorBody = 4096
)

// Client handles communication with the Planet Data API.
type Client struct {
	baseURL    string
	apiKey     string
	pageSize   int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new Data API client authenticating with apiKey.
func NewClient(baseURL, apiKey string, pageSize int, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		apiKey:   apiKey,
		pageSize: pageSize,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger for the client.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Name implements catalog.Client.
func (c *Client) Name() string {
	return "planet"
}

// Search runs a quick-search for the predicate and returns the first page.
func (c *Client) Search(ctx context.Context, pred *filter.Predicate) (*catalog.Page, error) {
	body, err := json.Marshal(pred.PlanetRequest())
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}

	searchURL := c.baseURL + "/quick-search?" + url.Values{
		"_page_size": []string{strconv.Itoa(c.pageSize)},
	}.Encode()

	c.logger.DebugContext(ctx, "executing Planet quick-search",
		slog.String("url", searchURL),
		slog.String("dates", pred.Dates.String()),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, searchURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(ctx, req)
}

// FetchNext follows a _links._next URL.
func (c *Client) FetchNext(ctx context.Context, cursor string) (*catalog.Page, error) {
	if cursor == "" {
		return nil, errors.New("empty continuation cursor")
	}
	if !strings.HasPrefix(cursor, c.baseURL) {
		return nil, &catalog.Error{Kind: catalog.KindPermanent, Message: "continuation URL does not belong to " + c.baseURL}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cursor, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	return c.do(ctx, req)
}

func (c *Client) do(ctx context.Context, req *http.Request) (*catalog.Page, error) {
	req.SetBasicAuth(c.apiKey, "")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "planet-overlap/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "Planet API request failed",
			slog.String("error", err.Error()),
		)
		return nil, catalog.FromTransport(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.ErrorContext(ctx, "Planet API returned non-200 status",
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(body)),
		)
		return nil, catalog.FromStatus(resp.StatusCode, string(body))
	}

	var sr SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		c.logger.ErrorContext(ctx, "failed to decode Planet response",
			slog.String("error", err.Error()),
		)
		return nil, catalog.FromTransport(ctx, fmt.Errorf("failed to decode Planet response: %w", err))
	}

	page := &catalog.Page{
		Scenes: make([]scene.Scene, 0, len(sr.Features)),
		Next:   sr.Links.Next,
	}
	for _, f := range sr.Features {
		s, err := f.ToScene()
		if err != nil {
			page.Skipped++
			c.logger.WarnContext(ctx, "skipping invalid Planet record",
				slog.String("error", err.Error()),
			)
			continue
		}
		page.Scenes = append(page.Scenes, s)
	}

	// an empty page never has a meaningful continuation
	if len(sr.Features) == 0 {
		page.Next = ""
	}

	c.logger.DebugContext(ctx, "Planet search page completed",
		slog.Int("returned", len(page.Scenes)),
		slog.Int("skipped", page.Skipped),
		slog.Bool("has_next", page.Next != ""),
	)

	return page, nil
}
