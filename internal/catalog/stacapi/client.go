// Package stacapi provides a client for STAC APIs that implement item search
// with CQL2-JSON filtering.
package stacapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/robert-malhotra/planet-overlap/internal/catalog"
	"github.com/robert-malhotra/planet-overlap/internal/filter"
	"github.com/robert-malhotra/planet-overlap/internal/scene"
)

const (
	// DefaultPageSize is the number of items requested per page.
	DefaultPageSize = 100

	// MaxPageSize bounds the limit parameter.
	MaxPageSize = 1000

	maxErrorBody = 4096
)

// Client handles communication with a STAC API.
type Client struct {
	baseURL    string
	apiKey     string
	pageSize   int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new STAC API client. apiKey may be empty for open catalogs.
func NewClient(baseURL, apiKey string, pageSize int, timeout time.Duration) *Client {
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

// Name implements catalog.Client.
func (c *Client) Name() string {
	return "stac"
}

// Search posts a CQL2 search for the predicate. Item types double as collection IDs.
func (c *Client) Search(ctx context.Context, pred *filter.Predicate) (*catalog.Page, error) {
	body, err := json.Marshal(&SearchRequest{
		Collections: pred.ItemTypes,
		Limit:       c.pageSize,
		FilterLang:  "cql2-json",
		Filter:      pred.CQL2(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}

	searchURL := c.baseURL + "/search"

	c.logger.DebugContext(ctx, "executing STAC search",
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

// FetchNext follows a cursor produced from a rel=next link.
func (c *Client) FetchNext(ctx context.Context, cursor string) (*catalog.Page, error) {
	link, err := DecodeCursor(cursor)
	if err != nil {
		return nil, &catalog.Error{Kind: catalog.KindPermanent, Err: err, Message: err.Error()}
	}

	target, err := url.Parse(link.Href)
	if err != nil {
		return nil, &catalog.Error{Kind: catalog.KindPermanent, Err: err, Message: "invalid next link"}
	}
	base, _ := url.Parse(c.baseURL)
	if base != nil && target.Host != "" && target.Host != base.Host {
		return nil, &catalog.Error{Kind: catalog.KindPermanent, Message: "next link points outside " + c.baseURL}
	}

	method := strings.ToUpper(link.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if method == http.MethodPost && len(link.Body) > 0 {
		body = bytes.NewReader(link.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, link.Href, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(ctx, req)
}

func (c *Client) do(ctx context.Context, req *http.Request) (*catalog.Page, error) {
	req.Header.Set("Accept", "application/geo+json")
	req.Header.Set("User-Agent", "planet-overlap/1.0")
	if c.apiKey != "" {
		req.SetBasicAuth(c.apiKey, "")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "STAC API request failed",
			slog.String("error", err.Error()),
		)
		return nil, catalog.FromTransport(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.ErrorContext(ctx, "STAC API returned non-200 status",
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(body)),
		)
		return nil, catalog.FromStatus(resp.StatusCode, string(body))
	}

	var ic ItemCollection
	if err := json.NewDecoder(resp.Body).Decode(&ic); err != nil {
		c.logger.ErrorContext(ctx, "failed to decode STAC response",
			slog.String("error", err.Error()),
		)
		return nil, catalog.FromTransport(ctx, fmt.Errorf("failed to decode STAC response: %w", err))
	}

	page := &catalog.Page{Scenes: make([]scene.Scene, 0, len(ic.Features))}
	for _, item := range ic.Features {
		s, err := ItemToScene(item)
		if err != nil {
			page.Skipped++
			c.logger.WarnContext(ctx, "skipping invalid STAC item",
				slog.String("error", err.Error()),
			)
			continue
		}
		page.Scenes = append(page.Scenes, s)
	}

	if len(ic.Features) > 0 {
		page.Next = EncodeCursor(ic.NextLink())
	}

	c.logger.DebugContext(ctx, "STAC search page completed",
		slog.Int("returned", len(page.Scenes)),
		slog.Int("skipped", page.Skipped),
		slog.Bool("has_next", page.Next != ""),
	)

	return page, nil
}
