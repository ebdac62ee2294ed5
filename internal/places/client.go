// Package places reads the relief place listing and caches it per query.
package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"reliefmap/internal/metrics"
	"reliefmap/internal/model"
)

// DefaultStatus is the status filter every listing request carries.
const DefaultStatus = "開放"

// ErrCursorLoop is returned when a listing links back to a page already read.
var ErrCursorLoop = errors.New("places: pagination loop")

// Fetcher reads listing pages.
type Fetcher interface {
	// FirstPage reads the first page, filtered by t unless t is empty.
	FirstPage(ctx context.Context, t model.PlaceType) (model.PlacesPage, error)
	// NextPage follows a continuation link verbatim.
	NextPage(ctx context.Context, next string) (model.PlacesPage, error)
}

// Client reads GET {BaseURL}/places.
type Client struct {
	BaseURL string
	Status  string
	HTTP    *http.Client
}

// NewClient returns a client for the listing API at baseURL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), Status: DefaultStatus, HTTP: httpClient}
}

// FirstPage implements Fetcher.
func (c *Client) FirstPage(ctx context.Context, t model.PlaceType) (model.PlacesPage, error) {
	q := url.Values{}
	status := c.Status
	if status == "" {
		status = DefaultStatus
	}
	q.Set("status", status)
	if t != "" {
		q.Set("type", string(t))
	}
	return c.get(ctx, c.BaseURL+"/places?"+q.Encode())
}

// NextPage implements Fetcher. Absolute links are used as-is; relative
// links are resolved against BaseURL.
func (c *Client) NextPage(ctx context.Context, next string) (model.PlacesPage, error) {
	if strings.HasPrefix(next, "http://") || strings.HasPrefix(next, "https://") {
		return c.get(ctx, next)
	}
	if !strings.HasPrefix(next, "/") {
		next = "/" + next
	}
	return c.get(ctx, c.BaseURL+next)
}

func (c *Client) get(ctx context.Context, u string) (model.PlacesPage, error) {
	var page model.PlacesPage
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return page, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return page, fmt.Errorf("get places: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return page, fmt.Errorf("get places: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return page, fmt.Errorf("decode places: %w", err)
	}
	metrics.PlacePages.Inc()
	return page, nil
}

// Drain reads the first page and follows every continuation link.
func Drain(ctx context.Context, f Fetcher, t model.PlaceType) ([]model.Place, error) {
	page, err := f.FirstPage(ctx, t)
	if err != nil {
		return nil, err
	}
	out := append([]model.Place(nil), page.Member...)
	seen := map[string]bool{}
	for {
		next, ok := page.NextLink()
		if !ok {
			return out, nil
		}
		if seen[next] {
			return out, fmt.Errorf("%w at %s", ErrCursorLoop, next)
		}
		seen[next] = true
		if page, err = f.NextPage(ctx, next); err != nil {
			return out, err
		}
		out = append(out, page.Member...)
	}
}
