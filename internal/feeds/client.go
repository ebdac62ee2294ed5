// Package feeds loads the spreadsheet-backed content sections (FAQ,
// announcements, friendly links, house repair vendors, support programmes).
package feeds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"reliefmap/internal/csvtable"
	"reliefmap/internal/logger"
	"reliefmap/internal/metrics"
)

var (
	// ErrNotTabular is returned when the export URL serves an HTML page.
	ErrNotTabular = errors.New("feeds: response is not delimited text")
	// ErrNotConfigured is returned when a sheet has neither URL nor id/gid.
	ErrNotConfigured = errors.New("feeds: sheet not configured")
)

// Sheet locates one tab of a spreadsheet.
type Sheet struct {
	Name    string
	SheetID string
	GID     string
	// URL overrides the export URL built from SheetID and GID.
	URL string
}

// ExportURL returns the CSV export link for the sheet.
func (s Sheet) ExportURL() (string, error) {
	if s.URL != "" {
		return s.URL, nil
	}
	if s.SheetID == "" || s.GID == "" {
		return "", fmt.Errorf("%w: %s", ErrNotConfigured, s.Name)
	}
	return fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s/export?format=csv&gid=%s",
		url.PathEscape(s.SheetID), url.QueryEscape(s.GID)), nil
}

// Client fetches sheets as CSV. Requests share one rate limiter.
type Client struct {
	HTTP    *http.Client
	Limiter *rate.Limiter
}

// NewClient returns a client allowing rps requests per second.
func NewClient(httpClient *http.Client, rps float64, burst int) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	lim := rate.NewLimiter(rate.Inf, 0)
	if rps > 0 {
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &Client{HTTP: httpClient, Limiter: lim}
}

// FetchRows downloads and parses a sheet.
func (c *Client) FetchRows(ctx context.Context, s Sheet) ([][]string, error) {
	rows, err := c.fetchRows(ctx, s)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		logger.L().Warn("feed_fetch_error", "sheet", s.Name, "err", err)
	}
	metrics.FeedFetches.WithLabelValues(s.Name, outcome).Inc()
	return rows, err
}

func (c *Client) fetchRows(ctx context.Context, s Sheet) ([][]string, error) {
	u, err := s.ExportURL()
	if err != nil {
		return nil, err
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", s.Name, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: status %d", s.Name, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.Name, err)
	}
	text := string(body)
	if csvtable.LooksLikeHTML(text) {
		return nil, fmt.Errorf("%w: %s", ErrNotTabular, s.Name)
	}
	return csvtable.Parse(strings.TrimPrefix(text, "\ufeff")), nil
}
