// Package reports submits user reports about incorrect place data.
package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reliefmap/internal/metrics"
	"reliefmap/internal/model"
)

var (
	// ErrReasonRequired is returned when the reason is blank.
	ErrReasonRequired = errors.New("reports: reason is required")
	ErrNotConfigured  = errors.New("reports: api base url not configured")
)

// Submitter posts a report.
type Submitter interface {
	Submit(ctx context.Context, req model.ReportRequest) (Receipt, error)
}

// Receipt is the backend's answer; fields it omits stay empty.
type Receipt struct {
	ID     string `json:"id,omitempty"`
	Status string `json:"status,omitempty"`
}

// NewRequest validates the reason and builds the request body. New reports
// always carry the pending status.
func NewRequest(category, id, name, reason string) (model.ReportRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return model.ReportRequest{}, ErrReasonRequired
	}
	return model.ReportRequest{
		LocationType: category,
		LocationID:   id,
		Name:         name,
		Reason:       reason,
		Status:       model.ReportStatusPending,
	}, nil
}

// Client posts to {BaseURL}/reports. Failures are not retried.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: httpClient}
}

func (c *Client) Submit(ctx context.Context, r model.ReportRequest) (Receipt, error) {
	rec, err := c.submit(ctx, r)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.Reports.WithLabelValues(outcome).Inc()
	return rec, err
}

func (c *Client) submit(ctx context.Context, r model.ReportRequest) (Receipt, error) {
	var rec Receipt
	if c.BaseURL == "" {
		return rec, ErrNotConfigured
	}
	body, err := json.Marshal(r)
	if err != nil {
		return rec, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/reports", bytes.NewReader(body))
	if err != nil {
		return rec, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return rec, fmt.Errorf("submit report: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return rec, fmt.Errorf("submit report: status %d", resp.StatusCode)
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if len(bytes.TrimSpace(b)) > 0 {
		_ = json.Unmarshal(b, &rec)
	}
	return rec, nil
}
