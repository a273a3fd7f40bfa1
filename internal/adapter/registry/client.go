// Package registry looks tax IDs up in the external taxpayer registry.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"invoice-financing/config"
	"invoice-financing/internal/adapter/httpclient"
	"invoice-financing/internal/core/ports"
)

var _ ports.TaxRegistry = (*Client)(nil)

// Client implements ports.TaxRegistry over GET /taxpayers/{id}.
type Client struct {
	http *httpclient.Client
}

// New creates a registry client from config.
func New(cfg config.ServiceConfig, opts ...httpclient.Option) *Client {
	opts = append([]httpclient.Option{httpclient.WithHeader("X-API-Key", cfg.APIKey)}, opts...)
	return &Client{http: httpclient.New(cfg.BaseURL, cfg.Timeout, opts...)}
}

// Lookup reports whether taxID is registered. 404 is (false, nil).
func (c *Client) Lookup(ctx context.Context, taxID string) (bool, error) {
	err := c.http.Do(ctx, http.MethodGet, "/taxpayers/"+url.PathEscape(taxID), nil, nil)
	if err == nil {
		return true, nil
	}

	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) && statusErr.Status == http.StatusNotFound {
		return false, nil
	}
	return false, fmt.Errorf("registry lookup: %w", err)
}
