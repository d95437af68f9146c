// Package catalog resolves dip targets against the public target database.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"

	catalogrules "github.com/okian/dipscan/internal/domain/catalog"
	"github.com/okian/dipscan/internal/domain/model"
	"github.com/okian/dipscan/pkg/logger"
)

const (
	// DefaultBaseURL is the target overview page of the public database.
	DefaultBaseURL = "https://exofop.ipac.caltech.edu/tess/target.php"
	maxBodyBytes   = 4 << 20
	userAgent      = "dipscan/1"
)

// Sentinel kinds for lookup errors.
var (
	ErrBadStatus = errors.New("unexpected response status")
	ErrBadTarget = errors.New("target id has no numeric part")
)

// Client is a worker.Resolver backed by HTTP GETs.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  logger.Logger
}

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithBaseURL overrides the lookup endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient sets the HTTP client used for lookups.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRateLimit caps lookups per second. Zero or negative disables the limit.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

// WithLogger sets a custom logger for the client.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a lookup client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		http:    &http.Client{},
		logger:  logger.Get().Named("catalog"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve fetches the overview page of a target and classifies it. Deadlines
// come from ctx. Transport failures and non-2xx responses are errors.
func (c *Client) Resolve(ctx context.Context, targetID string) (model.CatalogStatus, error) {
	id := catalogrules.NumericID(targetID)
	if id == "" {
		return "", fmt.Errorf("%w: %q", ErrBadTarget, targetID)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	q.Set("id", id)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("lookup %s: %w", targetID, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug(ctx, "failed to close response body", logger.Error(cerr))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return "", fmt.Errorf("%w: %d for %s", ErrBadStatus, resp.StatusCode, targetID)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read body for %s: %w", targetID, err)
	}
	status := catalogrules.Classify(string(body))
	c.logger.Debug(ctx, "catalog lookup", logger.String("target_id", targetID), logger.String("status", string(status)))
	return status, nil
}
