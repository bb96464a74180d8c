// Package remote calls the court scraping service over HTTP.
package remote

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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/oab-process-sync/internal/capture"
)

const maxErrorBody = 512

// ErrStatus wraps non-2xx replies from the scraping service.
var ErrStatus = errors.New("scraper returned error status")

// Config points the client at the scraping service.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client implements capture.CaseScraper against the scraping service.
// Lookups go to POST {base}/search and captcha answers to POST {base}/captcha.
type Client struct {
	base   string
	token  string
	http   *http.Client
	logger *zap.Logger
}

var _ capture.CaseScraper = (*Client)(nil)

// New builds a Client. A nil httpClient gets an instrumented default.
func New(cfg Config, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("scraper base url is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{base: base, token: cfg.Token, http: httpClient, logger: logger.Named("scraper")}, nil
}

// SearchByOAB starts a lookup for the bar number.
func (c *Client) SearchByOAB(ctx context.Context, req capture.ScrapeRequest) (capture.ScrapeResult, error) {
	return c.call(ctx, "/search", req)
}

// SubmitCaptcha continues a lookup paused on a challenge.
func (c *Client) SubmitCaptcha(ctx context.Context, req capture.CaptchaSubmission) (capture.ScrapeResult, error) {
	return c.call(ctx, "/captcha", req)
}

func (c *Client) call(ctx context.Context, path string, body any) (capture.ScrapeResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return capture.ScrapeResult{}, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return capture.ScrapeResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return capture.ScrapeResult{}, fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	c.logger.Debug("scraper call",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return capture.ScrapeResult{}, fmt.Errorf("%w: %d %s", ErrStatus, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out capture.ScrapeResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return capture.ScrapeResult{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}
