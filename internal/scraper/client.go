package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jgoulah/dormpower/pkg/models"
)

// maxPageBytes caps how much of a response body is read.
const maxPageBytes = 2 << 20

// Fetcher retrieves raw pages from the utility-payment site
type Fetcher interface {
	FetchBalancePage(ctx context.Context, dorm models.Dorm) (string, error)
	FetchHistoryPage(ctx context.Context, dorm models.Dorm) (string, error)
}

// Options configure how pages are requested
type Options struct {
	BaseURL    string
	HistoryURL string
	UserAgent  string
	Referer    string
	Timeout    time.Duration
}

// StatusError represents a non-200 response from the site
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("site returned status %d: %s", e.StatusCode, e.Body)
}

// Client fetches pages over plain HTTP
type Client struct {
	opts   Options
	client *http.Client
}

// NewClient creates a new HTTP client for the site
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		opts:   opts,
		client: &http.Client{Timeout: timeout},
	}
}

// FetchBalancePage downloads the live-balance page for a dorm
func (c *Client) FetchBalancePage(ctx context.Context, dorm models.Dorm) (string, error) {
	pageURL, err := PageURL(c.opts.BaseURL, dorm)
	if err != nil {
		return "", err
	}
	return c.get(ctx, pageURL)
}

// FetchHistoryPage downloads the settlement-history page for a dorm
func (c *Client) FetchHistoryPage(ctx context.Context, dorm models.Dorm) (string, error) {
	if c.opts.HistoryURL == "" {
		return "", fmt.Errorf("history_url is not configured")
	}
	pageURL, err := PageURL(c.opts.HistoryURL, dorm)
	if err != nil {
		return "", err
	}
	return c.get(ctx, pageURL)
}

func (c *Client) get(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	// The site rejects requests that don't look like a browser
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	if c.opts.Referer != "" {
		req.Header.Set("Referer", c.opts.Referer)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200]
		}
		return "", &StatusError{StatusCode: resp.StatusCode, Body: preview}
	}

	return string(body), nil
}

// PageURL builds the per-dorm page URL: base?xid=<id>&type=<type>&opid=a
func PageURL(base string, dorm models.Dorm) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	if dorm.ID == "" {
		return "", fmt.Errorf("dorm id is required")
	}

	q := u.Query()
	q.Set("xid", dorm.ID)
	q.Set("type", dorm.Type)
	q.Set("opid", "a")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// RechargeURL returns the page where the balance can be topped up. It is
// the live-balance page served over HTTPS.
func RechargeURL(base string, dorm models.Dorm) (string, error) {
	pageURL, err := PageURL(base, dorm)
	if err != nil {
		return "", err
	}
	u, _ := url.Parse(pageURL)
	if u.Scheme == "http" {
		u.Scheme = "https"
	}
	return u.String(), nil
}
