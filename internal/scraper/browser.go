package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/jgoulah/dormpower/pkg/models"
)

// BrowserFetcher renders pages in headless Chrome and returns the DOM as
// HTML. Used when the site serves plain HTTP clients a challenge page.
type BrowserFetcher struct {
	opts    Options
	visible bool
}

// NewBrowserFetcher creates a new chromedp-backed fetcher
func NewBrowserFetcher(opts Options, visible bool) *BrowserFetcher {
	return &BrowserFetcher{opts: opts, visible: visible}
}

// FetchBalancePage renders the live-balance page for a dorm
func (b *BrowserFetcher) FetchBalancePage(ctx context.Context, dorm models.Dorm) (string, error) {
	pageURL, err := PageURL(b.opts.BaseURL, dorm)
	if err != nil {
		return "", err
	}
	return b.render(ctx, pageURL)
}

// FetchHistoryPage renders the settlement-history page for a dorm
func (b *BrowserFetcher) FetchHistoryPage(ctx context.Context, dorm models.Dorm) (string, error) {
	if b.opts.HistoryURL == "" {
		return "", fmt.Errorf("history_url is not configured")
	}
	pageURL, err := PageURL(b.opts.HistoryURL, dorm)
	if err != nil {
		return "", err
	}
	return b.render(ctx, pageURL)
}

func (b *BrowserFetcher) render(ctx context.Context, pageURL string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !b.visible),
		chromedp.Flag("no-sandbox", true),            // Required for running as root on Linux
		chromedp.Flag("disable-gpu", true),           // Recommended for headless Linux
		chromedp.Flag("disable-dev-shm-usage", true), // Avoid /dev/shm issues on Linux
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(b.opts.UserAgent),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	timeout := b.opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	// Browser startup is slow, give it room on top of the page timeout
	browserCtx, cancel = context.WithTimeout(browserCtx, timeout+30*time.Second)
	defer cancel()

	headers := network.Headers{"Accept-Language": "zh-CN,zh;q=0.9,en;q=0.8"}
	if b.opts.Referer != "" {
		headers["Referer"] = b.opts.Referer
	}

	var page string
	if err := chromedp.Run(browserCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(headers),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &page, chromedp.ByQuery),
	); err != nil {
		return "", fmt.Errorf("rendering %s: %w", pageURL, err)
	}

	return page, nil
}
