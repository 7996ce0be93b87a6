// Package headless renders listing pages in headless Chrome for sites that
// inject their embedded JSON client-side. A page counts as rendered once its
// search bootstrap script or its room data script is in the DOM.
package headless

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/listing-scraper/internal/scraper"
)

const (
	defaultNavTimeout  = 45 * time.Second
	defaultDataTimeout = 10 * time.Second
	pollInterval       = 100 * time.Millisecond
)

// DefaultWaitSelector marks a rendered room page.
const DefaultWaitSelector = scraper.DetailDataSelector

// Config controls the behavior of the headless fetcher.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// WaitSelector marks a rendered room page. Search pages are ready once a
	// script containing the bootstrap marker exists.
	WaitSelector string
	// DataTimeout bounds the wait for embedded data. After it the page is
	// captured as is so the scraper can archive it.
	DataTimeout time.Duration
	// SettleDelay is slept once the data is present. Zero disables it.
	SettleDelay time.Duration
}

func (c Config) withDefaults() (Config, error) {
	if c.MaxParallel < 0 {
		return c, fmt.Errorf("max parallel must be >= 0")
	}
	if c.DataTimeout < 0 || c.SettleDelay < 0 {
		return c, fmt.Errorf("data timeout and settle delay must be >= 0")
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = defaultNavTimeout
	}
	c.WaitSelector = strings.TrimSpace(c.WaitSelector)
	if c.WaitSelector == "" {
		c.WaitSelector = DefaultWaitSelector
	}
	if c.DataTimeout == 0 {
		c.DataTimeout = defaultDataTimeout
	}
	if c.DataTimeout > c.NavigationTimeout {
		c.DataTimeout = c.NavigationTimeout
	}
	return c, nil
}

// Fetcher implements scraper.Fetcher with one browser tab per request.
type Fetcher struct {
	cfg         Config
	slots       *semaphore.Weighted
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a headless fetcher. Chrome starts on the first Fetch.
func NewChromedp(cfg Config) (*Fetcher, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	var slots *semaphore.Weighted
	if cfg.MaxParallel > 0 {
		slots = semaphore.NewWeighted(int64(cfg.MaxParallel))
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("enable-automation", false),
		// Listing photos are read from JSON, never from rendered images.
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		slots:       slots,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close shuts the browser down.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch renders request.URL and returns the DOM once the embedded data is
// present or the data timeout passes.
func (f *Fetcher) Fetch(ctx context.Context, request scraper.FetchRequest) (scraper.FetchResponse, error) {
	if err := f.acquire(ctx); err != nil {
		return scraper.FetchResponse{}, err
	}
	defer f.release()

	tabCtx, closeTab := chromedp.NewContext(f.allocator)
	defer closeTab()
	tabCtx, cancel := context.WithTimeout(tabCtx, f.cfg.NavigationTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	doc := &documentStatus{}
	chromedp.ListenTarget(tabCtx, doc.observe)

	start := time.Now()
	page, err := f.render(tabCtx, request)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return scraper.FetchResponse{}, fmt.Errorf("render %s: %w", request.URL, ctxErr)
		}
		return scraper.FetchResponse{}, fmt.Errorf("render %s: %w", request.URL, err)
	}

	status, finalURL := doc.result(request.URL, page.url)
	return scraper.FetchResponse{
		URL:          finalURL,
		StatusCode:   status,
		Headers:      http.Header{},
		Body:         []byte(page.html),
		Duration:     time.Since(start),
		UsedHeadless: true,
	}, nil
}

type renderedPage struct {
	html string
	url  string
}

func (f *Fetcher) render(ctx context.Context, request scraper.FetchRequest) (renderedPage, error) {
	var page renderedPage
	err := chromedp.Run(ctx,
		f.prepareTab(request.Headers),
		chromedp.Navigate(request.URL),
		f.waitForData(),
		chromedp.Location(&page.url),
		chromedp.OuterHTML("html", &page.html, chromedp.ByQuery),
	)
	if err != nil {
		return renderedPage{}, err
	}
	return page, nil
}

func (f *Fetcher) prepareTab(headers http.Header) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if extra := networkHeaders(headers); len(extra) > 0 {
			if err := network.SetExtraHTTPHeaders(extra).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

// waitForData polls for embedded listing data. A page that never gets it,
// such as a captcha wall, is still captured.
func (f *Fetcher) waitForData() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var ready bool
		err := chromedp.Poll(dataReadyExpression(f.cfg.WaitSelector), &ready,
			chromedp.WithPollingInterval(pollInterval),
			chromedp.WithPollingTimeout(f.cfg.DataTimeout),
		).Do(ctx)
		switch {
		case errors.Is(err, chromedp.ErrPollingTimeout):
			return nil
		case err != nil:
			return fmt.Errorf("wait for embedded data: %w", err)
		}
		if f.cfg.SettleDelay > 0 {
			return chromedp.Sleep(f.cfg.SettleDelay).Do(ctx)
		}
		return nil
	})
}

// dataReadyExpression is true once the room data script or a search
// bootstrap script exists.
func dataReadyExpression(selector string) string {
	sel, _ := json.Marshal(selector)
	marker, _ := json.Marshal(scraper.SearchDataMarker)
	return fmt.Sprintf(
		"document.querySelector(%s) !== null || Array.from(document.scripts).some(s => s.textContent.includes(%s))",
		sel, marker,
	)
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.slots == nil {
		return nil
	}
	if err := f.slots.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("headless slot wait canceled: %w", err)
	}
	return nil
}

func (f *Fetcher) release() {
	if f.slots != nil {
		f.slots.Release(1)
	}
}

// documentStatus records the main document response of a tab. Later document
// responses belong to iframes and are ignored.
type documentStatus struct {
	mu     sync.Mutex
	status int
	url    string
}

func (d *documentStatus) observe(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status != 0 {
		return
	}
	d.status = int(resp.Response.Status)
	d.url = resp.Response.URL
}

// result falls back to 200 and the browser location when no document
// response was seen, which happens for pages served from cache.
func (d *documentStatus) result(requestURL, location string) (int, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	status, url := d.status, d.url
	if status == 0 {
		status = http.StatusOK
	}
	switch {
	case url != "":
	case location != "":
		url = location
	default:
		url = requestURL
	}
	return status, url
}

func networkHeaders(h http.Header) network.Headers {
	out := network.Headers{}
	for key, values := range h {
		if len(values) > 0 {
			out[key] = strings.Join(values, ", ")
		}
	}
	return out
}
