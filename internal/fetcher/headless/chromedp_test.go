package headless

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"

	"github.com/JakeFAU/listing-scraper/internal/scraper"
)

func TestNewChromedpValidation(t *testing.T) {
	t.Parallel()

	for _, cfg := range []Config{
		{MaxParallel: -1},
		{SettleDelay: -time.Second},
		{DataTimeout: -time.Second},
	} {
		if _, err := NewChromedp(cfg); err == nil {
			t.Fatalf("expected error for %+v", cfg)
		}
	}

	fetcher, err := NewChromedp(Config{MaxParallel: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(fetcher.Close)
	if fetcher.slots == nil {
		t.Fatal("expected a bounded fetcher")
	}
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Config{WaitSelector: "  "}.withDefaults()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.WaitSelector != scraper.DetailDataSelector {
		t.Fatalf("expected room data selector, got %q", cfg.WaitSelector)
	}
	if cfg.NavigationTimeout != defaultNavTimeout || cfg.DataTimeout != defaultDataTimeout {
		t.Fatalf("unexpected timeouts %+v", cfg)
	}
	if cfg.SettleDelay != 0 {
		t.Fatalf("expected no settle delay, got %v", cfg.SettleDelay)
	}

	cfg, err = Config{NavigationTimeout: 3 * time.Second, DataTimeout: time.Minute, WaitSelector: "#ready"}.withDefaults()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DataTimeout != 3*time.Second {
		t.Fatalf("expected data timeout capped by navigation timeout, got %v", cfg.DataTimeout)
	}
	if cfg.WaitSelector != "#ready" {
		t.Fatalf("expected override selector, got %q", cfg.WaitSelector)
	}
}

func TestDataReadyExpression(t *testing.T) {
	t.Parallel()

	expr := dataReadyExpression(`script[data-x="1"]`)
	if !strings.Contains(expr, `document.querySelector("script[data-x=\"1\"]")`) {
		t.Fatalf("selector not quoted as a JS string: %s", expr)
	}
	if !strings.Contains(expr, `includes("bootstrapData")`) {
		t.Fatalf("search marker missing: %s", expr)
	}
}

func TestDocumentStatus(t *testing.T) {
	t.Parallel()

	doc := &documentStatus{}
	doc.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		Response: &network.Response{Status: 500, URL: "https://cdn.example.com/app.js"},
	})
	doc.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 403, URL: "https://example.com/rooms/1"},
	})
	doc.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 200, URL: "https://ads.example.com/frame"},
	})
	doc.observe("not an event")

	status, url := doc.result("https://req", "https://final")
	if status != http.StatusForbidden || url != "https://example.com/rooms/1" {
		t.Fatalf("expected main document response, got status=%d url=%s", status, url)
	}

	status, url = (&documentStatus{}).result("https://req", "https://final")
	if status != http.StatusOK || url != "https://final" {
		t.Fatalf("expected fallback values, got status=%d url=%s", status, url)
	}
	_, url = (&documentStatus{}).result("https://req", "")
	if url != "https://req" {
		t.Fatalf("expected request url fallback, got %s", url)
	}
}

func TestNetworkHeaders(t *testing.T) {
	t.Parallel()

	got := networkHeaders(http.Header{"Accept-Language": {"en", "fr"}, "X-Empty": nil})
	if got["Accept-Language"] != "en, fr" {
		t.Fatalf("expected joined values, got %v", got["Accept-Language"])
	}
	if _, ok := got["X-Empty"]; ok {
		t.Fatal("expected empty header to be dropped")
	}
}

func TestFetcherSlotsHonorContext(t *testing.T) {
	t.Parallel()

	fetcher, err := NewChromedp(Config{MaxParallel: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(fetcher.Close)

	if err := fetcher.acquire(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := fetcher.acquire(ctx); err == nil {
		t.Fatal("expected canceled acquire to fail while slot is held")
	}
	if _, err := fetcher.Fetch(ctx, scraper.FetchRequest{URL: "https://example.com"}); err == nil {
		t.Fatal("expected fetch to fail while slot is held")
	}
	fetcher.release()
	if err := fetcher.acquire(context.Background()); err != nil {
		t.Fatalf("expected slot after release, got %v", err)
	}
	fetcher.release()

	unbounded := &Fetcher{}
	if err := unbounded.acquire(ctx); err != nil {
		t.Fatalf("unbounded fetcher should not wait: %v", err)
	}
}
