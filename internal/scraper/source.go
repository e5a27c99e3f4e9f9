package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
	"golang.org/x/time/rate"
)

const (
	maxPageBytes = 8 << 20
	userAgent    = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

	// productSelector matches one product tile on a listing page.
	productSelector = "a[href*='/product/']"
)

// PageSource returns the HTML of one listing page.
type PageSource interface {
	Fetch(ctx context.Context, pageURL string) ([]byte, error)
}

// ─── Plain HTTP ──────────────────────────────────────────────────────────────

// HTTPSource fetches pages with a plain GET. Requests are rate limited so a
// crawl never hammers the shop.
type HTTPSource struct {
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPSource returns a source with the given request timeout and request
// rate. rps <= 0 disables rate limiting.
func NewHTTPSource(timeout time.Duration, rps float64) *HTTPSource {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &HTTPSource{
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Fetch implements PageSource. Any non-2xx status is an error.
func (s *HTTPSource) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html")
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http GET: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s returned %d", pageURL, resp.StatusCode)
	}
	return body, nil
}

// ─── Headless browser ────────────────────────────────────────────────────────

// BrowserSource renders pages in headless Chrome with stealth patches
// applied, for listings that only fill in their tiles client-side.
// The browser is started on first use and reused until Close.
type BrowserSource struct {
	remoteURL   string
	waitTimeout time.Duration
	log         *slog.Logger

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// NewBrowserSource returns a source that connects to remoteURL (a DevTools
// websocket) or, when it is empty, launches a local Chrome. waitTimeout
// bounds the wait for the first product tile.
func NewBrowserSource(remoteURL string, waitTimeout time.Duration, log *slog.Logger) *BrowserSource {
	if log == nil {
		log = slog.Default()
	}
	return &BrowserSource{
		remoteURL:   remoteURL,
		waitTimeout: waitTimeout,
		log:         log.With("component", "browser"),
	}
}

func (s *BrowserSource) connect() (*rod.Browser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browser != nil {
		return s.browser, nil
	}

	wsURL := s.remoteURL
	if wsURL == "" {
		l := launcher.New().
			Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		s.lnch = l
		s.log.Info("launched local chrome", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	s.browser = b
	return b, nil
}

// Fetch implements PageSource. A page that shows no product tile within the
// wait timeout is an error.
func (s *BrowserSource) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	b, err := s.connect()
	if err != nil {
		return nil, err
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	defer page.Close()

	p := page.Context(ctx)
	if err := p.Navigate(pageURL); err != nil {
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := p.WaitLoad(); err != nil {
		s.log.Warn("wait load failed", "url", pageURL, "err", err)
	}
	if _, err := p.Timeout(s.waitTimeout).Element(productSelector); err != nil {
		return nil, fmt.Errorf("browser: no product tiles on %s: %w", pageURL, err)
	}

	html, err := p.HTML()
	if err != nil {
		return nil, fmt.Errorf("browser: read DOM: %w", err)
	}
	return []byte(html), nil
}

// Close shuts the browser down. The source can be reused afterwards; the
// next Fetch starts a new browser.
func (s *BrowserSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.browser != nil {
		err = s.browser.Close()
		s.browser = nil
	}
	if s.lnch != nil {
		s.lnch.Cleanup()
		s.lnch = nil
	}
	return err
}
