package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const listingFixture = `<!doctype html>
<html><body>
<div class="grid">
  <a class="product-tile" href="/product/creed-aventus/123">
    <div class="product-tile-name__text">
      <span class="product-tile-name__text--brand">Creed</span>
      <span>Парфюмерная вода</span>
      <span>  Aventus
        for Men </span>
    </div>
    <span class="product-tile-price__text product-tile-price__text--actual">12&nbsp;990 ₽</span>
    <span class="product-tile-price__text product-tile-price__text--old">15&nbsp;500 ₽</span>
  </a>
  <a class="product-tile" href="https://www.letu.ru/product/dior-sauvage/456">
    <div class="product-tile-name__text">
      <span class="product-tile-name__text--brand">Dior</span>
      <span>Туалетная вода</span>
      <span>Sauvage</span>
    </div>
    <span class="product-tile-price__text--actual">8 400 ₽</span>
  </a>
  <a href="/brands/creed">Creed brand page</a>
  <a class="product-tile" href="/product/odd/789">
    <div class="product-tile-name__text">
      <span class="product-tile-name__text--brand">Odd</span>
      <em>first</em>
      <div>not a span</div>
    </div>
  </a>
</div>
</body></html>`

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestParseListing(t *testing.T) {
	base := mustURL(t, "https://www.letu.ru/browse/muzhchinam")
	got, err := ParseListing([]byte(listingFixture), base)
	if err != nil {
		t.Fatalf("ParseListing: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d tiles, want 3: %+v", len(got), got)
	}

	first := got[0]
	if first.URL != "https://www.letu.ru/product/creed-aventus/123" {
		t.Errorf("URL = %q", first.URL)
	}
	if first.Brand != "Creed" {
		t.Errorf("Brand = %q", first.Brand)
	}
	if first.Title != "Aventus for Men" {
		t.Errorf("Title = %q, want collapsed whitespace", first.Title)
	}
	if first.ActualPrice != "12 990 ₽" || first.OldPrice != "15 500 ₽" {
		t.Errorf("prices = %q / %q", first.ActualPrice, first.OldPrice)
	}

	if got[1].URL != "https://www.letu.ru/product/dior-sauvage/456" || got[1].OldPrice != "" {
		t.Errorf("second tile = %+v", got[1])
	}
	if got[2].Title != "" {
		t.Errorf("third tile title = %q, want empty when the third child is not a span", got[2].Title)
	}
}

func TestParseListing_NoTiles(t *testing.T) {
	got, err := ParseListing([]byte("<html><body><p>nothing here</p></body></html>"), mustURL(t, "https://x.test"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("got %d tiles, want 0", len(got))
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"":                  "",
		"  a  b ":           "a b",
		"1\u00a0990\u00a0₽": "1 990 ₽",
		"line\n\tbreak":     "line break",
	}
	for in, want := range cases {
		if got := normalize(in); got != want {
			t.Errorf("normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestListingExtractor_Extract(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/listing/page-1":
			w.Write([]byte(listingFixture))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ex, err := NewListingExtractor(srv.URL+"/listing/", NewHTTPSource(5*time.Second, 0))
	if err != nil {
		t.Fatal(err)
	}
	if got := ex.PageURL(7); got != srv.URL+"/listing/page-7" {
		t.Errorf("PageURL(7) = %q", got)
	}

	items, err := ex.Extract(context.Background(), 1)
	if err != nil {
		t.Fatalf("Extract(1): %v", err)
	}
	if len(items) != 3 || !strings.HasPrefix(items[0].URL, srv.URL+"/product/") {
		t.Errorf("Extract(1) = %+v", items)
	}

	if _, err := ex.Extract(context.Background(), 2); err == nil {
		t.Error("Extract(2) expected error for a 404 page")
	}
	if hits.Load() != 2 {
		t.Errorf("server hits = %d, want 2", hits.Load())
	}
}

func TestNewListingExtractor_RelativeBase(t *testing.T) {
	if _, err := NewListingExtractor("/just/a/path", NewHTTPSource(time.Second, 0)); err == nil {
		t.Error("expected error for a relative base url")
	}
}

func TestHTTPSource_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	src := NewHTTPSource(time.Second, 0.5)
	ctx := context.Background()
	if _, err := src.Fetch(ctx, srv.URL); err != nil {
		t.Fatalf("first fetch: %v", err)
	}

	short, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	if _, err := src.Fetch(short, srv.URL); err == nil {
		t.Error("second fetch within the rate window should fail on the short deadline")
	}
}
