// Package scraper turns listing pages of the shop into candidate perfume
// records. Page HTML comes from a PageSource; ParseListing does the rest.
package scraper

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"scentwatch/catalog-service/internal/model"
)

// Tile class names on the listing.
const (
	className        = "product-tile-name__text"
	classBrand       = "product-tile-name__text--brand"
	classActualPrice = "product-tile-price__text--actual"
	classOldPrice    = "product-tile-price__text--old"

	// titleChild is the 1-based position of the title span inside the name block.
	titleChild = 3
)

// ListingExtractor fetches and parses numbered listing pages.
type ListingExtractor struct {
	base *url.URL
	src  PageSource
}

// NewListingExtractor returns an extractor for the listing rooted at baseURL.
func NewListingExtractor(baseURL string, src PageSource) (*ListingExtractor, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	return &ListingExtractor{base: u, src: src}, nil
}

// PageURL returns the address of listing page n.
func (e *ListingExtractor) PageURL(n int) string {
	return e.base.String() + "/page-" + strconv.Itoa(n)
}

// Extract implements crawler.Extractor.
func (e *ListingExtractor) Extract(ctx context.Context, page int) ([]model.Perfume, error) {
	body, err := e.src.Fetch(ctx, e.PageURL(page))
	if err != nil {
		return nil, err
	}
	return ParseListing(body, e.base)
}

// ParseListing returns one candidate per product tile in document order.
// Tile links are resolved against base.
func ParseListing(body []byte, base *url.URL) ([]model.Perfume, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}

	var out []model.Perfume
	for _, a := range findAll(doc, isProductAnchor) {
		href := strings.TrimSpace(attr(a, "href"))
		if href == "" {
			continue
		}
		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		out = append(out, model.Perfume{
			Title:       normalize(textOf(findTitle(a))),
			Brand:       normalize(textOf(findFirst(a, withClass(classBrand)))),
			ActualPrice: normalize(textOf(findFirst(a, withClass(classActualPrice)))),
			OldPrice:    normalize(textOf(findFirst(a, withClass(classOldPrice)))),
			URL:         base.ResolveReference(ref).String(),
		})
	}
	return out, nil
}

func isProductAnchor(n *html.Node) bool {
	return n.Type == html.ElementNode && n.DataAtom == atom.A &&
		strings.Contains(attr(n, "href"), "/product/")
}

// findTitle returns the first name block's third element child when it is
// a span.
func findTitle(tile *html.Node) *html.Node {
	for _, name := range findAll(tile, withClass(className)) {
		pos := 0
		for c := name.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			pos++
			if pos == titleChild {
				if c.DataAtom == atom.Span {
					return c
				}
				break
			}
		}
	}
	return nil
}

// ─── DOM helpers ─────────────────────────────────────────────────────────────

func withClass(class string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return false
		}
		for _, c := range strings.Fields(attr(n, "class")) {
			if c == class {
				return true
			}
		}
		return false
	}
}

// findAll returns the descendants of root matching fn, in document order.
func findAll(root *html.Node, fn func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if fn(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(root)
	return out
}

func findFirst(root *html.Node, fn func(*html.Node) bool) *html.Node {
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if fn(c) {
			return c
		}
		if n := findFirst(c, fn); n != nil {
			return n
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	if n == nil {
		return ""
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// normalize turns no-break spaces into spaces and collapses whitespace.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "\u00a0", " ")), " ")
}
