// Package model defines shared data structures for the catalog service.
package model

import "strings"

// Perfume is one listed item of the catalog. URL is the natural key: it is
// unique and never changes once the record exists.
type Perfume struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Brand       string `json:"brand"`
	ActualPrice string `json:"actual_price"`
	OldPrice    string `json:"old_price"` // empty when there is no discount
	URL         string `json:"url"`
}

// Cursor is the crawler's resume position: start at Page, skipping the
// first Index items that an earlier partial batch already delivered.
type Cursor struct {
	Page  int
	Index int
}

// Cursor counter keys and their defaults, as stored in the parser_state table.
const (
	CursorPageKey  = "page"
	CursorIndexKey = "index"

	DefaultCursorPage  = 1
	DefaultCursorIndex = 0
)

// DefaultCursor is the position used before any crawl has run.
func DefaultCursor() Cursor {
	return Cursor{Page: DefaultCursorPage, Index: DefaultCursorIndex}
}

// EventKind is the wire name of a catalog change.
type EventKind string

const (
	EventCreated   EventKind = "perfume_created"
	EventUpdated   EventKind = "perfume_updated"
	EventDeleted   EventKind = "perfume_deleted"
	EventPriceUp   EventKind = "price_up"
	EventPriceDown EventKind = "price_down"
)

// Origin identifies who produced an event.
type Origin string

const (
	OriginAPI     Origin = "api"
	OriginCrawler Origin = "crawler"
	OriginRelay   Origin = "relay"

	// originLegacyParser is what older deployments tagged crawl events with.
	originLegacyParser Origin = "parser"
)

// IsReserved reports whether o is one of the tags this service attaches to
// its own events. Messages carrying a reserved tag are never ingested.
func (o Origin) IsReserved() bool {
	switch Origin(strings.ToLower(strings.TrimSpace(string(o)))) {
	case OriginAPI, OriginCrawler, OriginRelay, originLegacyParser:
		return true
	}
	return false
}

// Event is the envelope pushed to live viewers and published on the bus.
type Event struct {
	Kind    EventKind `json:"event"`
	Perfume Perfume   `json:"perfume"`
	Origin  Origin    `json:"source"`
}
