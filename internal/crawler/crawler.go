// Package crawler walks a paginated listing from a saved cursor and
// collects a bounded batch of candidate records per run.
//
// A run starts at the cursor's page, skips the items an earlier partial
// batch already delivered, and moves forward page by page, wrapping from
// MaxPages back to 1, until the batch is full or the sweep bound is hit.
// Pages that fail to load are skipped. The returned cursor points just
// past the last collected item.
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"scentwatch/catalog-service/internal/model"
)

// Extractor returns the raw candidates listed on one page. An error means
// the page could not be read this time.
type Extractor interface {
	Extract(ctx context.Context, page int) ([]model.Perfume, error)
}

// Options bound a run.
type Options struct {
	BatchLimit  int           // max candidates per run
	MaxPages    int           // last page before wrapping to 1
	PageTimeout time.Duration // per-page fetch bound; 0 = none
}

// Result is what a run collected and where the next run should resume.
type Result struct {
	Batch       []model.Perfume
	Start       model.Cursor
	Next        model.Cursor
	PagesOK     int
	PagesFailed int
}

// Crawler drives an Extractor.
type Crawler struct {
	ex   Extractor
	opts Options
	log  *slog.Logger
}

// New returns a Crawler. Non-positive limits fall back to 10 items and 100
// pages.
func New(ex Extractor, opts Options, log *slog.Logger) *Crawler {
	if opts.BatchLimit < 1 {
		opts.BatchLimit = 10
	}
	if opts.MaxPages < 1 {
		opts.MaxPages = 100
	}
	if log == nil {
		log = slog.Default()
	}
	return &Crawler{ex: ex, opts: opts, log: log.With("component", "crawler")}
}

// Clamp normalises a stored cursor: pages outside [1, MaxPages] restart at
// page 1 (the listing may have shrunk) and negative indexes become 0.
func (c *Crawler) Clamp(cur model.Cursor) model.Cursor {
	if cur.Page < 1 || cur.Page > c.opts.MaxPages {
		return model.DefaultCursor()
	}
	if cur.Index < 0 {
		cur.Index = 0
	}
	return cur
}

// Collect runs one bounded sweep starting at from. It returns an error only
// when ctx is cancelled; page-level failures are counted and skipped.
func (c *Crawler) Collect(ctx context.Context, from model.Cursor) (Result, error) {
	start := c.Clamp(from)
	res := Result{Start: start, Next: start}

	var (
		page     = start.Page
		seen     = make(map[string]bool)
		pageLen  = make(map[int]int)
		advances = 0
	)

	advance := func() {
		page++
		if page > c.opts.MaxPages {
			page = 1
		}
		advances++
	}

	for len(res.Batch) < c.opts.BatchLimit {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("crawl cancelled: %w", err)
		}

		items, err := c.fetch(ctx, page)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, fmt.Errorf("crawl cancelled: %w", ctx.Err())
			}
			res.PagesFailed++
			c.log.Warn("page skipped", "page", page, "err", err)
			advance()
			if page == start.Page && res.PagesOK == 0 {
				c.log.Warn("listing unreachable, stopping run", "start_page", start.Page)
				break
			}
			if advances > c.opts.MaxPages+2 {
				break
			}
			continue
		}
		res.PagesOK++
		pageLen[page] = len(items)

		for i, it := range items {
			if len(res.Batch) >= c.opts.BatchLimit {
				break
			}
			// Items before the saved index went out in the previous run.
			if page == start.Page && i < start.Index && len(res.Batch) == 0 {
				continue
			}
			if it.URL != "" {
				if seen[it.URL] {
					continue
				}
				seen[it.URL] = true
			}
			res.Batch = append(res.Batch, it)
			res.Next = model.Cursor{Page: page, Index: i + 1}
		}

		if n, ok := pageLen[res.Next.Page]; ok && res.Next.Index >= n {
			res.Next = model.Cursor{Page: res.Next.Page + 1, Index: 0}
		}

		if len(res.Batch) >= c.opts.BatchLimit {
			break
		}
		advance()
		if advances > c.opts.MaxPages+2 {
			break
		}
	}

	if res.Next.Page > c.opts.MaxPages {
		res.Next = model.DefaultCursor()
	}
	if len(res.Batch) == 0 {
		// Nothing usable: move past the start page so a dead page cannot pin
		// the crawler forever.
		res.Next = model.Cursor{Page: start.Page + 1, Index: 0}
		if res.Next.Page > c.opts.MaxPages {
			res.Next = model.DefaultCursor()
		}
	}
	return res, nil
}

func (c *Crawler) fetch(ctx context.Context, page int) ([]model.Perfume, error) {
	if c.opts.PageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.PageTimeout)
		defer cancel()
	}
	items, err := c.ex.Extract(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", page, err)
	}
	return items, nil
}
