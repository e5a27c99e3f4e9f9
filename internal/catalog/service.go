// Package catalog contains the business operations of the catalog service.
// It is transport-agnostic: used by the HTTP API and the crawl scheduler.
//
// Every write funnels through changes.Apply inside one storage transaction
// and is propagated only after that transaction commits.
package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"scentwatch/catalog-service/internal/changes"
	"scentwatch/catalog-service/internal/crawler"
	"scentwatch/catalog-service/internal/cursor"
	"scentwatch/catalog-service/internal/model"
	"scentwatch/catalog-service/internal/propagate"
	"scentwatch/catalog-service/internal/store"
)

// ─── Errors ──────────────────────────────────────────────────────────────────

// ErrNotFound is returned when a perfume id does not exist.
var ErrNotFound = store.ErrNotFound

// ValidationError wraps a user-facing validation message.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

// ─── Service ─────────────────────────────────────────────────────────────────

// Propagator delivers committed events.
type Propagator interface {
	Propagate(ctx context.Context, events ...model.Event) []propagate.Report
}

// Collector produces one crawl batch from a cursor.
type Collector interface {
	Collect(ctx context.Context, from model.Cursor) (crawler.Result, error)
}

// Service encapsulates catalog business logic.
type Service struct {
	st      store.Store
	crawler Collector
	prop    Propagator
	gate    chan struct{} // capacity 1: at most one crawl at a time
	log     *slog.Logger
}

// NewService returns a configured Service.
func NewService(st store.Store, c Collector, prop Propagator, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		st:      st,
		crawler: c,
		prop:    prop,
		gate:    make(chan struct{}, 1),
		log:     log.With("component", "catalog"),
	}
}

// ─── Crawl ───────────────────────────────────────────────────────────────────

// CrawlReport summarises one crawl run.
type CrawlReport struct {
	Start       model.Cursor
	Next        model.Cursor
	PagesOK     int
	PagesFailed int
	Collected   int
	changes.Summary
}

// RunCrawl performs one crawl: collect a batch from the saved cursor,
// apply it and save the new cursor in one transaction, then propagate the
// resulting events tagged "crawler". Runs are serialised; a caller waits
// for a running crawl to finish first. If the transaction fails the cursor
// does not move.
func (s *Service) RunCrawl(ctx context.Context) (*CrawlReport, error) {
	select {
	case s.gate <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-s.gate }()

	start, err := cursor.New(s.st).Load(ctx)
	if err != nil {
		return nil, err
	}

	res, err := s.crawler.Collect(ctx, start)
	if err != nil {
		return nil, err
	}

	var chs []changes.Change
	err = s.st.WithTx(ctx, func(tx store.Tx) error {
		var err error
		if chs, err = changes.Apply(ctx, tx, res.Batch); err != nil {
			return err
		}
		return cursor.New(tx).Save(ctx, res.Next)
	})
	if err != nil {
		s.log.Error("crawl commit failed", "start_page", res.Start.Page, "err", err)
		return nil, fmt.Errorf("crawl commit: %w", err)
	}

	var events []model.Event
	for _, ch := range chs {
		events = append(events, ch.Events(model.OriginCrawler)...)
	}
	s.prop.Propagate(ctx, events...)

	report := &CrawlReport{
		Start:       res.Start,
		Next:        res.Next,
		PagesOK:     res.PagesOK,
		PagesFailed: res.PagesFailed,
		Collected:   len(res.Batch),
		Summary:     changes.Summarize(chs),
	}
	s.log.Info("crawl run complete",
		"start", fmt.Sprintf("%d/%d", report.Start.Page, report.Start.Index),
		"next", fmt.Sprintf("%d/%d", report.Next.Page, report.Next.Index),
		"pages_ok", report.PagesOK, "pages_failed", report.PagesFailed,
		"collected", report.Collected, "created", report.Created,
		"updated", report.Updated, "price_signals", report.PriceSignals)
	return report, nil
}

// ─── Direct edits ────────────────────────────────────────────────────────────

// PerfumePatch carries the fields of a partial update; nil means keep.
type PerfumePatch struct {
	Title       *string `json:"title"`
	Brand       *string `json:"brand"`
	ActualPrice *string `json:"actual_price"`
	OldPrice    *string `json:"old_price"`
	URL         *string `json:"url"`
}

// Upsert stores p by url: a new url creates a record, a known url is
// updated. Events are tagged "api".
func (s *Service) Upsert(ctx context.Context, p model.Perfume) (model.Perfume, error) {
	if p.URL == "" {
		return model.Perfume{}, &ValidationError{Msg: "url is required"}
	}
	return s.apply(ctx, func(store.Tx) (model.Perfume, error) { return p, nil })
}

// Patch applies a partial update to the record with id. The url of an
// existing record cannot change.
func (s *Service) Patch(ctx context.Context, id int64, patch PerfumePatch) (model.Perfume, error) {
	return s.apply(ctx, func(tx store.Tx) (model.Perfume, error) {
		cur, err := tx.PerfumeByID(ctx, id)
		if err != nil {
			return model.Perfume{}, err
		}
		if patch.URL != nil && *patch.URL != cur.URL {
			return model.Perfume{}, &ValidationError{Msg: "url cannot be changed"}
		}
		if patch.Title != nil {
			cur.Title = *patch.Title
		}
		if patch.Brand != nil {
			cur.Brand = *patch.Brand
		}
		if patch.ActualPrice != nil {
			cur.ActualPrice = *patch.ActualPrice
		}
		if patch.OldPrice != nil {
			cur.OldPrice = *patch.OldPrice
		}
		return cur, nil
	})
}

// apply builds a candidate inside a transaction, runs it through change
// detection and propagates the outcome after commit.
func (s *Service) apply(ctx context.Context, build func(tx store.Tx) (model.Perfume, error)) (model.Perfume, error) {
	var ch changes.Change
	err := s.st.WithTx(ctx, func(tx store.Tx) error {
		cand, err := build(tx)
		if err != nil {
			return err
		}
		chs, err := changes.Apply(ctx, tx, []model.Perfume{cand})
		if err != nil {
			return err
		}
		ch = chs[0]
		return nil
	})
	if err != nil {
		return model.Perfume{}, err
	}
	s.prop.Propagate(ctx, ch.Events(model.OriginAPI)...)
	return ch.Perfume, nil
}

// Delete removes a record and announces it with perfume_deleted.
func (s *Service) Delete(ctx context.Context, id int64) (model.Perfume, error) {
	p, err := s.st.DeletePerfume(ctx, id)
	if err != nil {
		return model.Perfume{}, err
	}
	s.prop.Propagate(ctx, model.Event{Kind: model.EventDeleted, Perfume: p, Origin: model.OriginAPI})
	return p, nil
}

// ─── Reads ───────────────────────────────────────────────────────────────────

// Get returns one record by id.
func (s *Service) Get(ctx context.Context, id int64) (model.Perfume, error) {
	return s.st.PerfumeByID(ctx, id)
}

// List returns records ordered by id.
func (s *Service) List(ctx context.Context, f store.Filter) ([]model.Perfume, error) {
	return s.st.ListPerfumes(ctx, f)
}

// Brands returns the distinct brands, sorted.
func (s *Service) Brands(ctx context.Context) ([]string, error) {
	return s.st.Brands(ctx)
}
