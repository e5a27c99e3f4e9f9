// Package reconcile applies catalog events received from peers.
//
// Only first-hand peer events are ingested: anything tagged with one of
// the origins this service stamps on its own events (api, crawler, relay)
// is dropped. An ingested event goes through the same change detection as
// a crawl result; when it changes local state the resulting events are
// delivered locally and re-published tagged "relay", and when it changes
// nothing the message ends here. Together these two rules keep peers from
// echoing an update back and forth.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"scentwatch/catalog-service/internal/bus"
	"scentwatch/catalog-service/internal/changes"
	"scentwatch/catalog-service/internal/model"
	"scentwatch/catalog-service/internal/propagate"
	"scentwatch/catalog-service/internal/store"
)

// Outcome says what Handle did with a message.
type Outcome string

const (
	Applied           Outcome = "applied"
	Unchanged         Outcome = "unchanged"
	DroppedMalformed  Outcome = "dropped_malformed"
	DroppedOrigin     Outcome = "dropped_origin"
	DroppedKind       Outcome = "dropped_kind"
	DroppedIncomplete Outcome = "dropped_incomplete"
)

// Propagator delivers the events produced by an ingested message.
type Propagator interface {
	Propagate(ctx context.Context, events ...model.Event) []propagate.Report
}

// message is the bus wire format. Perfume fields are pointers so that a
// missing field can be told apart from an empty one.
type message struct {
	Event   model.EventKind `json:"event"`
	Perfume *struct {
		Title       *string `json:"title"`
		Brand       *string `json:"brand"`
		ActualPrice *string `json:"actual_price"`
		OldPrice    *string `json:"old_price"`
		URL         *string `json:"url"`
	} `json:"perfume"`
	Source model.Origin `json:"source"`
}

// Reconciler ingests peer messages into the local catalog.
type Reconciler struct {
	st   store.Store
	prop Propagator
	log  *slog.Logger
}

// New returns a Reconciler writing to st and propagating through prop.
func New(st store.Store, prop Propagator, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{st: st, prop: prop, log: log.With("component", "reconciler")}
}

// Run consumes b until ctx is cancelled. Storage errors are logged per
// message and do not stop the loop.
func (r *Reconciler) Run(ctx context.Context, b bus.Bus) error {
	return b.Subscribe(ctx, func(ctx context.Context, payload []byte) {
		out, err := r.Handle(ctx, payload)
		if err != nil {
			r.log.Error("peer message not applied", "err", err)
			return
		}
		r.log.Debug("peer message handled", "outcome", out)
	})
}

// Handle decodes and, when eligible, applies one peer message. Only
// storage failures are returned as errors; every other rejection is an
// Outcome.
func (r *Reconciler) Handle(ctx context.Context, payload []byte) (Outcome, error) {
	var msg message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return DroppedMalformed, nil
	}
	if msg.Source.IsReserved() {
		return DroppedOrigin, nil
	}
	switch msg.Event {
	case model.EventCreated, model.EventUpdated, model.EventPriceUp, model.EventPriceDown:
	default:
		return DroppedKind, nil
	}

	p := msg.Perfume
	if p == nil || p.Title == nil || p.Brand == nil || p.ActualPrice == nil ||
		p.OldPrice == nil || p.URL == nil || *p.URL == "" {
		return DroppedIncomplete, nil
	}
	cand := model.Perfume{
		Title:       *p.Title,
		Brand:       *p.Brand,
		ActualPrice: *p.ActualPrice,
		OldPrice:    *p.OldPrice,
		URL:         *p.URL,
	}

	var ch changes.Change
	err := r.st.WithTx(ctx, func(tx store.Tx) error {
		chs, err := changes.Apply(ctx, tx, []model.Perfume{cand})
		if err != nil {
			return err
		}
		ch = chs[0]
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("reconcile %q: %w", cand.URL, err)
	}

	if ch.Kind == changes.Unchanged {
		return Unchanged, nil
	}
	r.prop.Propagate(ctx, ch.Events(model.OriginRelay)...)
	r.log.Info("peer change applied", "url", cand.URL, "kind", ch.Kind)
	return Applied, nil
}
