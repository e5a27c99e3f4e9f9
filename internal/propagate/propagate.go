// Package propagate delivers catalog events to local viewers and to peers.
package propagate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"scentwatch/catalog-service/internal/hub"
	"scentwatch/catalog-service/internal/model"
)

// Broadcaster fans a payload out to local viewers.
type Broadcaster interface {
	Broadcast(ctx context.Context, payload []byte) hub.Delivery
}

// Publisher sends a payload to peers.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
}

// Report is the per-destination outcome for one event. Callers may ignore
// it: local state is already committed when Propagate runs.
type Report struct {
	Event      model.Event
	Local      hub.Delivery
	PublishErr error
}

// Propagator sends events to both destinations.
type Propagator struct {
	local  Broadcaster
	remote Publisher
	log    *slog.Logger
}

// New returns a Propagator. Either destination may be nil.
func New(local Broadcaster, remote Publisher, log *slog.Logger) *Propagator {
	if log == nil {
		log = slog.Default()
	}
	return &Propagator{local: local, remote: remote, log: log.With("component", "propagator")}
}

// Propagate delivers events in order: each event reaches local viewers and
// is then published before the next event is handled.
func (p *Propagator) Propagate(ctx context.Context, events ...model.Event) []Report {
	reports := make([]Report, 0, len(events))
	for _, ev := range events {
		r := Report{Event: ev}
		payload, err := json.Marshal(ev)
		if err != nil {
			r.PublishErr = fmt.Errorf("encode %s: %w", ev.Kind, err)
			reports = append(reports, r)
			continue
		}

		if p.local != nil {
			r.Local = p.local.Broadcast(ctx, payload)
		}
		if p.remote != nil {
			if err := p.remote.Publish(ctx, payload); err != nil {
				r.PublishErr = err
				p.log.Warn("bus publish failed",
					"event", ev.Kind, "url", ev.Perfume.URL, "source", ev.Origin, "err", err)
			}
		}
		reports = append(reports, r)
	}
	return reports
}
