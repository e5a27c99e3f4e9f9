// Package changes classifies candidate records against the stored catalog
// and performs the resulting upserts. It is the only path through which
// crawl results, API edits and peer messages mutate the catalog.
//
// Record lifecycle:
//
//	Unseen ──sighting──► Created ──► Stable ◄──┐
//	                                   │        │
//	                                   └─delta──► Updated (+price signal)
//
// There is no deletion transition here; deletes are explicit API calls.
package changes

import (
	"context"
	"fmt"

	"scentwatch/catalog-service/internal/model"
	"scentwatch/catalog-service/internal/store"
)

// Kind is the classification of one candidate.
type Kind string

const (
	Created   Kind = "created"
	Updated   Kind = "updated"
	Unchanged Kind = "unchanged"
)

// Direction is the numeric movement of actual_price within an update.
type Direction int

const (
	NoDirection Direction = iota
	PriceUp
	PriceDown
)

// Compared fields, in wire names.
const (
	FieldTitle       = "title"
	FieldBrand       = "brand"
	FieldActualPrice = "actual_price"
	FieldOldPrice    = "old_price"
)

// FieldDelta is the before/after value of one changed field.
type FieldDelta struct {
	Old string
	New string
}

// Change is the outcome of comparing a candidate with the stored record.
type Change struct {
	Kind      Kind
	Perfume   model.Perfume // the record as it is after the mutation
	Delta     map[string]FieldDelta
	Direction Direction
}

// Diff classifies candidate against existing (nil when no record has the
// candidate's url). For updates the returned Perfume keeps the stored id.
func Diff(existing *model.Perfume, candidate model.Perfume) Change {
	if existing == nil {
		return Change{Kind: Created, Perfume: candidate}
	}

	delta := make(map[string]FieldDelta)
	compare := func(name, old, cur string) {
		if old != cur {
			delta[name] = FieldDelta{Old: old, New: cur}
		}
	}
	compare(FieldTitle, existing.Title, candidate.Title)
	compare(FieldBrand, existing.Brand, candidate.Brand)
	compare(FieldActualPrice, existing.ActualPrice, candidate.ActualPrice)
	compare(FieldOldPrice, existing.OldPrice, candidate.OldPrice)

	if len(delta) == 0 {
		return Change{Kind: Unchanged, Perfume: *existing}
	}

	next := *existing
	next.Title = candidate.Title
	next.Brand = candidate.Brand
	next.ActualPrice = candidate.ActualPrice
	next.OldPrice = candidate.OldPrice

	c := Change{Kind: Updated, Perfume: next, Delta: delta}
	if d, ok := delta[FieldActualPrice]; ok {
		c.Direction = direction(d.Old, d.New)
	}
	return c
}

func direction(oldRaw, newRaw string) Direction {
	oldV, ok := ParsePrice(oldRaw)
	if !ok {
		return NoDirection
	}
	newV, ok := ParsePrice(newRaw)
	if !ok {
		return NoDirection
	}
	switch {
	case newV > oldV:
		return PriceUp
	case newV < oldV:
		return PriceDown
	}
	return NoDirection
}

// Events returns the envelopes to propagate for c, tagged with origin.
// A price signal always follows the update it belongs to.
func (c Change) Events(origin model.Origin) []model.Event {
	switch c.Kind {
	case Created:
		return []model.Event{{Kind: model.EventCreated, Perfume: c.Perfume, Origin: origin}}
	case Updated:
		evs := []model.Event{{Kind: model.EventUpdated, Perfume: c.Perfume, Origin: origin}}
		switch c.Direction {
		case PriceUp:
			evs = append(evs, model.Event{Kind: model.EventPriceUp, Perfume: c.Perfume, Origin: origin})
		case PriceDown:
			evs = append(evs, model.Event{Kind: model.EventPriceDown, Perfume: c.Perfume, Origin: origin})
		}
		return evs
	}
	return nil
}

// Apply diffs candidates against tx and writes every create and update.
// Candidates without a url are ignored. A url repeated in candidates is
// compared against the state left by its previous occurrence.
func Apply(ctx context.Context, tx store.Tx, candidates []model.Perfume) ([]Change, error) {
	urls := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c.URL != "" {
			urls = append(urls, c.URL)
		}
	}
	if len(urls) == 0 {
		return nil, nil
	}

	existing, err := tx.PerfumesByURL(ctx, urls)
	if err != nil {
		return nil, fmt.Errorf("apply changes: %w", err)
	}

	out := make([]Change, 0, len(urls))
	for _, cand := range candidates {
		if cand.URL == "" {
			continue
		}
		var cur *model.Perfume
		if p, ok := existing[cand.URL]; ok {
			cur = &p
		}

		ch := Diff(cur, cand)
		switch ch.Kind {
		case Created:
			ch.Perfume.ID = 0
			if err := tx.InsertPerfume(ctx, &ch.Perfume); err != nil {
				return nil, fmt.Errorf("apply changes: %w", err)
			}
		case Updated:
			if err := tx.UpdatePerfume(ctx, ch.Perfume); err != nil {
				return nil, fmt.Errorf("apply changes: %w", err)
			}
		}
		existing[cand.URL] = ch.Perfume
		out = append(out, ch)
	}
	return out, nil
}

// Summary counts a slice of changes.
type Summary struct {
	Created      int
	Updated      int
	Unchanged    int
	PriceSignals int
}

// Summarize tallies changes by kind.
func Summarize(chs []Change) Summary {
	var s Summary
	for _, c := range chs {
		switch c.Kind {
		case Created:
			s.Created++
		case Updated:
			s.Updated++
			if c.Direction != NoDirection {
				s.PriceSignals++
			}
		default:
			s.Unchanged++
		}
	}
	return s
}
