package changes_test

import (
	"context"
	"testing"

	"scentwatch/catalog-service/internal/changes"
	"scentwatch/catalog-service/internal/model"
	"scentwatch/catalog-service/internal/store"
	"scentwatch/catalog-service/internal/store/storetest"
)

func perfume(url, price string) model.Perfume {
	return model.Perfume{URL: url, Title: "Sauvage", Brand: "Dior", ActualPrice: price}
}

func TestDiff_Created(t *testing.T) {
	c := changes.Diff(nil, perfume("a", "100"))
	if c.Kind != changes.Created {
		t.Fatalf("Kind = %s, want created", c.Kind)
	}
	evs := c.Events(model.OriginCrawler)
	if len(evs) != 1 || evs[0].Kind != model.EventCreated || evs[0].Origin != model.OriginCrawler {
		t.Errorf("Events = %+v", evs)
	}
}

func TestDiff_Unchanged(t *testing.T) {
	stored := perfume("a", "100")
	stored.ID = 7
	c := changes.Diff(&stored, perfume("a", "100"))
	if c.Kind != changes.Unchanged {
		t.Fatalf("Kind = %s, want unchanged", c.Kind)
	}
	if evs := c.Events(model.OriginAPI); len(evs) != 0 {
		t.Errorf("unchanged produced events: %+v", evs)
	}
}

func TestDiff_PriceDirection(t *testing.T) {
	cases := []struct {
		old, new string
		want     []model.EventKind
	}{
		{"1000", "1200", []model.EventKind{model.EventUpdated, model.EventPriceUp}},
		{"1200", "1000", []model.EventKind{model.EventUpdated, model.EventPriceDown}},
		{"1 200 ₽", "1200", []model.EventKind{model.EventUpdated}},
		{"n/a", "1200", []model.EventKind{model.EventUpdated}},
		{"1200", "sold out", []model.EventKind{model.EventUpdated}},
	}
	for _, c := range cases {
		stored := perfume("a", c.old)
		stored.ID = 3
		ch := changes.Diff(&stored, perfume("a", c.new))
		if ch.Kind != changes.Updated {
			t.Errorf("%q -> %q: Kind = %s, want updated", c.old, c.new, ch.Kind)
			continue
		}
		if ch.Perfume.ID != 3 {
			t.Errorf("%q -> %q: updated record lost its id", c.old, c.new)
		}
		evs := ch.Events(model.OriginCrawler)
		if len(evs) != len(c.want) {
			t.Errorf("%q -> %q: got %d events, want %d", c.old, c.new, len(evs), len(c.want))
			continue
		}
		for i := range evs {
			if evs[i].Kind != c.want[i] {
				t.Errorf("%q -> %q: event[%d] = %s, want %s", c.old, c.new, i, evs[i].Kind, c.want[i])
			}
		}
	}
}

func TestDiff_NonPriceFieldHasNoDirection(t *testing.T) {
	stored := perfume("a", "100")
	cand := perfume("a", "100")
	cand.OldPrice = "150"
	ch := changes.Diff(&stored, cand)
	if ch.Kind != changes.Updated || ch.Direction != changes.NoDirection {
		t.Errorf("got %s/%v, want updated without direction", ch.Kind, ch.Direction)
	}
	if d, ok := ch.Delta[changes.FieldOldPrice]; !ok || d.Old != "" || d.New != "150" {
		t.Errorf("Delta = %+v", ch.Delta)
	}
	if _, ok := ch.Delta[changes.FieldActualPrice]; ok {
		t.Error("actual_price should not be in the delta")
	}
}

func apply(t *testing.T, s store.Store, cands ...model.Perfume) []changes.Change {
	t.Helper()
	var out []changes.Change
	err := s.WithTx(context.Background(), func(tx store.Tx) error {
		var err error
		out, err = changes.Apply(context.Background(), tx, cands)
		return err
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	return out
}

func TestApply_IdempotentResighting(t *testing.T) {
	s := storetest.New(t)
	rec := perfume("https://x/product/1", "100")

	first := apply(t, s, rec)
	if len(first) != 1 || first[0].Kind != changes.Created || first[0].Perfume.ID == 0 {
		t.Fatalf("first Apply = %+v", first)
	}
	for i := 0; i < 2; i++ {
		again := apply(t, s, rec)
		if len(again) != 1 || again[0].Kind != changes.Unchanged {
			t.Fatalf("re-sighting %d = %+v, want unchanged", i, again)
		}
		if evs := again[0].Events(model.OriginCrawler); len(evs) != 0 {
			t.Errorf("re-sighting %d produced %d events", i, len(evs))
		}
	}
}

func TestApply_UpdatePersists(t *testing.T) {
	s := storetest.New(t)
	apply(t, s, perfume("a", "1000"))

	got := apply(t, s, perfume("a", "1200"))
	if got[0].Kind != changes.Updated || got[0].Direction != changes.PriceUp {
		t.Fatalf("Apply = %+v", got[0])
	}
	stored, err := s.PerfumesByURL(context.Background(), []string{"a"})
	if err != nil {
		t.Fatal(err)
	}
	if stored["a"].ActualPrice != "1200" {
		t.Errorf("stored price = %q, want 1200", stored["a"].ActualPrice)
	}
}

func TestApply_RepeatedURLInBatch(t *testing.T) {
	s := storetest.New(t)
	got := apply(t, s, perfume("a", "100"), perfume("a", "100"), perfume("a", "90"))
	kinds := []changes.Kind{changes.Created, changes.Unchanged, changes.Updated}
	if len(got) != len(kinds) {
		t.Fatalf("got %d changes, want %d", len(got), len(kinds))
	}
	for i, k := range kinds {
		if got[i].Kind != k {
			t.Errorf("change[%d] = %s, want %s", i, got[i].Kind, k)
		}
	}
	if got[2].Direction != changes.PriceDown {
		t.Errorf("third sighting direction = %v, want down", got[2].Direction)
	}
}

func TestApply_SkipsEmptyURL(t *testing.T) {
	s := storetest.New(t)
	got := apply(t, s, model.Perfume{Title: "no link"})
	if len(got) != 0 {
		t.Errorf("Apply with empty url = %+v, want nothing", got)
	}
}

func TestSummarize(t *testing.T) {
	sum := changes.Summarize([]changes.Change{
		{Kind: changes.Created},
		{Kind: changes.Updated, Direction: changes.PriceUp},
		{Kind: changes.Updated},
		{Kind: changes.Unchanged},
	})
	want := changes.Summary{Created: 1, Updated: 2, Unchanged: 1, PriceSignals: 1}
	if sum != want {
		t.Errorf("Summarize = %+v, want %+v", sum, want)
	}
}
