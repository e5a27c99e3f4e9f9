package hub_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"scentwatch/catalog-service/internal/hub"
)

type recorder struct {
	mu   sync.Mutex
	got  [][]byte
	fail bool
}

func (r *recorder) Send(_ context.Context, payload []byte) error {
	if r.fail {
		return errors.New("connection reset")
	}
	r.mu.Lock()
	r.got = append(r.got, payload)
	r.mu.Unlock()
	return nil
}

func TestBroadcast_DeliversToAll(t *testing.T) {
	h := hub.New(nil)
	a, b := &recorder{}, &recorder{}
	h.Add(a)
	h.Add(b)

	d := h.Broadcast(context.Background(), []byte(`{"event":"price_up"}`))
	if d.Delivered != 2 || d.Dropped != 0 {
		t.Errorf("Delivery = %+v, want 2 delivered", d)
	}
	if len(a.got) != 1 || len(b.got) != 1 {
		t.Errorf("a got %d, b got %d, want 1 each", len(a.got), len(b.got))
	}
}

func TestBroadcast_FailingSubscriberIsRemoved(t *testing.T) {
	h := hub.New(nil)
	good, bad := &recorder{}, &recorder{fail: true}
	h.Add(good)
	h.Add(bad)

	d := h.Broadcast(context.Background(), []byte("one"))
	if d.Delivered != 1 || d.Dropped != 1 {
		t.Errorf("Delivery = %+v, want 1 delivered 1 dropped", d)
	}
	if h.Len() != 1 {
		t.Errorf("Len = %d after drop, want 1", h.Len())
	}

	d = h.Broadcast(context.Background(), []byte("two"))
	if d.Delivered != 1 || d.Dropped != 0 {
		t.Errorf("second Delivery = %+v", d)
	}
	if len(good.got) != 2 {
		t.Errorf("good subscriber got %d payloads, want 2", len(good.got))
	}
}

func TestRemove(t *testing.T) {
	h := hub.New(nil)
	id := h.Add(&recorder{})
	h.Remove(id)
	h.Remove(id)
	if h.Len() != 0 {
		t.Errorf("Len = %d, want 0", h.Len())
	}
	if d := h.Broadcast(context.Background(), []byte("x")); d != (hub.Delivery{}) {
		t.Errorf("Broadcast on empty hub = %+v", d)
	}
}

func TestConcurrentAddBroadcast(t *testing.T) {
	h := hub.New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.Add(&recorder{})
		}()
		go func() {
			defer wg.Done()
			h.Broadcast(context.Background(), []byte("tick"))
		}()
	}
	wg.Wait()
	if h.Len() != 50 {
		t.Errorf("Len = %d, want 50", h.Len())
	}
}
