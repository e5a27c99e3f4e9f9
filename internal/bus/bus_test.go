package bus_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"scentwatch/catalog-service/internal/bus"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMemory_FanOutInOrder(t *testing.T) {
	m := bus.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 10)
	for i := 0; i < 2; i++ {
		go m.Subscribe(ctx, func(_ context.Context, p []byte) { got <- string(p) })
	}
	waitFor(t, func() bool { return m.Subscribers() == 2 })

	for _, p := range []string{"perfume_updated", "price_up"} {
		if err := m.Publish(ctx, []byte(p)); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	counts := map[string]int{}
	for i := 0; i < 4; i++ {
		select {
		case p := <-got:
			counts[p]++
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of 4 deliveries arrived", i)
		}
	}
	if counts["perfume_updated"] != 2 || counts["price_up"] != 2 {
		t.Errorf("deliveries = %v", counts)
	}
	if m.Published() != 2 {
		t.Errorf("Published() = %d, want 2", m.Published())
	}
}

func TestMemory_SubscribeStopsOnCancel(t *testing.T) {
	m := bus.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Subscribe(ctx, func(context.Context, []byte) {}) }()
	waitFor(t, func() bool { return m.Subscribers() == 1 })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Subscribe returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after cancel")
	}
	if m.Subscribers() != 0 {
		t.Errorf("Subscribers() = %d after cancel", m.Subscribers())
	}
}

func TestRedis_NilClientIsUnavailable(t *testing.T) {
	b := bus.NewRedis(nil, "perfumes.updates", nil)
	if err := b.Publish(context.Background(), []byte("x")); !errors.Is(err, bus.ErrUnavailable) {
		t.Errorf("Publish = %v, want ErrUnavailable", err)
	}
	if err := b.Subscribe(context.Background(), nil); !errors.Is(err, bus.ErrUnavailable) {
		t.Errorf("Subscribe = %v, want ErrUnavailable", err)
	}
	if err := b.Ping(context.Background()); !errors.Is(err, bus.ErrUnavailable) {
		t.Errorf("Ping = %v, want ErrUnavailable", err)
	}
}
