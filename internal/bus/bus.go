// Package bus carries catalog events between cooperating instances.
//
// Delivery is best effort: a failed publish is reported to the caller but
// never undoes local state.
package bus

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when no bus connection exists.
var ErrUnavailable = errors.New("bus unavailable")

// Handler receives one raw message.
type Handler func(ctx context.Context, payload []byte)

// Bus publishes to and consumes from one shared subject.
type Bus interface {
	Publish(ctx context.Context, payload []byte) error
	// Subscribe calls h for every message, in arrival order, until ctx ends.
	Subscribe(ctx context.Context, h Handler) error
}
